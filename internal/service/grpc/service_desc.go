package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/pos/internal/service/order"
)

const (
	serviceName = "pos.v1.OrderService"

	methodCreateOrder = "/" + serviceName + "/CreateOrder"
	methodGetOrder    = "/" + serviceName + "/GetOrder"
	methodListOrders  = "/" + serviceName + "/ListOrders"
	methodUpdateOrder = "/" + serviceName + "/UpdateOrder"
	methodDeleteOrder = "/" + serviceName + "/DeleteOrder"
	methodWatchOrders = "/" + serviceName + "/WatchOrders"
)

// OrderServiceServer - серверная сторона pos.v1.OrderService.
type OrderServiceServer interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error)
	ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error)
	UpdateOrder(ctx context.Context, req *UpdateOrderRequest) (*OrderResponse, error)
	DeleteOrder(ctx context.Context, req *DeleteOrderRequest) (*OrderResponse, error)
	WatchOrders(req *WatchOrdersRequest, stream OrderWatchStream) error
}

// OrderWatchStream - серверный поток событий заказа.
type OrderWatchStream interface {
	Send(event *order.EventPayload) error
	SendHeader(md metadata.MD) error
	Context() context.Context
}

// OrderServiceDesc описывает сервис без сгенерированного кода: на проводе каждое сообщение -
// google.protobuf.Struct, обработчики работают с Go-структурами.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateOrder",
			Handler:    unaryHandler(methodCreateOrder, OrderServiceServer.CreateOrder),
		},
		{
			MethodName: "GetOrder",
			Handler:    unaryHandler(methodGetOrder, OrderServiceServer.GetOrder),
		},
		{
			MethodName: "ListOrders",
			Handler:    unaryHandler(methodListOrders, OrderServiceServer.ListOrders),
		},
		{
			MethodName: "UpdateOrder",
			Handler:    unaryHandler(methodUpdateOrder, OrderServiceServer.UpdateOrder),
		},
		{
			MethodName: "DeleteOrder",
			Handler:    unaryHandler(methodDeleteOrder, OrderServiceServer.DeleteOrder),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchOrders",
			Handler:       watchOrdersHandler,
			ServerStreams: true,
		},
	},
	Metadata: "pos/v1/order_service",
}

// RegisterOrderServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterOrderServiceServer(registrar grpc.ServiceRegistrar, srv OrderServiceServer) {
	registrar.RegisterService(&OrderServiceDesc, srv)
}

func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(OrderServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		msg := new(structpb.Struct)
		if err := dec(msg); err != nil {
			return nil, err
		}
		in := new(Req)
		if err := decodeRequest(msg, in); err != nil {
			return nil, err
		}
		server := srv.(OrderServiceServer)
		handler := func(ctx context.Context, req any) (any, error) {
			resp, err := call(server, ctx, req.(*Req))
			if err != nil {
				return nil, err
			}
			return encodeResponse(resp)
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handler)
	}
}

type watchOrdersServerStream struct {
	grpc.ServerStream
}

func (s *watchOrdersServerStream) Send(event *order.EventPayload) error {
	msg, err := encodeResponse(event)
	if err != nil {
		return err
	}
	return s.ServerStream.SendMsg(msg)
}

func watchOrdersHandler(srv any, stream grpc.ServerStream) error {
	msg := new(structpb.Struct)
	if err := stream.RecvMsg(msg); err != nil {
		return err
	}
	in := new(WatchOrdersRequest)
	if err := decodeRequest(msg, in); err != nil {
		return err
	}
	return srv.(OrderServiceServer).WatchOrders(in, &watchOrdersServerStream{ServerStream: stream})
}

// Client - клиент pos.v1.OrderService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient оборачивает соединение.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	reply := new(structpb.Struct)
	if err := cc.Invoke(ctx, method, in, reply, opts...); err != nil {
		return nil, err
	}
	out := new(Resp)
	if err := fromStruct(reply, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, methodCreateOrder, req, opts)
}

func (c *Client) GetOrder(ctx context.Context, req *GetOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, methodGetOrder, req, opts)
}

func (c *Client) ListOrders(ctx context.Context, req *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, methodListOrders, req, opts)
}

func (c *Client) UpdateOrder(ctx context.Context, req *UpdateOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, methodUpdateOrder, req, opts)
}

func (c *Client) DeleteOrder(ctx context.Context, req *DeleteOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, methodDeleteOrder, req, opts)
}

// WatchOrders открывает поток событий. Поток завершается при отмене ctx.
func (c *Client) WatchOrders(ctx context.Context, req *WatchOrdersRequest, opts ...grpc.CallOption) (*WatchOrdersClient, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	stream, err := c.cc.NewStream(ctx, &OrderServiceDesc.Streams[0], methodWatchOrders, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchOrdersClient{stream: stream}, nil
}

// WatchOrdersClient читает события из потока.
type WatchOrdersClient struct {
	stream grpc.ClientStream
}

// Header ждёт заголовков ответа. Сервер отправляет их сразу после подписки на события.
func (w *WatchOrdersClient) Header() error {
	_, err := w.stream.Header()
	return err
}

func (w *WatchOrdersClient) Recv() (*order.EventPayload, error) {
	msg := new(structpb.Struct)
	if err := w.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	event := new(order.EventPayload)
	if err := fromStruct(msg, event); err != nil {
		return nil, err
	}
	return event, nil
}
