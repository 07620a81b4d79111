package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/notify"
	"github.com/vladislavdragonenkov/pos/internal/service/idempotency"
	"github.com/vladislavdragonenkov/pos/internal/service/order"
)

const defaultWatchBuffer = 64

// OrderService - операции агрегата заказа, которые использует gRPC-слой.
type OrderService interface {
	Create(ctx context.Context, header domain.OrderHeader, items []domain.ItemRequest) (domain.OrderAggregate, error)
	Get(ctx context.Context, id string) (domain.OrderAggregate, error)
	List(ctx context.Context) ([]domain.OrderAggregate, error)
	Update(ctx context.Context, id string, patch domain.OrderPatch, items []domain.ItemRequest) (domain.OrderAggregate, error)
	Remove(ctx context.Context, id string) (domain.OrderAggregate, error)
}

// Subscriber выдаёт подписку на события жизненного цикла.
type Subscriber interface {
	Subscribe(buffer int) *notify.Subscription
}

// ItemInput - позиция в запросе. Пустой ID означает новую позицию.
type ItemInput struct {
	ID        string `json:"id,omitempty"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderRequest struct {
	Client        string      `json:"client"`
	Status        string      `json:"status,omitempty"`
	PaymentStatus string      `json:"paymentStatus,omitempty"`
	PaymentMethod *string     `json:"paymentMethod,omitempty"`
	Notes         *string     `json:"notes,omitempty"`
	CompanyID     string      `json:"companyId"`
	UserID        string      `json:"userId"`
	OrderItems    []ItemInput `json:"orderItems"`
}

type GetOrderRequest struct {
	ID string `json:"id"`
}

type ListOrdersRequest struct{}

// UpdateOrderRequest - частичное обновление; nil-поля не меняются.
// Clear перечисляет необязательные поля, которые нужно сбросить: paymentMethod, notes.
type UpdateOrderRequest struct {
	ID            string      `json:"id"`
	Client        *string     `json:"client,omitempty"`
	Status        *string     `json:"status,omitempty"`
	PaymentStatus *string     `json:"paymentStatus,omitempty"`
	PaymentMethod *string     `json:"paymentMethod,omitempty"`
	Notes         *string     `json:"notes,omitempty"`
	CompanyID     *string     `json:"companyId,omitempty"`
	UserID        *string     `json:"userId,omitempty"`
	OrderItems    []ItemInput `json:"orderItems,omitempty"`
	Clear         []string    `json:"clear,omitempty"`
}

type DeleteOrderRequest struct {
	ID string `json:"id"`
}

// WatchOrdersRequest - подписка на события. Пустой OrderID означает все заказы.
type WatchOrdersRequest struct {
	OrderID string `json:"orderId,omitempty"`
}

type OrderResponse struct {
	Order order.View `json:"order"`
}

type ListOrdersResponse struct {
	Orders []order.View `json:"orders"`
}

// OrderServer реализует pos.v1.OrderService поверх сервиса заказов.
type OrderServer struct {
	orders      OrderService
	events      Subscriber
	guard       *idempotency.Guard
	logger      *log.Entry
	watchBuffer int
}

// Option настраивает OrderServer.
type Option func(*OrderServer)

// WithIdempotency включает обработку metadata idempotency-key в CreateOrder.
func WithIdempotency(guard *idempotency.Guard) Option {
	return func(s *OrderServer) {
		s.guard = guard
	}
}

// WithEvents подключает источник событий для WatchOrders.
func WithEvents(events Subscriber) Option {
	return func(s *OrderServer) {
		s.events = events
	}
}

// WithWatchBuffer задаёт размер буфера подписки WatchOrders.
func WithWatchBuffer(size int) Option {
	return func(s *OrderServer) {
		if size > 0 {
			s.watchBuffer = size
		}
	}
}

// NewOrderServer конструирует сервер с зависимостями.
func NewOrderServer(orders OrderService, logger *log.Entry, opts ...Option) *OrderServer {
	if logger == nil {
		logger = log.New().WithField("component", "grpc-order-service")
	}
	s := &OrderServer{
		orders:      orders,
		logger:      logger,
		watchBuffer: defaultWatchBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ OrderServiceServer = (*OrderServer)(nil)

// CreateOrder создаёт заказ. С idempotency-key повтор того же запроса отдаёт сохранённый ответ.
func (s *OrderServer) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	key := readIdempotencyKey(ctx)
	if key == "" || s.guard == nil {
		return s.createOrder(ctx, req)
	}
	return s.createIdempotent(ctx, key, req)
}

func (s *OrderServer) createOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	header := domain.OrderHeader{
		Client:        strings.TrimSpace(req.Client),
		Status:        domain.OrderStatus(req.Status),
		PaymentStatus: domain.PaymentStatus(req.PaymentStatus),
		Notes:         req.Notes,
		CompanyID:     req.CompanyID,
		UserID:        req.UserID,
	}
	if req.PaymentMethod != nil {
		method := domain.PaymentMethod(*req.PaymentMethod)
		header.PaymentMethod = &method
	}

	items := make([]domain.ItemRequest, 0, len(req.OrderItems))
	for _, item := range req.OrderItems {
		items = append(items, domain.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	agg, err := s.orders.Create(ctx, header, items)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OrderResponse{Order: order.NewView(agg)}, nil
}

func (s *OrderServer) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
	if req == nil || req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	agg, err := s.orders.Get(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OrderResponse{Order: order.NewView(agg)}, nil
}

func (s *OrderServer) ListOrders(ctx context.Context, _ *ListOrdersRequest) (*ListOrdersResponse, error) {
	aggs, err := s.orders.List(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListOrdersResponse{Orders: order.NewViews(aggs)}, nil
}

func (s *OrderServer) UpdateOrder(ctx context.Context, req *UpdateOrderRequest) (*OrderResponse, error) {
	if req == nil || req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	patch := domain.OrderPatch{
		Client:    req.Client,
		Notes:     req.Notes,
		CompanyID: req.CompanyID,
		UserID:    req.UserID,
	}
	if req.Status != nil {
		value := domain.OrderStatus(*req.Status)
		patch.Status = &value
	}
	if req.PaymentStatus != nil {
		value := domain.PaymentStatus(*req.PaymentStatus)
		patch.PaymentStatus = &value
	}
	if req.PaymentMethod != nil {
		value := domain.PaymentMethod(*req.PaymentMethod)
		patch.PaymentMethod = &value
	}
	for _, field := range req.Clear {
		switch field {
		case "paymentMethod":
			patch.ClearPaymentMethod = true
		case "notes":
			patch.ClearNotes = true
		default:
			return nil, status.Errorf(codes.InvalidArgument, "field %q cannot be cleared", field)
		}
	}

	items := make([]domain.ItemRequest, 0, len(req.OrderItems))
	for _, item := range req.OrderItems {
		items = append(items, domain.ItemRequest{ID: item.ID, ProductID: item.ProductID, Quantity: item.Quantity})
	}

	agg, err := s.orders.Update(ctx, req.ID, patch, items)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OrderResponse{Order: order.NewView(agg)}, nil
}

// DeleteOrder удаляет заказ и возвращает его последнее состояние.
func (s *OrderServer) DeleteOrder(ctx context.Context, req *DeleteOrderRequest) (*OrderResponse, error) {
	if req == nil || req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	snapshot, err := s.orders.Remove(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OrderResponse{Order: order.NewView(snapshot)}, nil
}

// WatchOrders транслирует события жизненного цикла, пока клиент не отменит вызов.
// Если подписчик не успевает читать, брокер закрывает подписку и поток завершается с ResourceExhausted.
// При остановке брокера поток завершается с Unavailable.
func (s *OrderServer) WatchOrders(req *WatchOrdersRequest, stream OrderWatchStream) error {
	if s.events == nil {
		return status.Error(codes.Unimplemented, "order events are not configured")
	}

	sub := s.events.Subscribe(s.watchBuffer)
	defer sub.Close()

	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case event, ok := <-sub.Events():
			if !ok {
				if errors.Is(sub.Err(), notify.ErrBrokerClosed) {
					return status.Error(codes.Unavailable, "server is shutting down")
				}
				return status.Error(codes.ResourceExhausted, "event subscription closed")
			}
			if req != nil && req.OrderID != "" && event.OrderID != req.OrderID {
				continue
			}
			payload := order.NewEventPayload(event)
			if err := stream.Send(&payload); err != nil {
				s.logger.WithError(err).WithField("order_id", event.OrderID).Debug("watch stream send failed")
				return err
			}
		}
	}
}

// toStatus переводит доменную ошибку в gRPC-статус. Причина внутренних ошибок не раскрывается.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}

	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case domain.KindConflict:
		return status.Error(codes.AlreadyExists, err.Error())
	case domain.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, domain.ErrInternal.Error())
	}
}

const idempotencyKeyHeader = "idempotency-key"

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

func (s *OrderServer) createIdempotent(ctx context.Context, key string, req *CreateOrderRequest) (*OrderResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, err := s.guard.Begin(ctx, key, idempotency.RequestHash(methodCreateOrder, body))
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(err, idempotency.ErrRequestInProgress):
		return nil, status.Error(codes.Aborted, err.Error())
	case err != nil:
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	case record != nil:
		return s.replay(*record)
	}

	resp, runErr := s.createOrder(ctx, req)
	if runErr != nil {
		st := status.Convert(runErr)
		if retryable(st.Code()) {
			// Транзакция откатилась, заказа нет: повтор с тем же ключом выполнится заново.
			s.guard.Abandon(ctx, key)
			return nil, runErr
		}
		payload, err := json.Marshal(idempotencyErrorPayload{
			Code:    int32(st.Code()), //nolint:gosec // codes.Code is a bounded enum value.
			Message: st.Message(),
		})
		if err != nil {
			payload = nil
		}
		s.guard.Fail(ctx, key, int(st.Code()), payload)
		return nil, runErr
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotent response")
		return resp, nil
	}
	s.guard.Complete(ctx, key, int(codes.OK), payload)
	return resp, nil
}

// retryable - коды, которые не сохраняются под idempotency-ключом.
func retryable(code codes.Code) bool {
	switch code {
	case codes.Internal, codes.Canceled, codes.DeadlineExceeded, codes.Unavailable:
		return true
	}
	return false
}

func (s *OrderServer) replay(record domain.IdempotencyRecord) (*OrderResponse, error) {
	if record.Status == domain.IdempotencyStatusFailed {
		return nil, decodeIdempotencyFailure(record)
	}
	if len(record.ResponseBody) == 0 {
		return nil, status.Error(codes.Internal, "idempotency cache is empty")
	}
	resp := new(OrderResponse)
	if err := json.Unmarshal(record.ResponseBody, resp); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to decode cached idempotency response")
		return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
	}
	return resp, nil
}

func decodeIdempotencyFailure(record domain.IdempotencyRecord) error {
	const fallback = "previous request with the same idempotency key failed"

	if len(record.ResponseBody) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(record.ResponseBody, &payload); err == nil {
			if code, ok := grpcCodeFromInt(int(payload.Code)); ok && code != codes.OK {
				if payload.Message == "" {
					payload.Message = fallback
				}
				return status.Error(code, payload.Message)
			}
		}
	}
	if code, ok := grpcCodeFromInt(record.StatusCode); ok && code != codes.OK {
		return status.Error(code, fallback)
	}
	return status.Error(codes.Internal, fallback)
}

func grpcCodeFromInt(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true //nolint:gosec // bounded above.
}

func readIdempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(idempotencyKeyHeader)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
