package grpcsvc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Сообщения OrderService передаются как google.protobuf.Struct через стандартный proto-кодек.
// Поля Struct совпадают с JSON-представлением Go-структур запроса и ответа.

func toStruct(msg any) (*structpb.Struct, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("convert %T to struct: %w", msg, err)
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, dst any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("convert struct to %T: %w", dst, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %T: %w", dst, err)
	}
	return nil
}

// decodeRequest разбирает входящее сообщение. Несовпадение типов полей - ошибка клиента.
func decodeRequest(in *structpb.Struct, dst any) error {
	if err := fromStruct(in, dst); err != nil {
		return status.Error(codes.InvalidArgument, "malformed request message")
	}
	return nil
}

func encodeResponse(msg any) (*structpb.Struct, error) {
	out, err := toStruct(msg)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
