package kafka

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoHandler decodes the value into a fresh M. Undecodable payloads are
// reported as ErrPoison.
func ProtoHandler[M proto.Message](ctor func() M, handle func(context.Context, []byte, M) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		msg := ctor()
		if err := proto.Unmarshal(value, msg); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrPoison, proto.MessageName(msg), err)
		}
		return handle(ctx, key, msg)
	}
}

// CheckEventHandler decodes messages written by CheckEventsKafka.
func CheckEventHandler(handle func(ctx context.Context, key []byte, fields map[string]any) error) Handler {
	return ProtoHandler(
		func() *structpb.Struct { return &structpb.Struct{} },
		func(ctx context.Context, key []byte, s *structpb.Struct) error {
			return handle(ctx, key, s.AsMap())
		},
	)
}
