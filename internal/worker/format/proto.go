package format

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
)

// Proto is a Format for procedures whose schema is a generated protobuf
// message, matching "application/x-protobuf" and "application/protobuf".
// A Decode target must already be a concrete proto.Message; a procedure
// using this Format supplies one via Procedure.InputFactory.
type Proto struct{}

// NewProto constructs the Proto Format.
func NewProto() *Proto { return &Proto{} }

func (f *Proto) Name() string { return "proto" }

func (f *Proto) Supports(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "protobuf") || strings.Contains(ct, "x-proto")
}

func (f *Proto) Encode(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("neemata: proto format cannot encode %T, not a proto.Message", v)
	}
	return proto.Marshal(msg)
}

func (f *Proto) Decode(data []byte, target any) error {
	msg, ok := target.(proto.Message)
	if !ok {
		return fmt.Errorf("neemata: proto format cannot decode into %T, not a proto.Message", target)
	}
	return proto.Unmarshal(data, msg)
}

// NewMessage instantiates a zero-value protobuf message of type T, for use
// as a Decode target built from a procedure's InputFactory.
func NewMessage[T proto.Message]() (T, error) {
	var zero T
	msgType := zero.ProtoReflect().Type()
	instance, ok := msgType.New().Interface().(T)
	if !ok {
		return zero, fmt.Errorf("neemata: cannot instantiate proto message of type %T", zero)
	}
	return instance, nil
}

// MustNewMessage instantiates the protobuf message and panics if the type
// cannot be created. Intended for use at registration time, not per-call.
func MustNewMessage[T proto.Message]() T {
	msg, err := NewMessage[T]()
	if err != nil {
		panic(err)
	}
	return msg
}
