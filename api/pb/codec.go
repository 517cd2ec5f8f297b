package pb

import (
	"fmt"

	"google.golang.org/grpc"
)

// Message is implemented by every type in this package.
type Message interface {
	MarshalWire() ([]byte, error)
	UnmarshalWire([]byte) error
}

// Codec is a grpc encoding.Codec for the messages in this package.
// It keeps the "proto" content subtype, so stubs generated from
// orderbook.proto in any language can talk to it.
type Codec struct{}

func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("pb: cannot marshal %T", v)
	}
	return m.MarshalWire()
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("pb: cannot unmarshal into %T", v)
	}
	return m.UnmarshalWire(data)
}

// ServerOption installs Codec on a grpc.Server.
func ServerOption() grpc.ServerOption {
	return grpc.ForceServerCodec(Codec{})
}

// CallOption installs Codec on a client call.
func CallOption() grpc.CallOption {
	return grpc.ForceCodec(Codec{})
}
