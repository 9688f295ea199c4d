package grpcwire

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec is a minimal gRPC codec for JSON payloads, letting the
// Coordination service skip protobuf codegen entirely. Grounded on the
// teacher's pkg/transport/grpc/jsoncodec.go (identical technique, renamed).
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(b []byte, v interface{}) error { return json.Unmarshal(b, v) }
func (jsonCodec) Name() string                            { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
