// Package rpc exposes the workflow engine's RPC surface (§6) over
// google.golang.org/grpc. No protoc toolchain is available in this build,
// so the request/response messages are plain Go structs carried by a
// hand-registered JSON codec instead of generated protobuf types; the
// transport, streaming, and interceptor machinery are still grpc's own.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec over JSON, so
// grpc.Server/grpc.ClientConn can carry plain structs instead of
// protoc-generated proto.Message values.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
