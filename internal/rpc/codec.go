// Package rpc defines the wire contract shared with the sibling audio, asr
// and alignment services: message shapes, the JSON gRPC codec both sides
// speak, and the service descriptors.
//
// The services exchange JSON payloads over gRPC instead of protobuf, so the
// message types are plain structs and the codec is registered with
// grpc/encoding under the "json" content subtype.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype used for all calls.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
