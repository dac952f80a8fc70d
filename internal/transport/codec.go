// Package transport carries raft.Message values between cluster members
// over gRPC. There is no protoc-generated client/server pair: the wire
// shapes are fixed by internal/raft's own codec (spec §9 "Serialization"),
// so the gRPC layer only needs to move opaque byte frames, not typed
// protobuf messages.
package transport

import (
	"google.golang.org/grpc/encoding"
)

const codecName = "raftbytes"

// rawBytesCodec hands encoding.Codec's Marshal/Unmarshal straight through
// to the wire-format bytes the caller already produced with
// raft.EncodeMessage, instead of running them through a protobuf
// descriptor. Registering it under a distinct name keeps the default
// "proto" codec available for any other service sharing the process.
type rawBytesCodec struct{}

func (rawBytesCodec) Marshal(v interface{}) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return v.([]byte), nil
	}
	return *b, nil
}

func (rawBytesCodec) Unmarshal(data []byte, v interface{}) error {
	b, ok := v.(*[]byte)
	if !ok {
		return nil
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (rawBytesCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(rawBytesCodec{})
}
