package transport

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// gobCodec is a grpc.encoding.Codec backed by encoding/gob instead of a
// protoc-generated protobuf codec. This repo cannot run protoc/go
// generate as part of this exercise, so the Transport verbs are carried
// as plain Go structs through grpc's pluggable codec mechanism — the
// same ClientConn.Invoke/NewStream machinery protoc-gen-go-grpc stubs
// wrap, just without the generated wrapper code.
type gobCodec struct{}

const gobCodecName = "gob"

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return gobCodecName }

func init() {
	encoding.RegisterCodec(gobCodec{})
}
