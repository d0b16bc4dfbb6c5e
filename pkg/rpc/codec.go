package rpc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// gobCodec lets TaskRunnerService's messages be plain Go structs instead of
// protoc-generated types: it registers under the name "proto", the content
// subtype grpc-go selects by default, so Server.Start needs no
// grpc.CallContentSubtype wiring on the client side either. With no protoc
// toolchain available to generate bindings for a new service, gob (standard
// library, documented as the substitute in DESIGN.md) stands in for
// protobuf's wire encoding while google.golang.org/grpc remains the
// transport.
type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("rpc: gob marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("rpc: gob unmarshal: %w", err)
	}
	return nil
}

func (gobCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(gobCodec{})
}
