// Package wire defines the gob-encodable payloads carried inside
// transport.Message.Body for the read, write, and read-repair verbs —
// the request/response shapes the coordinators and the per-node data
// handler agree on.
package wire

import (
	"bytes"
	"encoding/gob"

	"github.com/ringdb/ringdb/internal/localstore"
)

// ReadRequest is the body of a VerbRead message.
type ReadRequest struct {
	Table      string
	Key        string
	DigestOnly bool
}

// ReadReply is the body of a VerbReadResponse message: either Data (full
// column-family version) or, when the request asked for a digest, only
// Digest is populated.
type ReadReply struct {
	Found      bool
	DigestOnly bool
	Digest     []byte
	Columns    map[string]localstore.Mutation
}

// MutationRequest is the body of a VerbMutation or VerbReadRepair
// message: a single column write routed to one replica.
type MutationRequest struct {
	Mutation localstore.Mutation
}

// MutationAck is the body of the reply to a VerbMutation message.
type MutationAck struct {
	Success bool
	Error   string
}

// Encode gob-encodes v into a byte slice for use as a Message.Body.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode gob-decodes data into v.
func Decode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
