// Package message defines the transactor wire envelope and classifies
// inbound frames.
//
// Wire format:
//
//	{"op": "request",  "id": 1, "body": ...}
//	{"op": "response", "id": 1, "body": ...}
//	{"op": "stop"}
package message

// Op names the operation carried by an envelope.
type Op string

const (
	// OpRequest asks the receiver to serve body and reply with the same id.
	OpRequest Op = "request"
	// OpResponse answers an earlier request with a matching id.
	OpResponse Op = "response"
	// OpStop asks the receiver to terminate its background loop.
	OpStop Op = "stop"
)

// Field names used on the wire.
const (
	FieldOp   = "op"
	FieldID   = "id"
	FieldBody = "body"
)

// Envelope is the outbound shape of request and response frames.
// Field order matches the wire documentation.
type Envelope struct {
	Op   Op     `json:"op" cbor:"op"`
	ID   uint64 `json:"id" cbor:"id"`
	Body any    `json:"body" cbor:"body"`
}

// StopEnvelope is the outbound shape of a stop frame.
type StopEnvelope struct {
	Op Op `json:"op" cbor:"op"`
}

// NewRequest builds a request frame.
func NewRequest(id uint64, body any) *Envelope {
	return &Envelope{Op: OpRequest, ID: id, Body: body}
}

// NewResponse builds a response frame.
func NewResponse(id uint64, body any) *Envelope {
	return &Envelope{Op: OpResponse, ID: id, Body: body}
}

// NewStop builds a stop frame.
func NewStop() *StopEnvelope {
	return &StopEnvelope{Op: OpStop}
}
