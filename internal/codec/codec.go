// Package codec defines the frame codec boundary for the transactor.
//
// A Codec turns a byte stream into a sequence of structured values and back.
// Decoders produce the generic shape encoding/json produces for `any`
// (map[string]any, []any, string, bool, nil, and a numeric type), which is
// what the message dispatcher inspects.
package codec

import (
	stderrors "errors"
	"io"

	"github.com/wagiedev/transactor-go/internal/errors"
)

// Decoder reads one frame at a time from an inbound stream.
type Decoder interface {
	// Decode blocks until one complete value has been read.
	// It returns io.EOF when the stream ends cleanly between frames.
	// Any other error leaves the decoder unusable.
	Decode() (any, error)
}

// Encoder writes one frame at a time to an outbound stream.
//
// Encoders are not safe for concurrent use; callers serialize access.
type Encoder interface {
	Encode(v any) error
}

// Codec creates decoders and encoders for one wire encoding.
type Codec interface {
	Name() string
	NewDecoder(r io.Reader) Decoder
	NewEncoder(w io.Writer) Encoder
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, bool) {
	switch name {
	case jsonName:
		return JSON(), true
	case cborName:
		return CBOR(), true
	default:
		return nil, false
	}
}

// decodeErr maps a raw decoder error onto the codec error taxonomy.
func decodeErr(codec string, err error) error {
	if stderrors.Is(err, io.EOF) {
		return io.EOF
	}

	return &errors.DecodeError{Codec: codec, Err: err}
}
