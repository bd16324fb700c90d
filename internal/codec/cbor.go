package codec

import (
	stderrors "errors"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/wagiedev/transactor-go/internal/errors"
)

const cborName = "cbor"

var (
	cborDecMode = mustDecMode()
	cborEncMode = mustEncMode()
)

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}

	return dm
}

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	return em
}

// cborCodec frames values as a sequence of CBOR data items (RFC 8742).
type cborCodec struct{}

// CBOR returns the CBOR codec.
//
// Maps decode to map[string]any; unsigned integers decode to uint64 and
// negative integers to int64. An item that cannot take that shape, such as a
// map with non-string keys, yields a recoverable *errors.DecodeError.
func CBOR() Codec {
	return cborCodec{}
}

func (cborCodec) Name() string { return cborName }

func (cborCodec) NewDecoder(r io.Reader) Decoder {
	return &cborDecoder{dec: cborDecMode.NewDecoder(r)}
}

func (cborCodec) NewEncoder(w io.Writer) Encoder {
	return cborEncMode.NewEncoder(w)
}

type cborDecoder struct {
	dec *cbor.Decoder
}

func (d *cborDecoder) Decode() (any, error) {
	var v any
	if err := d.dec.Decode(&v); err != nil {
		// A well-formed item that does not fit the decoded shape, such as a
		// map with integer keys, has already been consumed.
		if _, ok := stderrors.AsType[*cbor.UnmarshalTypeError](err); ok {
			return nil, &errors.DecodeError{Codec: cborName, Err: err, Recoverable: true}
		}

		return nil, decodeErr(cborName, err)
	}

	return v, nil
}
