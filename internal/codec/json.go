package codec

import (
	"encoding/json"
	"io"
)

const jsonName = "json"

// jsonCodec frames values as a stream of JSON texts, one per line on output.
// Input accepts any whitespace between values.
type jsonCodec struct{}

// JSON returns the JSON codec.
//
// Numbers are decoded as json.Number so that opaque bodies round-trip
// without losing integer precision.
func JSON() Codec {
	return jsonCodec{}
}

func (jsonCodec) Name() string { return jsonName }

func (jsonCodec) NewDecoder(r io.Reader) Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	return &jsonDecoder{dec: dec}
}

func (jsonCodec) NewEncoder(w io.Writer) Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	return enc
}

type jsonDecoder struct {
	dec *json.Decoder
}

func (d *jsonDecoder) Decode() (any, error) {
	var v any
	if err := d.dec.Decode(&v); err != nil {
		return nil, decodeErr(jsonName, err)
	}

	return v, nil
}
