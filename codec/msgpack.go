package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack serializes with vmihailenco/msgpack/v5. Field names follow the
// records' json tags, so a list reads the same whichever format stored it.
// Unknown fields fail the decode. The zero value is ready to use.
type Msgpack[V any] struct{}

var _ Codec[[]struct{}] = Msgpack[[]struct{}]{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	dec.DisallowUnknownFields(true)
	err := dec.Decode(&v)
	return v, err
}
