package codec

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errTrailingData = errors.New("codec: trailing data after JSON value")

// JSON stores values as UTF-8 JSON, readable by any consumer of the shared store.
// Decoding rejects object fields the target type does not declare, so a list
// written for another record type fails instead of decoding to zero values.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var zero V
		return zero, err
	}
	if dec.More() {
		var zero V
		return zero, errTrailingData
	}
	return v, nil
}
