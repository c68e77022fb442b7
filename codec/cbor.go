package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// maxListElements bounds arrays accepted on decode. The largest domains (zip
// codes) hold tens of thousands of rows; the library default is lower.
const maxListElements = 1 << 21

// CBOR serializes domain lists with fxamacker/cbor in Core Deterministic
// encoding (RFC 8949), so equal lists always produce equal payloads.
// Fields the target type does not declare fail the decode.
// Build it with NewCBOR; the zero value is not usable.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[[]struct{}] = CBOR[[]struct{}]{}

func NewCBOR[V any]() (CBOR[V], error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dm, err := cbor.DecOptions{
		MaxArrayElements:  maxListElements,
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
