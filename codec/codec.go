package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Format names a payload encoding. JSON is the default and the only format other
// consumers of the shared store are guaranteed to read.
type Format string

const (
	FormatJSON    Format = "json"
	FormatCBOR    Format = "cbor"
	FormatMsgpack Format = "msgpack"
)

// New returns a codec for V in format f. maxDecode > 0 wraps it in a LimitCodec.
func New[V any](f Format, maxDecode int) (Codec[V], error) {
	var inner Codec[V]
	switch f {
	case "", FormatJSON:
		inner = JSON[V]{}
	case FormatCBOR:
		c, err := NewCBOR[V]()
		if err != nil {
			return nil, err
		}
		inner = c
	case FormatMsgpack:
		inner = Msgpack[V]{}
	default:
		return nil, fmt.Errorf("codec: unknown format %q", f)
	}
	if maxDecode > 0 {
		return LimitCodec[V]{Inner: inner, MaxDecode: maxDecode}, nil
	}
	return inner, nil
}

// Valid reports whether f is a known format (empty means JSON).
func (f Format) Valid() bool {
	switch f {
	case "", FormatJSON, FormatCBOR, FormatMsgpack:
		return true
	}
	return false
}
