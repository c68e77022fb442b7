package secure

import (
	"crypto/sha1"
	"crypto/sha512"
	"errors"
	"fmt"
)

var ErrUnknownAlgorithm = errors.New("secure: unknown hash algorithm")

type Algorithm int

const (
	Weak   Algorithm = iota + 1 // SHA-1, 20 bytes
	Strong                      // SHA-512, 64 bytes
)

func (a Algorithm) String() string {
	switch a {
	case Weak:
		return "weak"
	case Strong:
		return "strong"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// Hasher computes unsalted digests of UTF-8 input. Equal inputs always give
// equal digests, so the result can be used as a lookup key. It is not a
// password hash; use Argon2 for credentials.
type Hasher struct{}

func (Hasher) Hash(input string, alg Algorithm) ([]byte, error) {
	switch alg {
	case Weak:
		sum := sha1.Sum([]byte(input))
		return sum[:], nil
	case Strong:
		sum := sha512.Sum512([]byte(input))
		return sum[:], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, alg)
	}
}
