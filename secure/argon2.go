package secure

import (
	"errors"

	"github.com/alexedwards/argon2id"
)

// Argon2 hashes credentials with a random salt into an encoded
// $argon2id$v=19$m=...,t=...,p=...$salt$hash string suitable for storage.
type Argon2 struct {
	params *argon2id.Params
}

func NewArgon2() *Argon2 { return &Argon2{params: argon2id.DefaultParams} }

func NewArgon2WithParams(p *argon2id.Params) *Argon2 { return &Argon2{params: p} }

func (a *Argon2) Hash(plain string) (string, error) {
	if a == nil || a.params == nil {
		return "", errors.New("secure: argon2id params not set")
	}
	return argon2id.CreateHash(plain, a.params)
}

// Verify reports whether plain matches encoded. The parameters are read from
// encoded, so hashes made with older parameters still verify.
func (a *Argon2) Verify(plain, encoded string) (bool, error) {
	return argon2id.ComparePasswordAndHash(plain, encoded)
}
