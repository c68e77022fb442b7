package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version byte = 1
	hdrLen       = 1 + 4 // ver | keyID
)

var ErrCorrupt = errors.New("refcache: corrupt token frame")

// Token: ver(1) | keyID(u32 be) | nonce(nonceLen) | sealed(rest)
//
// The frame names the key that sealed it, never the context: the context is
// agreed out-of-band between the encrypting and decrypting call sites.
type Token struct {
	KeyID  uint32
	Nonce  []byte
	Sealed []byte
}

func EncodeToken(t Token) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(t.Nonce) + len(t.Sealed))

	buf.WriteByte(version)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], t.KeyID)
	buf.Write(u4[:])

	buf.Write(t.Nonce)
	buf.Write(t.Sealed)
	return buf.Bytes()
}

// DecodeToken splits a frame. nonceLen is fixed by the cipher; minSealed is the
// smallest valid sealed body (the AEAD tag size). Returned slices alias b.
func DecodeToken(b []byte, nonceLen, minSealed int) (Token, error) {
	if nonceLen < 0 || minSealed < 0 {
		return Token{}, ErrCorrupt
	}
	if len(b) < hdrLen+nonceLen+minSealed || b[0] != version {
		return Token{}, ErrCorrupt
	}
	off := 1

	keyID := binary.BigEndian.Uint32(b[off : off+4])
	off += 4

	nonce := b[off : off+nonceLen]
	off += nonceLen

	return Token{KeyID: keyID, Nonce: nonce, Sealed: b[off:]}, nil
}
