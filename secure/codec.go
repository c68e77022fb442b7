// Package secure seals short strings (identifiers, query parameters) into
// opaque tokens and hashes inputs for lookup.
//
// Tokens are AES-256-GCM. Each context (Default, Query) has its own keyring;
// the token names the key that sealed it so older keys keep decrypting after
// Rotate. A token sealed under one context never opens under another.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/crypto/hkdf"

	"github.com/unkn0wn-root/refcache/internal/wire"
)

// ContextName selects the key material and text encoding of a token.
type ContextName string

const (
	Default ContextName = "default"
	Query   ContextName = "query" // URL-safe tokens
)

const (
	SecretSize   = 32
	nonceSize    = 12
	aeadOverhead = 16 // GCM tag
	infoPrefix   = "refcache/secure/"
)

var (
	ErrUnknownContext = errors.New("secure: unknown context")
	ErrInvalidKey     = errors.New("secure: invalid key")
)

// Key is one entry of a context's keyring. IV salts the key derivation.
// ID 0 is reserved: Context.Primary uses it to mean "last key".
type Key struct {
	ID     uint32
	Secret []byte // 32 bytes
	IV     []byte
}

// Context configures one cipher context.
type Context struct {
	Name    ContextName
	Keys    []Key
	Primary uint32 // key id used to encrypt; 0 => last key

	// nil picks StdEncoding, or RawURLEncoding for Query.
	Encoding *base64.Encoding
}

type Options struct {
	// StrictEmpty turns off the legacy empty-input passthrough. By default
	// Encrypt of an empty or whitespace-only string returns "" and Decrypt("")
	// returns "". With StrictEmpty, empty input is sealed like any other and an
	// empty token fails to decrypt.
	StrictEmpty bool
}

type keyring struct {
	primary uint32
	aeads   map[uint32]cipher.AEAD
}

type contextState struct {
	name ContextName
	enc  *base64.Encoding
	ring atomic.Pointer[keyring]
	mu   sync.Mutex // serializes Rotate
}

// Codec is safe for concurrent use.
type Codec struct {
	contexts    map[ContextName]*contextState
	passthrough bool
}

func New(contexts []Context, opts Options) (*Codec, error) {
	if len(contexts) == 0 {
		return nil, errors.New("secure: no contexts configured")
	}
	c := &Codec{
		contexts:    make(map[ContextName]*contextState, len(contexts)),
		passthrough: !opts.StrictEmpty,
	}
	for _, cc := range contexts {
		if cc.Name == "" {
			return nil, errors.New("secure: context without name")
		}
		if _, dup := c.contexts[cc.Name]; dup {
			return nil, fmt.Errorf("secure: context %q configured twice", cc.Name)
		}
		ring, err := buildRing(cc)
		if err != nil {
			return nil, err
		}
		st := &contextState{name: cc.Name, enc: encodingFor(cc)}
		st.ring.Store(ring)
		c.contexts[cc.Name] = st
	}
	return c, nil
}

func encodingFor(cc Context) *base64.Encoding {
	switch {
	case cc.Encoding != nil:
		return cc.Encoding
	case cc.Name == Query:
		return base64.RawURLEncoding
	default:
		return base64.StdEncoding
	}
}

func buildRing(cc Context) (*keyring, error) {
	if len(cc.Keys) == 0 {
		return nil, fmt.Errorf("secure: context %q has no keys: %w", cc.Name, ErrInvalidKey)
	}
	r := &keyring{aeads: make(map[uint32]cipher.AEAD, len(cc.Keys))}
	for _, k := range cc.Keys {
		if _, dup := r.aeads[k.ID]; dup {
			return nil, fmt.Errorf("secure: context %q: duplicate key id %d: %w", cc.Name, k.ID, ErrInvalidKey)
		}
		a, err := deriveAEAD(cc.Name, k)
		if err != nil {
			return nil, err
		}
		r.aeads[k.ID] = a
	}
	r.primary = cc.Primary
	if r.primary == 0 {
		r.primary = cc.Keys[len(cc.Keys)-1].ID
	}
	if _, ok := r.aeads[r.primary]; !ok {
		return nil, fmt.Errorf("secure: context %q: primary key %d not in keyring: %w", cc.Name, r.primary, ErrInvalidKey)
	}
	return r, nil
}

// deriveAEAD binds the key to its context: the same secret configured for two
// contexts yields two unrelated ciphers.
func deriveAEAD(name ContextName, k Key) (cipher.AEAD, error) {
	if k.ID == 0 {
		return nil, fmt.Errorf("secure: context %q: key id 0 is reserved: %w", name, ErrInvalidKey)
	}
	if len(k.Secret) != SecretSize {
		return nil, fmt.Errorf("secure: context %q key %d: secret is %d bytes, want %d: %w",
			name, k.ID, len(k.Secret), SecretSize, ErrInvalidKey)
	}
	kdf := hkdf.New(sha256.New, k.Secret, k.IV, []byte(infoPrefix+string(name)))
	sub := make([]byte, SecretSize)
	if _, err := io.ReadFull(kdf, sub); err != nil {
		return nil, fmt.Errorf("secure: derive key: %w", err)
	}
	block, err := aes.NewCipher(sub)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

func (c *Codec) state(name ContextName) (*contextState, error) {
	st, ok := c.contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownContext, name)
	}
	return st, nil
}

// Encrypt seals plaintext under the context's primary key and returns the
// token as base64 text.
func (c *Codec) Encrypt(plaintext string, name ContextName) (string, error) {
	st, err := c.state(name)
	if err != nil {
		return "", err
	}
	if c.passthrough && strings.TrimSpace(plaintext) == "" {
		return "", nil
	}
	raw, err := seal(st, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return st.enc.EncodeToString(raw), nil
}

// Decrypt opens a token produced by Encrypt under the same context. Any
// malformed, foreign or tampered token yields a *DecryptionError.
func (c *Codec) Decrypt(token string, name ContextName) (string, error) {
	st, err := c.state(name)
	if err != nil {
		return "", err
	}
	if c.passthrough && token == "" {
		return "", nil
	}
	raw, err := st.enc.DecodeString(token)
	if err != nil {
		return "", &DecryptionError{Context: name, Reason: "encoding", Err: err}
	}
	pt, err := open(st, raw)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(pt) {
		return "", &DecryptionError{Context: name, Reason: "utf8"}
	}
	return string(pt), nil
}

// EncryptBytes seals b and returns the binary frame (no text encoding).
// The empty-input passthrough does not apply.
func (c *Codec) EncryptBytes(b []byte, name ContextName) ([]byte, error) {
	st, err := c.state(name)
	if err != nil {
		return nil, err
	}
	return seal(st, b)
}

func (c *Codec) DecryptBytes(frame []byte, name ContextName) ([]byte, error) {
	st, err := c.state(name)
	if err != nil {
		return nil, err
	}
	return open(st, frame)
}

// Rotate adds k to the context's keyring and makes it primary. Tokens sealed
// with earlier keys still decrypt.
func (c *Codec) Rotate(name ContextName, k Key) error {
	st, err := c.state(name)
	if err != nil {
		return err
	}
	a, err := deriveAEAD(name, k)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	old := st.ring.Load()
	if _, dup := old.aeads[k.ID]; dup {
		return fmt.Errorf("secure: context %q: key id %d already in keyring: %w", name, k.ID, ErrInvalidKey)
	}
	next := &keyring{primary: k.ID, aeads: make(map[uint32]cipher.AEAD, len(old.aeads)+1)}
	for id, v := range old.aeads {
		next.aeads[id] = v
	}
	next.aeads[k.ID] = a
	st.ring.Store(next)
	return nil
}

// PrimaryKeyID returns the id of the key new tokens are sealed with.
func (c *Codec) PrimaryKeyID(name ContextName) (uint32, error) {
	st, err := c.state(name)
	if err != nil {
		return 0, err
	}
	return st.ring.Load().primary, nil
}

func seal(st *contextState, pt []byte) ([]byte, error) {
	ring := st.ring.Load()
	a := ring.aeads[ring.primary]

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secure: nonce: %w", err)
	}
	sealed := a.Seal(nil, nonce, pt, []byte(st.name))
	return wire.EncodeToken(wire.Token{KeyID: ring.primary, Nonce: nonce, Sealed: sealed}), nil
}

func open(st *contextState, frame []byte) ([]byte, error) {
	ring := st.ring.Load()
	tok, err := wire.DecodeToken(frame, nonceSize, aeadOverhead)
	if err != nil {
		return nil, &DecryptionError{Context: st.name, Reason: "frame", Err: err}
	}
	a, ok := ring.aeads[tok.KeyID]
	if !ok {
		return nil, &DecryptionError{Context: st.name, Reason: "unknown key"}
	}
	pt, err := a.Open(nil, tok.Nonce, tok.Sealed, []byte(st.name))
	if err != nil {
		return nil, &DecryptionError{Context: st.name, Reason: "authentication", Err: err}
	}
	if pt == nil {
		pt = []byte{}
	}
	return pt, nil
}
