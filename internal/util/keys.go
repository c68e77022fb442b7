package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// StorageKey returns the provider key for a domain. An empty prefix keeps the
// domain name as the key, which is what other consumers of the shared store expect.
func StorageKey(prefix, domain string) string {
	if prefix == "" {
		return domain
	}
	return prefix + domain
}

// ShortHash returns the first 16 hex chars of sha256(s). Used to keep raw keys out of logs.
func ShortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
