package config

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/refcache/secure"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "refcache.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Store.TTL)
	assert.Equal(t, time.Minute, cfg.Store.LoadTimeout)
	assert.Equal(t, "json", cfg.Store.Codec)
	assert.Equal(t, 15*time.Minute, cfg.Mirror.Interval)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	secret := b64(bytes.Repeat([]byte{1}, 32))
	p := writeFile(t, `
store:
  backend: memory
  prefix: "crm:"
  ttl: 2h
  codec: cbor
mirror:
  domains: [States, Zips]
  interval: 1m
crypto:
  default:
    primary: 2
    keys:
      - id: 1
        secret: `+secret+`
        iv: `+b64([]byte("iv1"))+`
      - id: 2
        secret: `+secret+`
        iv: `+b64([]byte("iv2"))+`
  query:
    keys:
      - id: 1
        secret: `+secret+`
`)
	t.Setenv("REFCACHE_STORE_PREFIX", "env:")
	t.Setenv("REFCACHE_LOG_LEVEL", "debug")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "env:", cfg.Store.Prefix, "env must override the file")
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Store.TTL)
	assert.Equal(t, "cbor", cfg.Store.Codec)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"States", "Zips"}, cfg.Mirror.Domains)

	ctxs, err := cfg.Crypto.Contexts()
	require.NoError(t, err)
	require.Len(t, ctxs, 2)
	assert.Equal(t, secure.Default, ctxs[0].Name)
	assert.Equal(t, uint32(2), ctxs[0].Primary)
	require.Len(t, ctxs[0].Keys, 2)
	assert.Equal(t, "iv2", string(ctxs[0].Keys[1].IV))

	_, err = secure.New(ctxs, secure.Options{StrictEmpty: cfg.Crypto.StrictEmpty})
	require.NoError(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &Config{
		Store:  StoreConfig{Backend: "etcd", Codec: "xml", TTL: -time.Second},
		Mirror: MirrorConfig{Domains: []string{"States", "Planets"}},
		Crypto: CryptoConfig{Default: ContextConfig{Keys: []KeyConfig{{ID: 1, Secret: b64([]byte("short"))}}}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"etcd", "xml", "store.ttl", "Planets", "crypto.default"} {
		assert.Contains(t, msg, want)
	}
	assert.NotContains(t, msg, `"States"`, "known domain rejected")
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := &Config{Redis: RedisConfig{Addr: "r:6379", Password: "pa55"}}
	s := cfg.String()
	assert.NotContains(t, s, "pa55")
	assert.Contains(t, s, "RedisPassword: ********")
}
