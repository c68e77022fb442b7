// Package config loads refcache settings from a YAML file, an optional .env
// file and REFCACHE_* environment variables (env wins).
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/refcache"
	"github.com/unkn0wn-root/refcache/codec"
	"github.com/unkn0wn-root/refcache/secure"
)

const EnvPrefix = "REFCACHE"

type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Mirror MirrorConfig `mapstructure:"mirror"`
	Crypto CryptoConfig `mapstructure:"crypto"`
	Log    LogConfig    `mapstructure:"log"`
}

type StoreConfig struct {
	Backend      string        `mapstructure:"backend"` // redis | ristretto | bigcache | memory
	Prefix       string        `mapstructure:"prefix"`
	TTL          time.Duration `mapstructure:"ttl"`
	Codec        string        `mapstructure:"codec"` // json | cbor | msgpack
	MaxPayload   int           `mapstructure:"max_payload"`
	LoadTimeout  time.Duration `mapstructure:"load_timeout"`
	MaxCost      int64         `mapstructure:"max_cost"`      // ristretto
	GenNamespace string        `mapstructure:"gen_namespace"` // redis generations
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MirrorConfig struct {
	Domains       []string      `mapstructure:"domains"`
	Interval      time.Duration `mapstructure:"interval"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type KeyConfig struct {
	ID     uint32 `mapstructure:"id"`
	Secret string `mapstructure:"secret"` // base64, 32 bytes decoded
	IV     string `mapstructure:"iv"`     // base64
}

type ContextConfig struct {
	Keys    []KeyConfig `mapstructure:"keys"`
	Primary uint32      `mapstructure:"primary"`
}

type CryptoConfig struct {
	Default     ContextConfig `mapstructure:"default"`
	Query       ContextConfig `mapstructure:"query"`
	StrictEmpty bool          `mapstructure:"strict_empty"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "redis")
	v.SetDefault("store.prefix", "")
	v.SetDefault("store.ttl", refcache.DefaultTTL)
	v.SetDefault("store.codec", string(codec.FormatJSON))
	v.SetDefault("store.max_payload", 0)
	v.SetDefault("store.load_timeout", refcache.DefaultLoadTimeout)
	v.SetDefault("store.max_cost", 64<<20)
	v.SetDefault("store.gen_namespace", "refcache")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mirror.domains", []string{})
	v.SetDefault("mirror.interval", 15*time.Minute)
	v.SetDefault("mirror.retry_interval", 5*time.Second)

	v.SetDefault("crypto.strict_empty", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads path (empty => defaults and env only). A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("config: load .env: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unable to decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis backend"))
		}
	case "ristretto", "bigcache", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if !codec.Format(c.Store.Codec).Valid() {
		errs = append(errs, fmt.Errorf("store.codec: unknown format %q", c.Store.Codec))
	}
	if c.Store.TTL < 0 {
		errs = append(errs, fmt.Errorf("store.ttl: negative %s", c.Store.TTL))
	}
	if c.Store.MaxPayload < 0 {
		errs = append(errs, fmt.Errorf("store.max_payload: negative %d", c.Store.MaxPayload))
	}
	if c.Store.LoadTimeout < 0 {
		errs = append(errs, fmt.Errorf("store.load_timeout: negative %s", c.Store.LoadTimeout))
	}
	for _, d := range c.Mirror.Domains {
		if !refcache.LookupDomain(d) {
			errs = append(errs, fmt.Errorf("mirror.domains: unknown domain %q", d))
		}
	}
	if c.Mirror.Interval < 0 || c.Mirror.RetryInterval < 0 {
		errs = append(errs, errors.New("mirror: intervals must not be negative"))
	}
	if _, err := c.Crypto.Contexts(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Contexts decodes the configured key material. Contexts without keys are
// left out, so a deployment that does not issue tokens needs no secrets.
func (c CryptoConfig) Contexts() ([]secure.Context, error) {
	var out []secure.Context
	for _, e := range []struct {
		name secure.ContextName
		cfg  ContextConfig
	}{
		{secure.Default, c.Default},
		{secure.Query, c.Query},
	} {
		if len(e.cfg.Keys) == 0 {
			continue
		}
		sc := secure.Context{Name: e.name, Primary: e.cfg.Primary}
		for _, k := range e.cfg.Keys {
			key, err := k.decode()
			if err != nil {
				return nil, fmt.Errorf("crypto.%s key %d: %w", e.name, k.ID, err)
			}
			sc.Keys = append(sc.Keys, key)
		}
		out = append(out, sc)
	}
	return out, nil
}

func (k KeyConfig) decode() (secure.Key, error) {
	secret, err := base64.StdEncoding.DecodeString(k.Secret)
	if err != nil {
		return secure.Key{}, fmt.Errorf("secret: %w", err)
	}
	if len(secret) != secure.SecretSize {
		return secure.Key{}, fmt.Errorf("secret: %d bytes, want %d", len(secret), secure.SecretSize)
	}
	iv, err := base64.StdEncoding.DecodeString(k.IV)
	if err != nil {
		return secure.Key{}, fmt.Errorf("iv: %w", err)
	}
	return secure.Key{ID: k.ID, Secret: secret, IV: iv}, nil
}

// String implements fmt.Stringer with secrets masked.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  Store: backend=%s prefix=%q ttl=%s codec=%s\n",
		c.Store.Backend, c.Store.Prefix, c.Store.TTL, c.Store.Codec))
	sb.WriteString(fmt.Sprintf("  Redis: addr=%s db=%d user=%s\n", c.Redis.Addr, c.Redis.DB, c.Redis.Username))
	if c.Redis.Password != "" {
		sb.WriteString("  RedisPassword: ********\n")
	} else {
		sb.WriteString("  RedisPassword: (empty)\n")
	}
	sb.WriteString(fmt.Sprintf("  Mirror: domains=%v interval=%s\n", c.Mirror.Domains, c.Mirror.Interval))
	sb.WriteString(fmt.Sprintf("  Crypto: default keys=%d query keys=%d strict_empty=%v\n",
		len(c.Crypto.Default.Keys), len(c.Crypto.Query.Keys), c.Crypto.StrictEmpty))
	sb.WriteString(fmt.Sprintf("  Log: level=%s development=%v\n", c.Log.Level, c.Log.Development))
	return sb.String()
}
