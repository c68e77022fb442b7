// Package bootstrap wires a refcache deployment from a config.Config.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/refcache"
	"github.com/unkn0wn-root/refcache/codec"
	"github.com/unkn0wn-root/refcache/config"
	gen "github.com/unkn0wn-root/refcache/genstore"
	zaplog "github.com/unkn0wn-root/refcache/log/zap"
	pr "github.com/unkn0wn-root/refcache/provider"
	bcp "github.com/unkn0wn-root/refcache/provider/bigcache"
	"github.com/unkn0wn-root/refcache/provider/memory"
	rp "github.com/unkn0wn-root/refcache/provider/redis"
	rcp "github.com/unkn0wn-root/refcache/provider/ristretto"
	"github.com/unkn0wn-root/refcache/secure"
)

const pingTimeout = 3 * time.Second

// Binding attaches a source-of-truth loader to a domain listed in
// mirror.domains. Build one with Bind.
type Binding struct {
	name     string
	register func(*refcache.Facade)
}

func Bind[T any](d refcache.Domain[T], loader refcache.Loader[T]) Binding {
	return Binding{
		name:     d.Name(),
		register: func(f *refcache.Facade) { refcache.MirrorDomain(f, d, loader) },
	}
}

type Options struct {
	// Redis is used instead of dialing redis.addr. It is not closed by App.
	Redis goredis.UniversalClient
	// Logger replaces the one built from the log section.
	Logger   *zap.Logger
	Hooks    refcache.Hooks
	Bindings []Binding
}

// App holds the wired components. Codec is nil when no crypto context has keys.
type App struct {
	Cache  *refcache.Facade
	Codec  *secure.Codec
	Hasher secure.Hasher
	Logger *zap.Logger

	ownedRedis goredis.UniversalClient
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		if logger, err = buildLogger(cfg.Log); err != nil {
			return nil, err
		}
	}
	app := &App{Logger: logger}

	prov, gs, err := app.backend(ctx, cfg, opts.Redis)
	if err != nil {
		app.closeRedis()
		return nil, err
	}

	facade, err := refcache.New(refcache.Options{
		Provider:       prov,
		Prefix:         cfg.Store.Prefix,
		TTL:            cfg.Store.TTL,
		Format:         codec.Format(cfg.Store.Codec),
		MaxDecode:      cfg.Store.MaxPayload,
		LoadTimeout:    cfg.Store.LoadTimeout,
		GenStore:       gs,
		MirrorInterval: cfg.Mirror.Interval,
		RetryInterval:  cfg.Mirror.RetryInterval,
		Logger:         zaplog.New(logger),
		Hooks:          opts.Hooks,
	})
	if err != nil {
		app.closeRedis()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	app.Cache = facade

	bound := make(map[string]Binding, len(opts.Bindings))
	for _, b := range opts.Bindings {
		bound[b.name] = b
	}
	for _, name := range cfg.Mirror.Domains {
		b, ok := bound[name]
		if !ok {
			_ = app.Close(ctx)
			return nil, fmt.Errorf("bootstrap: mirrored domain %q has no loader binding", name)
		}
		b.register(facade)
	}

	ctxs, err := cfg.Crypto.Contexts()
	if err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if len(ctxs) > 0 {
		if app.Codec, err = secure.New(ctxs, secure.Options{StrictEmpty: cfg.Crypto.StrictEmpty}); err != nil {
			_ = app.Close(ctx)
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	logger.Info("refcache ready",
		zap.String("backend", cfg.Store.Backend),
		zap.Strings("mirrored", cfg.Mirror.Domains),
		zap.Bool("crypto", app.Codec != nil))
	return app, nil
}

func (a *App) backend(ctx context.Context, cfg *config.Config, shared goredis.UniversalClient) (pr.Provider, gen.GenStore, error) {
	switch cfg.Store.Backend {
	case "redis":
		client := shared
		if client == nil {
			client = goredis.NewClient(&goredis.Options{
				Addr:     cfg.Redis.Addr,
				Username: cfg.Redis.Username,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			a.ownedRedis = client
		}
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := client.Ping(pctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("bootstrap: redis ping %s: %w", cfg.Redis.Addr, err)
		}
		p, err := rp.New(rp.Config{Client: client})
		if err != nil {
			return nil, nil, err
		}
		return p, gen.NewRedisGenStore(client, cfg.Store.GenNamespace), nil

	case "ristretto":
		p, err := rcp.New(rcp.Config{
			NumCounters: 1e5,
			MaxCost:     cfg.Store.MaxCost,
			BufferItems: 64,
		})
		return p, nil, err

	case "bigcache":
		// bigcache has one window for all entries
		p, err := bcp.New(bcp.Config{LifeWindow: ttlOrDefault(cfg.Store.TTL), CleanWindow: time.Minute})
		return p, nil, err

	case "memory":
		return memory.New(nil), nil, nil
	}
	return nil, nil, fmt.Errorf("bootstrap: unknown backend %q", cfg.Store.Backend)
}

func ttlOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return refcache.DefaultTTL
	}
	return d
}

func buildLogger(lc config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if lc.Level != "" {
		lvl, err := zap.ParseAtomicLevel(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: log.level: %w", err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}

// Start begins background mirror population.
func (a *App) Start(ctx context.Context) { a.Cache.Start(ctx) }

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close(ctx))
	}
	errs = append(errs, a.closeRedis())
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}

func (a *App) closeRedis() error {
	if a.ownedRedis == nil {
		return nil
	}
	err := a.ownedRedis.Close()
	a.ownedRedis = nil
	return err
}
