package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/refcache/provider"
)

// Provider keeps domain payloads in a process-local ristretto cache. Useful for
// single-node deployments where no shared store is available.
type Provider struct {
	c *rc.Cache
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Cost in Ristretto is provided by the caller (refcache passes payload size per Set).
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set waits for the write buffer to drain so a following Get observes the value.
// Reference data is written rarely; read-your-writes matters more than Set latency.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	ok := p.c.SetWithTTL(key, value, cost, ttl)
	p.c.Wait()
	return ok, nil
}

func (p *Provider) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := p.Get(ctx, key)
	return ok, err
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Helper to expose metrics if desired by the application (not part of provider.Provider).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
