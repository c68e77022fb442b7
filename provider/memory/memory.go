// Package memory is an in-process provider with per-entry TTL driven by an
// injectable clock. Used for tests and single-process hosts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	pr "github.com/unkn0wn-root/refcache/provider"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Provider struct {
	mu    sync.Mutex
	m     map[string]entry
	clock clockwork.Clock
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Adder    = (*Provider)(nil)
)

// New returns an empty provider. A nil clock means the real clock.
func New(clock clockwork.Clock) *Provider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Provider{m: make(map[string]entry), clock: clock}
}

// live must be called with mu held.
func (p *Provider) live(key string) (entry, bool) {
	e, ok := p.m[key]
	if !ok {
		return entry{}, false
	}
	if !e.exp.IsZero() && !p.clock.Now().Before(e.exp) {
		delete(p.m, key)
		return entry{}, false
	}
	return e, true
}

func (p *Provider) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return p.clock.Now().Add(ttl)
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p.mu.Lock()
	e, ok := p.live(key)
	p.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	cp := append([]byte(nil), value...)
	p.mu.Lock()
	p.m[key] = entry{v: cp, exp: p.expiry(ttl)}
	p.mu.Unlock()
	return true, nil
}

func (p *Provider) Add(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	cp := append([]byte(nil), value...)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.live(key); ok {
		return false, nil
	}
	p.m[key] = entry{v: cp, exp: p.expiry(ttl)}
	return true, nil
}

func (p *Provider) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	_, ok := p.live(key)
	p.mu.Unlock()
	return ok, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

// TTL returns the remaining lifetime of key; ok=false when missing or without expiry.
func (p *Provider) TTL(key string) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.live(key)
	if !ok || e.exp.IsZero() {
		return 0, false
	}
	return e.exp.Sub(p.clock.Now()), true
}

func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

func (p *Provider) Close(context.Context) error { return nil }
