package refcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/refcache/provider"
)

// recHooks counts events as "event:domain[:detail]".
type recHooks struct {
	mu sync.Mutex
	n  map[string]int
}

func newRecHooks() *recHooks { return &recHooks{n: make(map[string]int)} }

func (h *recHooks) inc(parts ...any) {
	k := fmt.Sprint(parts[0])
	for _, p := range parts[1:] {
		k += ":" + fmt.Sprint(p)
	}
	h.mu.Lock()
	h.n[k]++
	h.mu.Unlock()
}

func (h *recHooks) count(k string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n[k]
}

func (h *recHooks) LoaderInvoked(d string)                 { h.inc("loader", d) }
func (h *recHooks) WriteSkipped(d, r string)               { h.inc("skip", d, r) }
func (h *recHooks) ProviderSetRejected(k string)           { h.inc("rejected", k) }
func (h *recHooks) StoreUnavailable(d, op string, _ error) { h.inc("unavailable", d, op) }
func (h *recHooks) DecodeFailed(d string, _ error)         { h.inc("decode", d) }
func (h *recHooks) InvalidateOutage(d string, _, _ error)  { h.inc("outage", d) }
func (h *recHooks) MirrorPublished(d string, _ int)        { h.inc("published", d) }
func (h *recHooks) MirrorLoadFailed(d string, _ error)     { h.inc("mirror_failed", d) }
func (h *recHooks) WaitTimedOut(d string, _ time.Duration) { h.inc("wait_timeout", d) }

var errDown = errors.New("connection refused")

// downProvider fails every call like an unreachable server.
type downProvider struct{}

var _ pr.Provider = downProvider{}

func (downProvider) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errDown }
func (downProvider) Set(context.Context, string, []byte, int64, time.Duration) (bool, error) {
	return false, errDown
}
func (downProvider) Exists(context.Context, string) (bool, error) { return false, errDown }
func (downProvider) Del(context.Context, string) error            { return errDown }
func (downProvider) Close(context.Context) error                  { return nil }

// rejectingProvider accepts reads but refuses writes, like an evicting cache under pressure.
type rejectingProvider struct{ downProvider }

func (rejectingProvider) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (rejectingProvider) Set(context.Context, string, []byte, int64, time.Duration) (bool, error) {
	return false, nil
}
