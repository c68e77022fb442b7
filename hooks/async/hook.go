// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    LoaderEvery: 10, // sample logs: ~every 10th loader run
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	f, _ := refcache.New(refcache.Options{
//	    Provider: provider,
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/refcache"
)

// Hooks forwards events to inner on worker goroutines. Events are dropped when
// the queue is full; Dropped counts them.
type Hooks struct {
	inner   refcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards q against send-after-close
	closed  bool
	dropped atomic.Uint64
}

var _ refcache.Hooks = (*Hooks)(nil)

func New(inner refcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) LoaderInvoked(d string)       { h.try(func() { h.inner.LoaderInvoked(d) }) }
func (h *Hooks) WriteSkipped(d, r string)     { h.try(func() { h.inner.WriteSkipped(d, r) }) }
func (h *Hooks) ProviderSetRejected(k string) { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) DecodeFailed(d string, err error) {
	h.try(func() { h.inner.DecodeFailed(d, err) })
}
func (h *Hooks) StoreUnavailable(d, op string, err error) {
	h.try(func() { h.inner.StoreUnavailable(d, op, err) })
}
func (h *Hooks) InvalidateOutage(d string, be, de error) {
	h.try(func() { h.inner.InvalidateOutage(d, be, de) })
}
func (h *Hooks) MirrorPublished(d string, n int) {
	h.try(func() { h.inner.MirrorPublished(d, n) })
}
func (h *Hooks) MirrorLoadFailed(d string, err error) {
	h.try(func() { h.inner.MirrorLoadFailed(d, err) })
}
func (h *Hooks) WaitTimedOut(d string, waited time.Duration) {
	h.try(func() { h.inner.WaitTimedOut(d, waited) })
}
