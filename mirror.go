package refcache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Mirror is the process-local copy of selected domains.
//
// Each domain has a slot. A slot with no published snapshot means "not loaded";
// a published empty list means "loaded, empty". Snapshots are immutable: a new
// list is copied, then swapped in with one atomic store, so readers never see a
// half-built list.
type Mirror struct {
	mu    sync.RWMutex
	slots map[string]*slot

	log   Logger
	hooks Hooks
}

type snapshot struct {
	items    any // []T for the slot's domain
	gen      uint64
	loadedAt time.Time
}

type slot struct {
	cur   atomic.Pointer[snapshot]
	ready chan struct{} // closed on first publish
	once  sync.Once

	// pubMu orders publishes with generation bumps.
	pubMu sync.Mutex
	gen   uint64

	// writeMu serializes administrative writes (store + mirror) for the domain.
	writeMu sync.Mutex
}

func NewMirror(log Logger, hooks Hooks) *Mirror {
	return &Mirror{
		slots: make(map[string]*slot),
		log:   coalesce[Logger](log, NopLogger{}),
		hooks: coalesce[Hooks](hooks, NopHooks{}),
	}
}

func (m *Mirror) slot(name string) *slot {
	m.mu.RLock()
	s, ok := m.slots[name]
	m.mu.RUnlock()
	if ok {
		return s
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.slots[name]; ok {
		return s
	}
	s = &slot{ready: make(chan struct{})}
	m.slots[name] = s
	return s
}

// Generation returns the domain's current mirror generation. Background loaders
// take it before fetching and pass it to publish; an administrative write in between makes
// their result stale and it is dropped.
func (m *Mirror) Generation(d Key) uint64 {
	s := m.slot(d.Name())
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	return s.gen
}

// Populated reports whether the domain has been published at least once.
func (m *Mirror) Populated(d Key) bool {
	return m.slot(d.Name()).cur.Load() != nil
}

// LoadedAt returns when the current snapshot was published.
func (m *Mirror) LoadedAt(d Key) (time.Time, bool) {
	snap := m.slot(d.Name()).cur.Load()
	if snap == nil {
		return time.Time{}, false
	}
	return snap.loadedAt, true
}

// TryGet returns the mirrored list without blocking. found=false means the
// domain has not been loaded yet. The slice is shared; do not modify it.
func TryGet[T any](m *Mirror, d Domain[T]) ([]T, bool) {
	snap := m.slot(d.name).cur.Load()
	if snap == nil {
		return nil, false
	}
	v, ok := snap.items.([]T)
	return v, ok
}

// WaitUntilPopulated blocks until the domain is published, timeout elapses, or ctx
// is done. timeout <= 0 waits on ctx alone.
func WaitUntilPopulated[T any](ctx context.Context, m *Mirror, d Domain[T], timeout time.Duration) ([]T, error) {
	s := m.slot(d.name)
	if s.cur.Load() == nil {
		var expired <-chan time.Time
		if timeout > 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			expired = t.C
		}
		select {
		case <-s.ready:
		case <-expired:
			m.hooks.WaitTimedOut(d.name, timeout)
			return nil, &NotPopulatedError{Domain: d.name, TimedOut: true, Waited: timeout}
		case <-ctx.Done():
			return nil, &NotPopulatedError{Domain: d.name, Err: ctx.Err()}
		}
	}
	snap := s.cur.Load()
	v, ok := snap.items.([]T)
	if !ok {
		return nil, &DeserializationError{Domain: d.name, Err: fmt.Errorf("mirrored %T", snap.items)}
	}
	return v, nil
}

// publish stores a copy of items iff the domain generation still equals observedGen.
func publish[T any](m *Mirror, d Domain[T], items []T, observedGen uint64) bool {
	s := m.slot(d.name)
	cp := cloneList(items)

	s.pubMu.Lock()
	if s.gen != observedGen {
		s.pubMu.Unlock()
		m.log.Debug("mirror publish skipped (gen mismatch)", Fields{"domain": d.name, "obs": observedGen})
		return false
	}
	s.cur.Store(&snapshot{items: cp, gen: s.gen, loadedAt: time.Now()})
	s.pubMu.Unlock()

	m.markReady(s, d.name, len(cp))
	return true
}

// replace bumps the generation and publishes items unconditionally.
func replace[T any](m *Mirror, d Domain[T], items []T) {
	s := m.slot(d.name)
	cp := cloneList(items)

	s.pubMu.Lock()
	s.gen++
	s.cur.Store(&snapshot{items: cp, gen: s.gen, loadedAt: time.Now()})
	s.pubMu.Unlock()

	m.markReady(s, d.name, len(cp))
}

// fence bumps the generation so in-flight publishes are dropped. The current
// snapshot stays until the next population: a domain never returns to unloaded.
func (m *Mirror) fence(d Key) {
	s := m.slot(d.Name())
	s.pubMu.Lock()
	s.gen++
	s.pubMu.Unlock()
}

func (m *Mirror) lockWrites(d Key) func() {
	s := m.slot(d.Name())
	s.writeMu.Lock()
	return s.writeMu.Unlock
}

func (m *Mirror) markReady(s *slot, name string, n int) {
	s.once.Do(func() { close(s.ready) })
	m.hooks.MirrorPublished(name, n)
}

func cloneList[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return slices.Clone(items)
}
