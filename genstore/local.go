package genstore

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type localGen struct {
	gen     uint64
	touched time.Time
}

// LocalGenStore keeps generations in-process (default). It fences loads in this
// process only; use RedisGenStore when several replicas write the same store.
//
// A generation untouched for longer than retention is forgotten and reads as 0
// again. Retention must exceed the longest loader run.
type LocalGenStore struct {
	mu    sync.Mutex
	gens  map[string]localGen
	clock clockwork.Clock

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	return NewLocalGenStoreWithClock(clockwork.NewRealClock(), cleanupInterval, retention)
}

// NewLocalGenStoreWithClock is NewLocalGenStore with an injected clock. The
// sweep loop runs only when both durations are positive.
func NewLocalGenStoreWithClock(clock clockwork.Clock, cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{gens: make(map[string]localGen), clock: clock}
	if cleanupInterval <= 0 || retention <= 0 {
		return s
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	tk := clock.NewTicker(cleanupInterval)
	go func() {
		defer close(s.done)
		defer tk.Stop()
		for {
			select {
			case <-tk.Chan():
				s.Cleanup(retention)
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	g := s.gens[k].gen
	s.mu.Unlock()
	return g, nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.gens[k]
	e.gen++
	e.touched = s.clock.Now()
	s.gens[k] = e
	return e.gen, nil
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.clock.Now().Add(-retention)
	s.mu.Lock()
	for k, e := range s.gens {
		if e.touched.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

// Close stops the sweep loop. Safe to call more than once.
func (s *LocalGenStore) Close(context.Context) error {
	if s.stop == nil {
		return nil
	}
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}
