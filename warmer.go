package refcache

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMirrorInterval = 15 * time.Minute
	defaultRetryInterval  = 5 * time.Second
)

// warmJob repopulates one mirrored domain from the store.
type warmJob struct {
	name string
	run  func(ctx context.Context) (items int, err error)
	kick chan struct{}
}

// Warmer keeps mirrored domains populated: each registered domain is loaded at
// Start and then once per interval. A failed load is retried after the retry
// interval until it succeeds. The mirror lags the store by at most one interval.
type Warmer struct {
	interval time.Duration
	retry    time.Duration
	log      Logger
	hooks    Hooks

	mu      sync.Mutex
	jobs    map[string]*warmJob
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	closed  bool

	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

func NewWarmer(interval, retry time.Duration, log Logger, hooks Hooks) *Warmer {
	return &Warmer{
		interval: coalesce[time.Duration](interval, defaultMirrorInterval),
		retry:    coalesce[time.Duration](retry, defaultRetryInterval),
		log:      coalesce[Logger](log, NopLogger{}),
		hooks:    coalesce[Hooks](hooks, NopHooks{}),
		jobs:     make(map[string]*warmJob),
	}
}

// add registers a job; re-registering a domain replaces its loader. Jobs added
// after Start begin immediately.
func (w *Warmer) add(name string, run func(ctx context.Context) (int, error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if j, ok := w.jobs[name]; ok {
		j.run = run
		return
	}
	j := &warmJob{name: name, run: run, kick: make(chan struct{}, 1)}
	w.jobs[name] = j
	if w.started {
		w.spawn(j)
	}
}

// Start launches one loop per registered domain. ctx bounds every background load.
func (w *Warmer) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.started = true
	for _, j := range w.jobs {
		w.spawn(j)
	}
}

// Kick asks the domain's loop to reload now. No-op for unknown domains.
func (w *Warmer) Kick(name string) {
	w.mu.Lock()
	j, ok := w.jobs[name]
	w.mu.Unlock()
	if !ok {
		return
	}
	select {
	case j.kick <- struct{}{}:
	default: // already pending
	}
}

// Registered reports whether name is a mirrored domain.
func (w *Warmer) Registered(name string) bool {
	w.mu.Lock()
	_, ok := w.jobs[name]
	w.mu.Unlock()
	return ok
}

// Close stops all loops and waits for in-flight loads to return.
func (w *Warmer) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		if w.cancel != nil {
			w.cancel()
		}
		w.mu.Unlock()
		w.closeWg.Wait()
	})
}

// spawn must be called with mu held.
func (w *Warmer) spawn(j *warmJob) {
	w.closeWg.Add(1)
	go w.loop(w.ctx, j)
}

func (w *Warmer) loop(ctx context.Context, j *warmJob) {
	defer w.closeWg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-j.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		next := w.interval
		if err := w.runOnce(ctx, j); err != nil {
			if ctx.Err() != nil {
				return
			}
			next = w.retry
		}
		timer.Reset(next)
	}
}

func (w *Warmer) runOnce(ctx context.Context, j *warmJob) error {
	w.mu.Lock()
	run := j.run
	w.mu.Unlock()

	n, err := run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.hooks.MirrorLoadFailed(j.name, err)
			w.log.Warn("mirror load failed; will retry", Fields{"domain": j.name, "err": err, "retry": w.retry})
		}
		return err
	}
	w.log.Debug("mirror populated", Fields{"domain": j.name, "items": n})
	return nil
}
