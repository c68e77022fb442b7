package refcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/refcache/codec"
	gen "github.com/unkn0wn-root/refcache/genstore"
	"github.com/unkn0wn-root/refcache/internal/util"
	pr "github.com/unkn0wn-root/refcache/provider"
)

const (
	DefaultTTL         = 24 * time.Hour
	DefaultLoadTimeout = time.Minute

	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
)

// SetCostFunc returns the provider cost of a payload (ristretto uses it; others ignore it).
type SetCostFunc func(storageKey string, raw []byte, items int) int64

// Store is the shared cache-aside store: one provider key per domain holding the
// serialized list, written with a TTL.
//
// Concurrent misses for the same domain in one process run the loader once.
// Across processes, providers implementing provider.Adder make the first write
// win and the others adopt it. Every administrative write bumps the domain's
// generation so a load that started before it never overwrites it.
type Store struct {
	provider pr.Provider
	adder    pr.Adder // nil when the provider has no atomic add
	gen      gen.GenStore
	prefix   string
	ttl      time.Duration
	format   c.Format
	maxDec   int
	loadTO   time.Duration

	// life is cancelled by Close; it bounds flights detached from their callers.
	life    context.Context
	endLife context.CancelFunc

	computeSetCost SetCostFunc
	log            Logger
	hooks          Hooks

	flight singleflight.Group
	codecs sync.Map // domain name -> codec.Codec[[]T]
}

// StoreOptions configure a Store. Only Provider is required.
type StoreOptions struct {
	Provider       pr.Provider
	Prefix         string        // prepended to domain names; empty keeps bare names
	TTL            time.Duration // 0 => 24h
	Format         c.Format      // "" => JSON
	MaxDecode      int           // payload size limit on read; 0 => unlimited
	LoadTimeout    time.Duration // bound on one coalesced load; 0 => 1m
	GenStore       gen.GenStore  // nil => LocalGenStore (in-process)
	ComputeSetCost SetCostFunc   // default payload length
	Logger         Logger        // if nil, NopLogger is used
	Hooks          Hooks         // if nil, NopHooks is used
}

func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("refcache: provider is required")
	}
	if !opts.Format.Valid() {
		return nil, fmt.Errorf("refcache: unknown codec format %q", opts.Format)
	}
	if opts.TTL < 0 {
		return nil, fmt.Errorf("refcache: negative ttl %s", opts.TTL)
	}
	if opts.LoadTimeout < 0 {
		return nil, fmt.Errorf("refcache: negative load timeout %s", opts.LoadTimeout)
	}

	s := &Store{
		provider: opts.Provider,
		prefix:   opts.Prefix,
		format:   opts.Format,
		maxDec:   opts.MaxDecode,
	}
	s.adder, _ = opts.Provider.(pr.Adder)

	s.ttl = coalesce[time.Duration](opts.TTL, DefaultTTL)
	s.loadTO = coalesce[time.Duration](opts.LoadTimeout, DefaultLoadTimeout)
	s.life, s.endLife = context.WithCancel(context.Background())
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.ComputeSetCost != nil {
		s.computeSetCost = opts.ComputeSetCost
	} else {
		s.computeSetCost = func(_ string, raw []byte, _ int) int64 { return int64(len(raw)) }
	}

	if opts.GenStore != nil {
		s.gen = opts.GenStore
	} else {
		// default to in-process generations with periodic cleanup
		s.gen = gen.NewLocalGenStore(defaultSweep, defaultGenRetention)
	}
	return s, nil
}

func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) Close(ctx context.Context) error {
	s.endLife()
	// Close gen store first (best effort)
	if s.gen != nil {
		_ = s.gen.Close(ctx)
	}
	return s.provider.Close(ctx)
}

// Exists reports whether the domain currently has a live entry in the store.
func (s *Store) Exists(ctx context.Context, d Key) (bool, error) {
	ok, err := s.provider.Exists(ctx, s.storageKey(d.Name()))
	if err != nil {
		return false, s.unavailable(d.Name(), "exists", err)
	}
	return ok, nil
}

// Invalidate drops the domain's entry and fences in-flight loads.
func (s *Store) Invalidate(ctx context.Context, d Key) error {
	k := s.storageKey(d.Name())
	_, bumpErr := s.gen.Bump(ctx, k)
	delErr := s.provider.Del(ctx, k)
	switch {
	case bumpErr != nil && delErr != nil:
		s.hooks.InvalidateOutage(d.Name(), bumpErr, delErr)
		return &InvalidateError{Key: d.Name(), BumpErr: bumpErr, DelErr: delErr}
	case bumpErr != nil:
		s.hooks.StoreUnavailable(d.Name(), "gen_bump", bumpErr)
		return &InvalidateError{Key: d.Name(), BumpErr: bumpErr}
	case delErr != nil:
		s.hooks.StoreUnavailable(d.Name(), "del", delErr)
		return &InvalidateError{Key: d.Name(), DelErr: delErr}
	}
	s.log.Debug("invalidated domain (bumped gen + deleted entry)", Fields{"domain": d.Name()})
	return nil
}

// GetOrCreate returns the domain's stored list, or on a miss runs loader, stores
// the result with the store TTL and returns it.
//
// Loader errors are returned unchanged and nothing is written. If ctx is done
// before the write, nothing is written. The returned slice may be shared with
// other callers and must not be modified.
func GetOrCreate[T any](ctx context.Context, s *Store, d Domain[T], loader Loader[T]) ([]T, error) {
	if loader == nil {
		return nil, fmt.Errorf("refcache: nil loader for %q", d.name)
	}
	k := s.storageKey(d.name)
	if v, ok, err := read(ctx, s, d, k); err != nil || ok {
		return v, err
	}

	// The flight is detached from whichever caller started it: one caller's
	// deadline must not fail the others. It is bounded by the load timeout and
	// the store's lifetime; each waiter still honours its own ctx.
	ch := s.flight.DoChan(k, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTO)
		defer cancel()
		defer context.AfterFunc(s.life, cancel)()

		// another flight may have stored it while we were queued
		if v, ok, err := read(fctx, s, d, k); err != nil || ok {
			return v, err
		}
		obs, err := s.gen.Snapshot(fctx, k)
		if err != nil {
			return nil, s.unavailable(d.name, "gen_snapshot", err)
		}

		s.hooks.LoaderInvoked(d.name)
		s.log.Debug("cache miss; running loader", Fields{"domain": d.name})
		items, err := loader(fctx)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		if ctx.Err() != nil {
			// the caller that started the load gave up; keep its result out of the store
			s.hooks.WriteSkipped(d.name, "canceled")
			return items, nil
		}
		return writeLoaded(fctx, s, d, k, items, obs)
	})

	select {
	case r := <-ch:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]T), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Replace unconditionally overwrites the domain's entry with items and a fresh TTL.
// Used after administrative edits so readers see the change before expiry.
func Replace[T any](ctx context.Context, s *Store, d Domain[T], items []T) error {
	if items == nil {
		items = []T{}
	}
	k := s.storageKey(d.name)
	cd, err := codecFor(s, d)
	if err != nil {
		return err
	}
	payload, err := cd.Encode(items)
	if err != nil {
		return fmt.Errorf("refcache: encode %q: %w", d.name, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.gen.Bump(ctx, k); err != nil {
		return s.unavailable(d.name, "gen_bump", err)
	}
	ok, err := s.provider.Set(ctx, k, payload, s.computeSetCost(k, payload, len(items)), s.ttl)
	if err != nil {
		return s.unavailable(d.name, "set", err)
	}
	if !ok {
		// the old list must not outlive a refresh that did not land
		s.hooks.ProviderSetRejected(k)
		s.log.Warn("refresh rejected by provider (pressure); dropping stale entry", Fields{"domain": d.name})
		if err := s.provider.Del(ctx, k); err != nil {
			return s.unavailable(d.name, "del", err)
		}
		return &WriteRejectedError{Domain: d.name}
	}
	s.log.Debug("domain refreshed", Fields{"domain": d.name, "items": len(items)})
	return nil
}

func read[T any](ctx context.Context, s *Store, d Domain[T], k string) ([]T, bool, error) {
	raw, ok, err := s.provider.Get(ctx, k)
	if err != nil {
		return nil, false, s.unavailable(d.name, "get", err)
	}
	if !ok {
		return nil, false, nil
	}
	cd, err := codecFor(s, d)
	if err != nil {
		return nil, false, err
	}
	v, err := cd.Decode(raw)
	if err != nil {
		s.hooks.DecodeFailed(d.name, err)
		s.log.Warn("stored payload does not decode", Fields{"domain": d.name, "err": err})
		return nil, false, &DeserializationError{Domain: d.name, Err: err}
	}
	if v == nil {
		v = []T{}
	}
	return v, true, nil
}

func writeLoaded[T any](ctx context.Context, s *Store, d Domain[T], k string, items []T, observedGen uint64) ([]T, error) {
	cur, err := s.gen.Snapshot(ctx, k)
	if err != nil {
		return nil, s.unavailable(d.name, "gen_snapshot", err)
	}
	if cur != observedGen {
		// an administrative write landed while loading; it wins
		s.hooks.WriteSkipped(d.name, "gen_mismatch")
		s.log.Debug("write-back skipped (gen mismatch)", Fields{"domain": d.name, "obs": observedGen, "cur": cur})
		return items, nil
	}

	cd, err := codecFor(s, d)
	if err != nil {
		return nil, err
	}
	payload, err := cd.Encode(items)
	if err != nil {
		return nil, fmt.Errorf("refcache: encode %q: %w", d.name, err)
	}
	cost := s.computeSetCost(k, payload, len(items))

	if s.adder != nil {
		added, err := s.adder.Add(ctx, k, payload, cost, s.ttl)
		if err != nil {
			return nil, s.unavailable(d.name, "add", err)
		}
		if !added {
			s.hooks.WriteSkipped(d.name, "lost_race")
			v, ok, err := read(ctx, s, d, k)
			if err != nil {
				return nil, err
			}
			if ok {
				return v, nil
			}
			// expired or deleted between the two calls
			return items, nil
		}
		return items, nil
	}

	// Without Adder the generation check and the Set are two steps, so a
	// Replace can land in between. Recheck afterwards and drop our write if so;
	// the next read reloads rather than serving the stale list.
	ok, err := s.provider.Set(ctx, k, payload, cost, s.ttl)
	if err != nil {
		return nil, s.unavailable(d.name, "set", err)
	}
	if !ok {
		s.hooks.ProviderSetRejected(k)
		s.log.Debug("write-back rejected by provider (pressure)", Fields{"domain": d.name})
		return items, nil
	}
	after, err := s.gen.Snapshot(ctx, k)
	if err != nil {
		return nil, s.unavailable(d.name, "gen_snapshot", err)
	}
	if after != observedGen {
		s.hooks.WriteSkipped(d.name, "gen_mismatch")
		s.log.Debug("write-back overtaken by a refresh; dropping it", Fields{"domain": d.name, "obs": observedGen, "cur": after})
		if err := s.provider.Del(ctx, k); err != nil {
			return nil, s.unavailable(d.name, "del", err)
		}
	}
	return items, nil
}

func codecFor[T any](s *Store, d Domain[T]) (c.Codec[[]T], error) {
	if v, ok := s.codecs.Load(d.name); ok {
		if cd, ok := v.(c.Codec[[]T]); ok {
			return cd, nil
		}
	}
	cd, err := c.New[[]T](s.format, s.maxDec)
	if err != nil {
		return nil, err
	}
	s.codecs.Store(d.name, cd)
	return cd, nil
}

func (s *Store) unavailable(domain, op string, err error) error {
	if isContextErr(err) {
		return err
	}
	s.hooks.StoreUnavailable(domain, op, err)
	s.log.Warn("cache store unavailable", Fields{"domain": domain, "op": op, "err": err})
	return &CacheUnavailableError{Domain: domain, Op: op, Err: err}
}

func (s *Store) storageKey(domain string) string {
	return util.StorageKey(s.prefix, domain)
}
