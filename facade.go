package refcache

import (
	"context"
	"errors"
	"time"
)

// Facade is what page and controller code talks to. Mirrored domains are served
// from the process-local Mirror when loaded; everything else goes through the
// shared Store.
//
// A domain is mirrored only after MirrorDomain registers it: the Warmer keeps
// those fresh, while an unregistered domain would sit in the mirror past its TTL.
type Facade struct {
	store  *Store
	mirror *Mirror
	warmer *Warmer
	log    Logger
}

func (f *Facade) Store() *Store   { return f.store }
func (f *Facade) Mirror() *Mirror { return f.mirror }

// Start begins background mirror population.
func (f *Facade) Start(ctx context.Context) { f.warmer.Start(ctx) }

func (f *Facade) Close(ctx context.Context) error {
	f.warmer.Close()
	return f.store.Close(ctx)
}

// MirrorDomain keeps d in the local mirror, loading it through the store with loader.
func MirrorDomain[T any](f *Facade, d Domain[T], loader Loader[T]) {
	f.warmer.add(d.name, func(ctx context.Context) (int, error) {
		obs := f.mirror.Generation(d)
		items, err := GetOrCreate(ctx, f.store, d, loader)
		if err != nil {
			return 0, err
		}
		publish(f.mirror, d, items, obs)
		return len(items), nil
	})
}

// GetOrLoad returns the domain list: mirror first, then the store (running
// loader on a miss). The returned slice is shared; do not modify it.
func GetOrLoad[T any](ctx context.Context, f *Facade, d Domain[T], loader Loader[T]) ([]T, error) {
	mirrored := f.warmer.Registered(d.name)
	if mirrored {
		if v, ok := TryGet(f.mirror, d); ok {
			return v, nil
		}
	}
	obs := f.mirror.Generation(d)
	v, err := GetOrCreate(ctx, f.store, d, loader)
	if err != nil {
		return nil, err
	}
	if mirrored {
		publish(f.mirror, d, v, obs)
	}
	return v, nil
}

// Refresh writes items through to the store and, for mirrored domains, to the
// mirror before returning, so later reads in this process observe them.
func Refresh[T any](ctx context.Context, f *Facade, d Domain[T], items []T) error {
	unlock := f.mirror.lockWrites(d)
	defer unlock()

	// fence background loads that started before this write
	f.mirror.fence(d)
	if err := Replace(ctx, f.store, d, items); err != nil {
		if errors.Is(err, ErrWriteRejected) {
			f.warmer.Kick(d.name)
		}
		return err
	}
	if f.warmer.Registered(d.name) {
		replace(f.mirror, d, items)
	}
	return nil
}

// Exists reports whether the shared store holds a live entry for d.
func (f *Facade) Exists(ctx context.Context, d Key) (bool, error) {
	return f.store.Exists(ctx, d)
}

// Invalidate drops d from the store. A mirrored domain keeps serving its last
// list until the warmer reloads it, which is triggered immediately.
func (f *Facade) Invalidate(ctx context.Context, d Key) error {
	unlock := f.mirror.lockWrites(d)
	defer unlock()

	f.mirror.fence(d)
	if err := f.store.Invalidate(ctx, d); err != nil {
		return err
	}
	f.warmer.Kick(d.Name())
	return nil
}

// Wait blocks until a mirrored domain is populated. See WaitUntilPopulated.
func Wait[T any](ctx context.Context, f *Facade, d Domain[T], timeout time.Duration) ([]T, error) {
	return WaitUntilPopulated(ctx, f.mirror, d, timeout)
}
