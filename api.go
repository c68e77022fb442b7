package refcache

import (
	"time"

	c "github.com/unkn0wn-root/refcache/codec"
	gen "github.com/unkn0wn-root/refcache/genstore"
	pr "github.com/unkn0wn-root/refcache/provider"
)

// Options tune the Facade. Only Provider is required; others have sensible defaults.
type Options struct {
	// Required
	Provider pr.Provider

	Prefix         string        // storage key prefix; "" => keys are bare domain names
	TTL            time.Duration // store entries; 0 => 24h
	Format         c.Format      // "" => JSON
	MaxDecode      int           // 0 => unlimited
	LoadTimeout    time.Duration // one coalesced load; 0 => 1m
	GenStore       gen.GenStore  // nil => LocalGenStore (in-process)
	ComputeSetCost SetCostFunc   // default payload length

	MirrorInterval time.Duration // mirror population cycle; 0 => 15m
	RetryInterval  time.Duration // after a failed mirror load; 0 => 5s

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

func New(opts Options) (*Facade, error) {
	st, err := NewStore(StoreOptions{
		Provider:       opts.Provider,
		Prefix:         opts.Prefix,
		TTL:            opts.TTL,
		Format:         opts.Format,
		MaxDecode:      opts.MaxDecode,
		LoadTimeout:    opts.LoadTimeout,
		GenStore:       opts.GenStore,
		ComputeSetCost: opts.ComputeSetCost,
		Logger:         opts.Logger,
		Hooks:          opts.Hooks,
	})
	if err != nil {
		return nil, err
	}
	return &Facade{
		store:  st,
		mirror: NewMirror(opts.Logger, opts.Hooks),
		warmer: NewWarmer(opts.MirrorInterval, opts.RetryInterval, opts.Logger, opts.Hooks),
		log:    coalesce[Logger](opts.Logger, NopLogger{}),
	}, nil
}

// coalesce returns def when v is the zero value of T.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
