package refcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A miss ran the caller's loader.
	LoaderInvoked(domain string)

	// A loaded value was returned but not written to the store.
	// reason ∈ {"gen_mismatch", "lost_race", "canceled"}
	WriteSkipped(domain, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// The shared store failed. op ∈ {"get", "set", "add", "exists", "del", "gen_snapshot", "gen_bump"}
	StoreUnavailable(domain, op string, err error)

	// A stored payload did not decode as the domain's element type.
	DecodeFailed(domain string, err error)

	// Both gen bump and delete failed during Invalidate (likely backend outage).
	InvalidateOutage(domain string, bumpErr, delErr error)

	// The local mirror published a new list for domain.
	MirrorPublished(domain string, items int)

	// A background mirror load failed; it is retried.
	MirrorLoadFailed(domain string, err error)

	// WaitUntilPopulated gave up.
	WaitTimedOut(domain string, waited time.Duration)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) LoaderInvoked(string)                   {}
func (NopHooks) WriteSkipped(string, string)            {}
func (NopHooks) ProviderSetRejected(string)             {}
func (NopHooks) StoreUnavailable(string, string, error) {}
func (NopHooks) DecodeFailed(string, error)             {}
func (NopHooks) InvalidateOutage(string, error, error)  {}
func (NopHooks) MirrorPublished(string, int)            {}
func (NopHooks) MirrorLoadFailed(string, error)         {}
func (NopHooks) WaitTimedOut(string, time.Duration)     {}
