package refcache

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	c "github.com/unkn0wn-root/refcache/codec"
	pr "github.com/unkn0wn-root/refcache/provider"
	"github.com/unkn0wn-root/refcache/provider/memory"
)

var sampleZips = []ZipCode{
	{Zip: "10001", City: "New York", State: "NY"},
	{Zip: "94105", City: "San Francisco", State: "CA"},
}

func newTestStore(t *testing.T, p pr.Provider, mod func(*StoreOptions)) *Store {
	t.Helper()
	opts := StoreOptions{Provider: p}
	if mod != nil {
		mod(&opts)
	}
	s, err := NewStore(opts)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func constLoader[T any](calls *atomic.Int32, items []T) Loader[T] {
	return func(context.Context) ([]T, error) {
		calls.Add(1)
		return items, nil
	}
}

func TestGetOrCreateHitSkipsLoader(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, memory.New(nil), nil)

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		got, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips))
		if err != nil {
			t.Fatalf("GetOrCreate #%d: %v", i, err)
		}
		if !reflect.DeepEqual(got, sampleZips) {
			t.Fatalf("GetOrCreate #%d: got %+v", i, got)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("loader calls: want 1, got %d", calls.Load())
	}
}

func TestStoredPayloadIsJSONListUnderDomainName(t *testing.T) {
	ctx := context.Background()
	p := memory.New(clockwork.NewFakeClock())
	s := newTestStore(t, p, nil)

	var calls atomic.Int32
	if _, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips)); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	raw, ok, _ := p.Get(ctx, "Zips")
	if !ok {
		t.Fatalf("no entry under bare domain name")
	}
	var decoded []ZipCode
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("payload is not a JSON list: %v (%s)", err, raw)
	}
	if !reflect.DeepEqual(decoded, sampleZips) {
		t.Fatalf("payload: %s", raw)
	}
	if ttl, ok := p.TTL("Zips"); !ok || ttl != DefaultTTL {
		t.Fatalf("ttl: %s %v", ttl, ok)
	}
}

func TestPrefixedStorageKey(t *testing.T) {
	ctx := context.Background()
	p := memory.New(nil)
	s := newTestStore(t, p, func(o *StoreOptions) { o.Prefix = "crm:" })

	var calls atomic.Int32
	if _, err := GetOrCreate(ctx, s, States, constLoader(&calls, []KeyValue{{Key: "CA", Value: "California"}})); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if ok, _ := p.Exists(ctx, "crm:States"); !ok {
		t.Fatalf("prefixed key missing")
	}
}

func TestEmptyListIsAValue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, memory.New(nil), nil)

	var calls atomic.Int32
	for i := 0; i < 2; i++ {
		got, err := GetOrCreate(ctx, s, Skills, constLoader[Lookup](&calls, nil))
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("want empty non-nil list, got %#v", got)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("empty list not cached: %d loader calls", calls.Load())
	}
}

func TestTTLExpiryReloads(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClock()
	s := newTestStore(t, memory.New(clk), nil)

	var calls atomic.Int32
	load := constLoader(&calls, sampleZips)
	if _, err := GetOrCreate(ctx, s, Zips, load); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	clk.Advance(DefaultTTL - time.Second)
	if _, err := GetOrCreate(ctx, s, Zips, load); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("reloaded before expiry")
	}

	clk.Advance(2 * time.Second)
	if _, err := GetOrCreate(ctx, s, Zips, load); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expired entry served: %d loader calls", calls.Load())
	}
}

func TestReplaceResetsTTL(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClock()
	p := memory.New(clk)
	s := newTestStore(t, p, nil)

	var calls atomic.Int32
	if _, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips)); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	clk.Advance(23 * time.Hour)

	fresh := []ZipCode{{Zip: "60601", City: "Chicago", State: "IL"}}
	if err := Replace(ctx, s, Zips, fresh); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if ttl, _ := p.TTL("Zips"); ttl != DefaultTTL {
		t.Fatalf("ttl after replace: %s", ttl)
	}
	got, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips))
	if err != nil || !reflect.DeepEqual(got, fresh) {
		t.Fatalf("after replace: %+v %v", got, err)
	}
}

func TestLoaderErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	p := memory.New(nil)
	s := newTestStore(t, p, nil)

	boom := errors.New("db timeout")
	_, err := GetOrCreate(ctx, s, Zips, func(context.Context) ([]ZipCode, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("want loader error, got %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("failed load was written")
	}
}

func TestCanceledLoadWritesNothing(t *testing.T) {
	p := memory.New(nil)
	s := newTestStore(t, p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := GetOrCreate(ctx, s, Zips, func(context.Context) ([]ZipCode, error) {
		cancel()
		return sampleZips, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if ok, _ := p.Exists(context.Background(), "Zips"); ok {
		t.Fatalf("canceled load was written")
	}
}

func TestUnavailableStoreIsNotAMiss(t *testing.T) {
	ctx := context.Background()
	h := newRecHooks()
	s := newTestStore(t, downProvider{}, func(o *StoreOptions) { o.Hooks = h })

	var calls atomic.Int32
	got, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips))
	var cu *CacheUnavailableError
	if !errors.As(err, &cu) || cu.Op != "get" || cu.Domain != "Zips" {
		t.Fatalf("want CacheUnavailableError on get, got %v", err)
	}
	if !errors.Is(err, ErrCacheUnavailable) || !errors.Is(err, errDown) {
		t.Fatalf("error chain: %v", err)
	}
	if got != nil || calls.Load() != 0 {
		t.Fatalf("outage turned into a result: %v, %d loader calls", got, calls.Load())
	}
	if h.count("unavailable:Zips:get") != 1 {
		t.Fatalf("hook not reported")
	}

	if _, err := s.Exists(ctx, Zips); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("Exists: %v", err)
	}
	if err := Replace(ctx, s, Zips, sampleZips); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("Replace: %v", err)
	}
}

func TestWrongShapeIsDeserializationError(t *testing.T) {
	ctx := context.Background()
	p := memory.New(nil)
	h := newRecHooks()
	s := newTestStore(t, p, func(o *StoreOptions) { o.Hooks = h })

	// a payload written for another element type
	_, _ = p.Set(ctx, "Zips", []byte(`{"id":1,"name":"Active"}`), 0, time.Hour)

	var calls atomic.Int32
	_, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips))
	var de *DeserializationError
	if !errors.As(err, &de) || de.Domain != "Zips" || !errors.Is(err, ErrDeserialization) {
		t.Fatalf("want DeserializationError, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("bad payload silently reloaded")
	}
	if h.count("decode:Zips") != 1 {
		t.Fatalf("decode hook not reported")
	}
}

func TestOtherRecordTypeIsDeserializationError(t *testing.T) {
	ctx := context.Background()
	p := memory.New(nil)
	s := newTestStore(t, p, nil)

	// a zip code list stored under a key/value domain
	_, _ = p.Set(ctx, "States", []byte(`[{"zip":"19464","city":"Pottstown","state":"PA"}]`), 0, time.Hour)

	var calls atomic.Int32
	got, err := GetOrCreate(ctx, s, States, constLoader(&calls, []KeyValue{{Key: "PA", Value: "Pennsylvania"}}))
	if !errors.Is(err, ErrDeserialization) {
		t.Fatalf("want ErrDeserialization, got %+v %v", got, err)
	}
	if calls.Load() != 0 {
		t.Fatalf("bad payload silently reloaded")
	}
}

func TestLostRaceAdoptsStoredValue(t *testing.T) {
	ctx := context.Background()
	p := memory.New(nil)
	h := newRecHooks()
	s := newTestStore(t, p, func(o *StoreOptions) { o.Hooks = h })

	winner := []ZipCode{{Zip: "73301", City: "Austin", State: "TX"}}
	got, err := GetOrCreate(ctx, s, Zips, func(ctx context.Context) ([]ZipCode, error) {
		// another process stores its list while this one is loading
		raw, _ := json.Marshal(winner)
		_, _ = p.Set(ctx, "Zips", raw, 0, time.Hour)
		return sampleZips, nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !reflect.DeepEqual(got, winner) {
		t.Fatalf("loser must return the stored list, got %+v", got)
	}
	if h.count("skip:Zips:lost_race") != 1 {
		t.Fatalf("lost_race not reported")
	}
}

func TestAdminWriteDuringLoadWins(t *testing.T) {
	ctx := context.Background()
	p := memory.New(nil)
	h := newRecHooks()
	s := newTestStore(t, p, func(o *StoreOptions) { o.Hooks = h })

	fresh := []ZipCode{{Zip: "02108", City: "Boston", State: "MA"}}
	got, err := GetOrCreate(ctx, s, Zips, func(ctx context.Context) ([]ZipCode, error) {
		if err := Replace(ctx, s, Zips, fresh); err != nil {
			t.Errorf("Replace: %v", err)
		}
		return sampleZips, nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !reflect.DeepEqual(got, sampleZips) {
		t.Fatalf("loaded list not returned: %+v", got)
	}
	var calls atomic.Int32
	stored, _ := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips))
	if !reflect.DeepEqual(stored, fresh) {
		t.Fatalf("stale load overwrote the refresh: %+v", stored)
	}
	if h.count("skip:Zips:gen_mismatch") != 1 {
		t.Fatalf("gen_mismatch not reported")
	}
}

func TestConcurrentMissesLoadOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, memory.New(nil), nil)

	var calls atomic.Int32
	load := func(context.Context) ([]ZipCode, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return sampleZips, nil
	}

	const n = 32
	results := make([][]ZipCode, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = GetOrCreate(ctx, s, Zips, load)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !reflect.DeepEqual(results[i], sampleZips) {
			t.Fatalf("caller %d saw %+v", i, results[i])
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("loader ran %d times", calls.Load())
	}
}

func TestWaiterHonoursOwnContext(t *testing.T) {
	s := newTestStore(t, memory.New(nil), nil)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = GetOrCreate(context.Background(), s, Zips, func(context.Context) ([]ZipCode, error) {
			close(started)
			<-release
			return sampleZips, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var calls atomic.Int32
	if _, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline, got %v", err)
	}
	close(release)
	<-done
}

func TestFirstCallerDeadlineDoesNotFailJoinedCallers(t *testing.T) {
	s := newTestStore(t, memory.New(nil), nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	slow := func(context.Context) ([]ZipCode, error) {
		calls.Add(1)
		close(started)
		<-release
		return sampleZips, nil
	}

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := GetOrCreate(short, s, Zips, slow)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   []ZipCode
		err error
	}
	joined := make(chan result, 1)
	go func() {
		v, err := GetOrCreate(context.Background(), s, Zips, constLoader(&calls, sampleZips))
		joined <- result{v, err}
	}()

	if err := <-firstErr; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first caller: want deadline, got %v", err)
	}
	close(release)

	r := <-joined
	if r.err != nil || !reflect.DeepEqual(r.v, sampleZips) {
		t.Fatalf("joined caller: %+v %v", r.v, r.err)
	}
}

func TestLoadTimeoutBoundsDetachedLoad(t *testing.T) {
	s := newTestStore(t, memory.New(nil), func(o *StoreOptions) { o.LoadTimeout = 20 * time.Millisecond })

	_, err := GetOrCreate(context.Background(), s, Zips, func(ctx context.Context) ([]ZipCode, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline from load timeout, got %v", err)
	}
}

func TestRejectedWriteStillReturnsList(t *testing.T) {
	ctx := context.Background()
	h := newRecHooks()
	s := newTestStore(t, rejectingProvider{}, func(o *StoreOptions) { o.Hooks = h })

	var calls atomic.Int32
	got, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips))
	if err != nil || !reflect.DeepEqual(got, sampleZips) {
		t.Fatalf("GetOrCreate: %+v %v", got, err)
	}
	if h.count("rejected:Zips") != 1 {
		t.Fatalf("rejection not reported")
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, memory.New(nil), nil)

	var calls atomic.Int32
	if _, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips)); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if ok, err := s.Exists(ctx, Zips); err != nil || !ok {
		t.Fatalf("Exists before invalidate: %v %v", ok, err)
	}
	if err := s.Invalidate(ctx, Zips); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if ok, _ := s.Exists(ctx, Zips); ok {
		t.Fatalf("entry survived invalidate")
	}
	if _, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips)); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("loader calls: %d", calls.Load())
	}
}

func TestInvalidateOutage(t *testing.T) {
	h := newRecHooks()
	s := newTestStore(t, downProvider{}, func(o *StoreOptions) {
		o.Hooks = h
		o.GenStore = failingGens{}
	})
	err := s.Invalidate(context.Background(), Zips)
	var ie *InvalidateError
	if !errors.As(err, &ie) || ie.BumpErr == nil || ie.DelErr == nil {
		t.Fatalf("want both failures, got %v", err)
	}
	if !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("not classified as unavailable: %v", err)
	}
	if h.count("outage:Zips") != 1 {
		t.Fatalf("outage not reported")
	}
}

func TestNewStoreValidates(t *testing.T) {
	if _, err := NewStore(StoreOptions{}); err == nil {
		t.Fatalf("nil provider accepted")
	}
	if _, err := NewStore(StoreOptions{Provider: memory.New(nil), Format: "yaml"}); err == nil {
		t.Fatalf("unknown format accepted")
	}
	if _, err := NewStore(StoreOptions{Provider: memory.New(nil), TTL: -time.Second}); err == nil {
		t.Fatalf("negative ttl accepted")
	}
	if _, err := NewStore(StoreOptions{Provider: memory.New(nil), LoadTimeout: -time.Second}); err == nil {
		t.Fatalf("negative load timeout accepted")
	}
}

func TestAlternateFormats(t *testing.T) {
	for _, f := range []string{"cbor", "msgpack"} {
		t.Run(f, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t, memory.New(nil), func(o *StoreOptions) { o.Format = c.Format(f) })

			var calls atomic.Int32
			for i := 0; i < 2; i++ {
				got, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips))
				if err != nil || !reflect.DeepEqual(got, sampleZips) {
					t.Fatalf("GetOrCreate: %+v %v", got, err)
				}
			}
			if calls.Load() != 1 {
				t.Fatalf("loader calls: %d", calls.Load())
			}
		})
	}
}

// pickyProvider stores entries but refuses Set while reject is on. It has no
// Add, so loads go through the Set path.
type pickyProvider struct {
	pr.Provider
	reject    atomic.Bool
	beforeSet func()
}

func (p *pickyProvider) Set(ctx context.Context, k string, v []byte, cost int64, ttl time.Duration) (bool, error) {
	if p.beforeSet != nil {
		f := p.beforeSet
		p.beforeSet = nil
		f()
	}
	if p.reject.Load() {
		return false, nil
	}
	return p.Provider.Set(ctx, k, v, cost, ttl)
}

func TestRejectedReplaceDropsStaleEntry(t *testing.T) {
	ctx := context.Background()
	p := &pickyProvider{Provider: memory.New(nil)}
	h := newRecHooks()
	s := newTestStore(t, p, func(o *StoreOptions) { o.Hooks = h })

	var calls atomic.Int32
	if _, err := GetOrCreate(ctx, s, Titles, constLoader(&calls, []Lookup{{ID: 1, Name: "CTO"}})); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	p.reject.Store(true)
	fresh := []Lookup{{ID: 2, Name: "CFO"}}
	err := Replace(ctx, s, Titles, fresh)
	var we *WriteRejectedError
	if !errors.As(err, &we) || we.Domain != "Titles" || !errors.Is(err, ErrWriteRejected) {
		t.Fatalf("want WriteRejectedError, got %v", err)
	}
	if h.count("rejected:Titles") != 1 {
		t.Fatalf("rejection not reported")
	}

	got, err := GetOrCreate(ctx, s, Titles, constLoader(&calls, fresh))
	if err != nil || !reflect.DeepEqual(got, fresh) {
		t.Fatalf("stale list served after rejected refresh: %+v %v", got, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("loader calls: %d", calls.Load())
	}
}

func TestRefreshBetweenGenCheckAndSetIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	p := &pickyProvider{Provider: memory.New(nil)}
	h := newRecHooks()
	s := newTestStore(t, p, func(o *StoreOptions) { o.Hooks = h })

	fresh := []ZipCode{{Zip: "02108", City: "Boston", State: "MA"}}
	p.beforeSet = func() {
		if err := Replace(ctx, s, Zips, fresh); err != nil {
			t.Errorf("Replace: %v", err)
		}
	}
	var calls atomic.Int32
	if _, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, sampleZips)); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if h.count("skip:Zips:gen_mismatch") != 1 {
		t.Fatalf("late refresh not detected")
	}

	got, err := GetOrCreate(ctx, s, Zips, constLoader(&calls, fresh))
	if err != nil || !reflect.DeepEqual(got, fresh) {
		t.Fatalf("stale load survived the refresh: %+v %v", got, err)
	}
}

type failingGens struct{}

func (failingGens) Snapshot(context.Context, string) (uint64, error) { return 0, errDown }
func (failingGens) Bump(context.Context, string) (uint64, error)     { return 0, errDown }
func (failingGens) Cleanup(time.Duration)                            {}
func (failingGens) Close(context.Context) error                      { return nil }
