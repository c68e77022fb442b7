// Package promhooks exports refcache events as Prometheus counters.
package promhooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/refcache"
)

var (
	domainLabels = []string{"domain"}

	waitBuckets = []float64{
		.01, .05, .1, // interactive lookups
		.5, 1, 5, // startup waits
	}
)

type Hooks struct {
	loads          *prometheus.CounterVec
	writesSkipped  *prometheus.CounterVec
	setRejected    prometheus.Counter
	unavailable    *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
	outages        *prometheus.CounterVec
	publishes      *prometheus.CounterVec
	mirrorItems    *prometheus.GaugeVec
	mirrorFailures *prometheus.CounterVec
	waitTimeouts   *prometheus.HistogramVec
}

var _ refcache.Hooks = (*Hooks)(nil)

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer or a
// dedicated registry.
func New(reg prometheus.Registerer) *Hooks {
	f := promauto.With(reg)
	return &Hooks{
		loads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "refcache_loader_invocations_total",
			Help: "Cache misses that ran the source-of-truth loader",
		}, domainLabels),
		writesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "refcache_write_skipped_total",
			Help: "Loaded values not written back to the store",
		}, append(domainLabels, "reason")),
		setRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "refcache_provider_set_rejected_total",
			Help: "Writes the provider refused under pressure",
		}),
		unavailable: f.NewCounterVec(prometheus.CounterOpts{
			Name: "refcache_store_unavailable_total",
			Help: "Shared store failures by operation",
		}, append(domainLabels, "op")),
		decodeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "refcache_decode_failures_total",
			Help: "Stored payloads that did not decode as the domain type",
		}, domainLabels),
		outages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "refcache_invalidate_outage_total",
			Help: "Invalidations where both gen bump and delete failed",
		}, domainLabels),
		publishes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "refcache_mirror_publishes_total",
			Help: "Lists published to the local mirror",
		}, domainLabels),
		mirrorItems: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "refcache_mirror_items",
			Help: "Items in the currently mirrored list",
		}, domainLabels),
		mirrorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "refcache_mirror_load_failures_total",
			Help: "Background mirror loads that failed",
		}, domainLabels),
		waitTimeouts: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refcache_wait_timeout_seconds",
			Help:    "Timeouts of WaitUntilPopulated by configured wait",
			Buckets: waitBuckets,
		}, domainLabels),
	}
}

func (h *Hooks) LoaderInvoked(d string)   { h.loads.WithLabelValues(d).Inc() }
func (h *Hooks) WriteSkipped(d, r string) { h.writesSkipped.WithLabelValues(d, r).Inc() }
func (h *Hooks) ProviderSetRejected(string) {
	h.setRejected.Inc()
}
func (h *Hooks) StoreUnavailable(d, op string, _ error) {
	h.unavailable.WithLabelValues(d, op).Inc()
}
func (h *Hooks) DecodeFailed(d string, _ error) { h.decodeFailures.WithLabelValues(d).Inc() }
func (h *Hooks) InvalidateOutage(d string, _, _ error) {
	h.outages.WithLabelValues(d).Inc()
}
func (h *Hooks) MirrorPublished(d string, n int) {
	h.publishes.WithLabelValues(d).Inc()
	h.mirrorItems.WithLabelValues(d).Set(float64(n))
}
func (h *Hooks) MirrorLoadFailed(d string, _ error) { h.mirrorFailures.WithLabelValues(d).Inc() }
func (h *Hooks) WaitTimedOut(d string, waited time.Duration) {
	h.waitTimeouts.WithLabelValues(d).Observe(waited.Seconds())
}
