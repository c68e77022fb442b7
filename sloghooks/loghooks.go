package sloghooks

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/refcache"
	"github.com/unkn0wn-root/refcache/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	LoaderEvery  uint64
	PublishEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	loaderCtr  atomic.Uint64
	publishCtr atomic.Uint64
}

var _ refcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.ShortHash(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) LoaderInvoked(domain string) {
	if h.l == nil || !sample(h.opts.LoaderEvery, &h.loaderCtr) {
		return
	}
	h.l.Debug("refcache.loader_invoked", "domain", domain)
}

func (h *Hooks) WriteSkipped(domain, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("refcache.write_skipped",
		"domain", domain,
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("refcache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) StoreUnavailable(domain, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("refcache.store_unavailable",
		"domain", domain,
		"op", op,
		"err", err)
}

func (h *Hooks) DecodeFailed(domain string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("refcache.decode_failed",
		"domain", domain,
		"err", err)
}

func (h *Hooks) InvalidateOutage(domain string, bumpErr, delErr error) {
	if h.l == nil {
		return
	}
	h.l.Error("refcache.invalidate_outage",
		"domain", domain,
		"bump_err", bumpErr,
		"del_err", delErr)
}

func (h *Hooks) MirrorPublished(domain string, items int) {
	if h.l == nil || !sample(h.opts.PublishEvery, &h.publishCtr) {
		return
	}
	h.l.Debug("refcache.mirror_published",
		"domain", domain,
		"items", items)
}

func (h *Hooks) MirrorLoadFailed(domain string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("refcache.mirror_load_failed",
		"domain", domain,
		"err", err)
}

func (h *Hooks) WaitTimedOut(domain string, waited time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Info("refcache.wait_timed_out",
		"domain", domain,
		"waited", waited)
}
