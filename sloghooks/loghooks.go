// Package sloghooks logs swcache.Hooks events to a *slog.Logger.
package sloghooks

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/swcache"
	"github.com/unkn0wn-root/swcache/internal/util"
)

type Options struct {
	// Sampling to avoid floods on the request path; 0/1 = log all.
	HitEvery      uint64
	MissEvery     uint64
	SelfHealEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr      atomic.Uint64
	missCtr     atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ swcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.Redact(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) InstallStarted(store string, n int) {
	if h.l == nil {
		return
	}
	h.l.Info("swcache.install_started",
		"store", store,
		"assets", n)
}

func (h *Hooks) InstallCompleted(store string, n int, took time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Info("swcache.install_completed",
		"store", store,
		"assets", n,
		"took", took)
}

func (h *Hooks) InstallFailed(store string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("swcache.install_failed",
		"store", store,
		"err", err)
}

func (h *Hooks) CacheHit(key string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("swcache.cache_hit", "key", h.redact(key))
}

func (h *Hooks) CacheMiss(key string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("swcache.cache_miss", "key", h.redact(key))
}

func (h *Hooks) NetworkError(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("swcache.network_error",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("swcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) StoreError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("swcache.store_error",
		"op", op,
		"err", err)
}
