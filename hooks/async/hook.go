// Package asynchook runs swcache.Hooks on a small worker pool so hot paths
// never wait on an observer.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    HitEvery:  100, // sample logs: ~every 100th hit
//	    MissEvery: 10,
//	})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	caches, _ := swcache.NewCaches(swcache.CachesOptions{
//	    Provider: memory.New(),
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/swcache"
)

type Hooks struct {
	inner   swcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against send on a closed queue
	closed  bool
	dropped atomic.Uint64
}

var _ swcache.Hooks = (*Hooks)(nil)

func New(inner swcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) InstallStarted(s string, n int) { h.try(func() { h.inner.InstallStarted(s, n) }) }
func (h *Hooks) InstallCompleted(s string, n int, took time.Duration) {
	h.try(func() { h.inner.InstallCompleted(s, n, took) })
}
func (h *Hooks) InstallFailed(s string, err error) { h.try(func() { h.inner.InstallFailed(s, err) }) }
func (h *Hooks) CacheHit(k string)                 { h.try(func() { h.inner.CacheHit(k) }) }
func (h *Hooks) CacheMiss(k string)                { h.try(func() { h.inner.CacheMiss(k) }) }
func (h *Hooks) NetworkError(k string, err error)  { h.try(func() { h.inner.NetworkError(k, err) }) }
func (h *Hooks) SelfHeal(k, r string)              { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) StoreError(op string, err error)   { h.try(func() { h.inner.StoreError(op, err) }) }
