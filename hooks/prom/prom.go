// Package promhooks counts swcache.Hooks events as Prometheus metrics and
// forwards every event to an inner Hooks.
package promhooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/swcache"
)

type Hooks struct {
	inner swcache.Hooks

	installs        *prometheus.CounterVec
	installDuration prometheus.Histogram
	assets          prometheus.Gauge
	requests        *prometheus.CounterVec
	networkErrors   prometheus.Counter
	selfHeals       *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec
}

var _ swcache.Hooks = (*Hooks)(nil)

// New returns metrics under namespace ("" => "swcache"). inner may be nil.
func New(namespace string, inner swcache.Hooks) *Hooks {
	if namespace == "" {
		namespace = "swcache"
	}
	if inner == nil {
		inner = swcache.NopHooks{}
	}
	return &Hooks{
		inner: inner,
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installs_total",
			Help:      "Install cycles by result.",
		}, []string{"result"}),
		installDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "install_duration_seconds",
			Help:      "Duration of successful install cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		assets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "precached_assets",
			Help:      "Assets stored by the last successful install.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Intercepted requests by cache result.",
		}, []string{"result"}),
		networkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_errors_total",
			Help:      "Misses whose network call failed.",
		}),
		selfHeals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_heals_total",
			Help:      "Entries deleted on read by reason.",
		}, []string{"reason"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Non-fatal store failures by operation.",
		}, []string{"op"}),
	}
}

// Collectors returns all metrics for registration.
func (h *Hooks) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		h.installs,
		h.installDuration,
		h.assets,
		h.requests,
		h.networkErrors,
		h.selfHeals,
		h.storeErrors,
	}
}

func (h *Hooks) InstallStarted(store string, n int) {
	h.inner.InstallStarted(store, n)
}

func (h *Hooks) InstallCompleted(store string, n int, took time.Duration) {
	h.installs.WithLabelValues("ok").Inc()
	h.installDuration.Observe(took.Seconds())
	h.assets.Set(float64(n))
	h.inner.InstallCompleted(store, n, took)
}

func (h *Hooks) InstallFailed(store string, err error) {
	h.installs.WithLabelValues("failed").Inc()
	h.inner.InstallFailed(store, err)
}

func (h *Hooks) CacheHit(key string) {
	h.requests.WithLabelValues("hit").Inc()
	h.inner.CacheHit(key)
}

func (h *Hooks) CacheMiss(key string) {
	h.requests.WithLabelValues("miss").Inc()
	h.inner.CacheMiss(key)
}

func (h *Hooks) NetworkError(key string, err error) {
	h.networkErrors.Inc()
	h.inner.NetworkError(key, err)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	h.selfHeals.WithLabelValues(reason).Inc()
	h.inner.SelfHeal(storageKey, reason)
}

func (h *Hooks) StoreError(op string, err error) {
	h.storeErrors.WithLabelValues(op).Inc()
	h.inner.StoreError(op, err)
}
