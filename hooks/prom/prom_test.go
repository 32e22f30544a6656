package promhooks

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/swcache"
)

type forwarded struct {
	swcache.NopHooks
	hits int
}

func (f *forwarded) CacheHit(string) { f.hits++ }

func TestHooksCountAndForward(t *testing.T) {
	inner := &forwarded{}
	h := New("", inner)

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(h.Collectors()...)

	h.InstallStarted("post-cache", 7)
	h.InstallCompleted("post-cache", 7, 150*time.Millisecond)
	h.InstallFailed("post-cache", errors.New("boom"))
	h.CacheHit("a")
	h.CacheHit("b")
	h.CacheMiss("c")
	h.NetworkError("c", errors.New("refused"))
	h.SelfHeal("entry:post-cache:x", "corrupt")
	h.StoreError("match", errors.New("down"))

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"installs ok", testutil.ToFloat64(h.installs.WithLabelValues("ok")), 1},
		{"installs failed", testutil.ToFloat64(h.installs.WithLabelValues("failed")), 1},
		{"assets", testutil.ToFloat64(h.assets), 7},
		{"hits", testutil.ToFloat64(h.requests.WithLabelValues("hit")), 2},
		{"misses", testutil.ToFloat64(h.requests.WithLabelValues("miss")), 1},
		{"network errors", testutil.ToFloat64(h.networkErrors), 1},
		{"self heals", testutil.ToFloat64(h.selfHeals.WithLabelValues("corrupt")), 1},
		{"store errors", testutil.ToFloat64(h.storeErrors.WithLabelValues("match")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v want %v", c.name, c.got, c.want)
		}
	}
	if inner.hits != 2 {
		t.Fatalf("inner saw %d hits, want 2", inner.hits)
	}
	if n, err := testutil.GatherAndCount(reg, "swcache_install_duration_seconds"); err != nil || n != 1 {
		t.Fatalf("histogram count=%d err=%v", n, err)
	}
}

func TestNilInner(t *testing.T) {
	h := New("app", nil)
	h.CacheMiss("k")
	if got := testutil.ToFloat64(h.requests.WithLabelValues("miss")); got != 1 {
		t.Fatalf("misses=%v", got)
	}
}
