package command

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/unkn0wn-root/swcache"
	"github.com/unkn0wn-root/swcache/internal/config"
)

// newOrigin serves every path with its own name; paths in down answer 503.
func newOrigin(t *testing.T, down ...string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		for _, d := range down {
			if r.URL.Path == d {
				http.Error(w, "down", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("origin:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(origin string) config.Config {
	cfg := config.Defaults()
	cfg.Origin = origin + "/"
	cfg.Listen = "127.0.0.1:0"
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestNewCodec(t *testing.T) {
	for _, name := range []string{"json", "cbor", "msgpack", "proto"} {
		codec, err := NewCodec(name)
		require.NoError(t, err, name)

		in := swcache.Record{Key: "http://app.test/", Status: 200, Body: []byte("x")}
		b, err := codec.Encode(in)
		require.NoError(t, err, name)
		out, err := codec.Decode(b)
		require.NoError(t, err, name)
		assert.Equal(t, in.Key, out.Key, name)
		assert.Equal(t, in.Body, out.Body, name)
	}
	_, err := NewCodec("xml")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"zap", "logrus", "slog", "apex"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			l, flush, err := NewLogger(config.Log{Format: format, Level: "info"}, &buf)
			require.NoError(t, err)
			l.Debug("hidden", nil)
			l.Info("install completed", swcache.Fields{"store": "post-cache"})
			flush()
			assert.Contains(t, buf.String(), "install completed")
			assert.Contains(t, buf.String(), "post-cache")
			assert.NotContains(t, buf.String(), "hidden")
		})
	}
	_, _, err := NewLogger(config.Log{Format: "glog", Level: "info"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNewStorageInProcess(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{"memory", "bbolt", "bigcache", "ristretto"} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Backend = backend
			cfg.Bigcache.Shards = 16
			cfg.Bbolt.Path = filepath.Join(t.TempDir(), "swcache.db")
			s, err := NewStorage(ctx, cfg)
			require.NoError(t, err)
			if backend == "bbolt" {
				assert.NotNil(t, s.GenStore, "bbolt keeps generations in its file")
			} else {
				assert.Nil(t, s.GenStore)
			}
			assert.False(t, s.Shared)

			ok, err := s.Provider.Set(ctx, "k", []byte("v"), 1, 0)
			require.NoError(t, err)
			require.True(t, ok)
			v, ok, err := s.Provider.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("v"), v)
			require.NoError(t, s.Provider.Close(ctx))
		})
	}
}

func TestNewStorageRedisUnreachable(t *testing.T) {
	cfg := config.Defaults()
	cfg.Backend = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewStorage(ctx, cfg)
	assert.ErrorContains(t, err, "127.0.0.1:1")
}

func TestBuildInstallsAndServes(t *testing.T) {
	for _, codec := range []string{"json", "proto"} {
		t.Run(codec, func(t *testing.T) {
			ctx := context.Background()
			origin, calls := newOrigin(t)
			cfg := testConfig(origin.URL)
			cfg.Codec = codec
			cfg.Log.Format = "slog"

			var logs bytes.Buffer
			srv, err := Build(ctx, cfg, &logs)
			require.NoError(t, err)
			defer srv.Close(ctx)

			require.NoError(t, srv.Worker.Install(ctx))
			assert.Equal(t, swcache.StateActivated, srv.Worker.State())
			assert.EqualValues(t, len(swcache.DefaultAssets), calls.Load())

			cc, err := srv.Cache()
			require.NoError(t, err)
			keys, err := cc.Keys(ctx)
			require.NoError(t, err)
			assert.Len(t, keys, len(swcache.DefaultAssets))

			front := httptest.NewServer(srv.Handler())
			defer front.Close()

			res, err := http.Get(front.URL + "/index.html")
			require.NoError(t, err)
			res.Body.Close()
			assert.Equal(t, "HIT", res.Header.Get("X-Cache"))
			assert.EqualValues(t, len(swcache.DefaultAssets), calls.Load(), "hit must not reach the origin")

			res, err = http.Get(front.URL + "/api/data")
			require.NoError(t, err)
			res.Body.Close()
			assert.Equal(t, "MISS", res.Header.Get("X-Cache"))
			assert.EqualValues(t, len(swcache.DefaultAssets)+1, calls.Load())
		})
	}
}

func TestCompressedBboltSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	origin, calls := newOrigin(t)
	cfg := testConfig(origin.URL)
	cfg.Backend = "bbolt"
	cfg.Bbolt.Path = filepath.Join(t.TempDir(), "swcache.db")
	cfg.Compress = true
	cfg.Codec = "cbor"

	srv, err := Build(ctx, cfg, &bytes.Buffer{})
	require.NoError(t, err)
	require.NoError(t, srv.Worker.Install(ctx))
	srv.Close(ctx)

	// a new process over the same file sees the stored entries
	srv, err = Build(ctx, cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer srv.Close(ctx)
	cc, err := srv.Cache()
	require.NoError(t, err)
	keys, err := cc.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, len(swcache.DefaultAssets))

	r, err := swcache.NewRequest(srv.Worker.Scope(), "main.dart.js")
	require.NoError(t, err)
	resp, ok, err := cc.Match(ctx, r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "origin:/main.dart.js", string(resp.Body))
	assert.EqualValues(t, len(swcache.DefaultAssets), calls.Load())
}

func TestMetricsHandler(t *testing.T) {
	ctx := context.Background()
	origin, _ := newOrigin(t)
	srv, err := Build(ctx, testConfig(origin.URL), &bytes.Buffer{})
	require.NoError(t, err)
	defer srv.Close(ctx)
	require.NoError(t, srv.Worker.Install(ctx))

	scrape := func() string {
		rec := httptest.NewRecorder()
		srv.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec.Body.String()
	}
	// hooks are delivered asynchronously
	require.Eventually(t, func() bool {
		return strings.Contains(scrape(), `swcache_installs_total{result="ok"} 1`)
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, scrape(), "swcache_precached_assets 7")
	assert.Contains(t, scrape(), "go_goroutines")
}

func TestServeFailsWhenInstallFails(t *testing.T) {
	ctx := context.Background()
	origin, _ := newOrigin(t, "/manifest.json")
	srv, err := Build(ctx, testConfig(origin.URL), &bytes.Buffer{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	err = srv.Serve(ctx, ln)
	var ie *swcache.InstallError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, swcache.StateRedundant, srv.Worker.State())
}

func TestServeStopsOnCancel(t *testing.T) {
	origin, _ := newOrigin(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, err := Build(ctx, testConfig(origin.URL), &bytes.Buffer{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		res, err := http.Get("http://" + ln.Addr().String() + "/main.dart.js")
		if err != nil {
			return false
		}
		res.Body.Close()
		return res.Header.Get("X-Cache") == "HIT"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestResolveConfigPrecedence(t *testing.T) {
	t.Setenv("SWCACHE_CODEC", "msgpack")
	t.Setenv("SWCACHE_BACKEND", "ristretto")

	var got config.Config
	app := NewApp(&bytes.Buffer{})
	app.Action = func(_ context.Context, cmd *cli.Command) error {
		var err error
		got, err = resolveConfig(cmd)
		return err
	}
	err := app.Run(context.Background(), []string{Name,
		"--origin", "http://origin.test/",
		"--backend", "bigcache",
		"--log-level", "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://origin.test/", got.Origin)
	assert.Equal(t, "bigcache", got.Backend, "flag beats env")
	assert.Equal(t, "msgpack", got.Codec, "env beats default")
	assert.Equal(t, "debug", got.Log.Level)
}

func TestResolveConfigInvalid(t *testing.T) {
	app := NewApp(&bytes.Buffer{})
	err := app.Run(context.Background(), []string{Name, "--backend", "disk"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "origin is required"))
	assert.Contains(t, err.Error(), `backend "disk"`)
}
