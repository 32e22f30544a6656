package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/swcache"
	asynchook "github.com/unkn0wn-root/swcache/hooks/async"
	promhooks "github.com/unkn0wn-root/swcache/hooks/prom"
	"github.com/unkn0wn-root/swcache/internal/config"
	"github.com/unkn0wn-root/swcache/network"
	"github.com/unkn0wn-root/swcache/sloghooks"
)

const (
	hookWorkers = 1
	hookQueue   = 1024
	userAgent   = "swcache"
)

// Server is a built worker and the HTTP server fronting it.
type Server struct {
	Worker *swcache.Worker

	cfg    config.Config
	caches *swcache.Caches
	hooks  *asynchook.Hooks
	log    swcache.Logger
	flush  func()
	http   *http.Server

	registry *prometheus.Registry
	metrics  *http.Server // nil when disabled
}

// Build wires every component named by cfg. Logs go to logOut.
func Build(ctx context.Context, cfg config.Config, logOut io.Writer) (*Server, error) {
	logger, flush, err := NewLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	codec, err := NewRecordCodec(cfg)
	if err != nil {
		return nil, err
	}
	storage, err := NewStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if storage.Shared {
		codec = limitCodec(codec, cfg.MaxBodyBytes)
	}

	hl, err := newSlog(logOut, cfg.Log.Level)
	if err != nil {
		_ = storage.Provider.Close(ctx)
		return nil, err
	}
	ph := promhooks.New(Name, sloghooks.New(hl, sloghooks.Options{
		HitEvery:      100,
		MissEvery:     10,
		SelfHealEvery: 10,
	}))
	reg := prometheus.NewRegistry()
	reg.MustRegister(ph.Collectors()...)
	reg.MustRegister(collectors.NewGoCollector())
	hooks := asynchook.New(ph, hookWorkers, hookQueue)

	caches, err := swcache.NewCaches(swcache.CachesOptions{
		Provider: storage.Provider,
		Codec:    codec,
		GenStore: storage.GenStore,
		Logger:   logger,
		Hooks:    hooks,
	})
	if err != nil {
		hooks.Close()
		return nil, err
	}

	fetcher := network.New(network.Options{
		Client:       &http.Client{Timeout: cfg.Timeout},
		MaxBodyBytes: cfg.MaxBodyBytes,
		UserAgent:    userAgent,
	})
	w, err := swcache.New(swcache.Options{
		Scope:   cfg.Origin,
		Storage: caches,
		Fetcher: fetcher,
		Logger:  logger,
		Hooks:   hooks,
	})
	if err != nil {
		_ = caches.Close(ctx)
		hooks.Close()
		return nil, err
	}

	s := &Server{
		Worker: w,
		cfg:    cfg,
		caches: caches,
		hooks:  hooks,
		log:    logger,
		flush:  flush,
		http: &http.Server{
			Addr:              cfg.Listen,
			Handler:           w,
			ReadHeaderTimeout: 10 * time.Second,
		},
		registry: reg,
	}
	if cfg.Metrics.Listen != "" {
		s.metrics = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           s.MetricsHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s, nil
}

// MetricsHandler serves the Prometheus registry at cfg.Metrics.Path.
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// Handler is the cache-first HTTP front.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Cache returns the precache store, for inspection.
func (s *Server) Cache() (*swcache.Cache, error) { return s.caches.Cache(swcache.DefaultStoreName) }

// Run precaches the asset list, then serves until ctx is done or the
// listener fails. The server does not start when the install fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		s.Close(ctx)
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It closes ln and the server's
// storage before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.Close(ctx)

	if err := s.Worker.Install(ctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("precache %s: %w", s.cfg.Origin, err)
	}
	s.log.Info("serving", swcache.Fields{"addr": ln.Addr().String(), "origin": s.cfg.Origin})

	errCh := make(chan error, 2)
	go func() { errCh <- s.http.Serve(ln) }()
	if s.metrics != nil {
		go func() { errCh <- s.metrics.ListenAndServe() }()
	}

	select {
	case err := <-errCh:
		_ = s.shutdown(ctx)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		if err := s.shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.log.Info("stopped", nil)
		return nil
	}
}

func (s *Server) shutdown(ctx context.Context) error {
	shCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(shCtx)
	if s.metrics != nil {
		err = errors.Join(err, s.metrics.Shutdown(shCtx))
	}
	return err
}

// Close releases the storage and drains hooks and logs.
func (s *Server) Close(ctx context.Context) {
	if err := s.caches.Close(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn("close storage", swcache.Fields{"err": err})
	}
	s.hooks.Close()
	s.flush()
}
