package swcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// State is the worker lifecycle phase.
type State int32

const (
	StateParsed     State = iota // constructed, never installed
	StateInstalling              // install cycle in progress
	StateActivated               // store warm; Fetch intercepts
	StateRedundant               // first install failed; Fetch passes through
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const (
	headerCache     = "X-Cache"
	headerCacheHit  = "HIT"
	headerCacheMiss = "MISS"
)

// Worker precaches assets on Install and answers requests cache-first.
// It is safe for concurrent use; Install calls are serialized.
type Worker struct {
	scope     *url.URL
	storeName string
	assets    []string
	storage   Opener
	net       Fetcher
	log       Logger
	hooks     Hooks

	installMu sync.Mutex
	state     atomic.Int32
	store     atomic.Pointer[storeRef]
}

type storeRef struct{ Store }

func New(opts Options) (*Worker, error) {
	if opts.Storage == nil {
		return nil, fmt.Errorf("swcache: storage is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("swcache: fetcher is required")
	}
	if opts.Scope == "" {
		return nil, fmt.Errorf("swcache: scope is required")
	}
	scope, err := url.Parse(opts.Scope)
	if err != nil {
		return nil, fmt.Errorf("swcache: parse scope: %w", err)
	}
	if !scope.IsAbs() || scope.Host == "" {
		return nil, fmt.Errorf("swcache: scope %q must be an absolute URL", opts.Scope)
	}

	w := &Worker{
		scope:     scope,
		storeName: coalesce(opts.StoreName, DefaultStoreName),
		storage:   opts.Storage,
		net:       opts.Fetcher,
		log:       coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:     coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if opts.Assets != nil {
		w.assets = append([]string(nil), opts.Assets...)
	} else {
		w.assets = append([]string(nil), DefaultAssets...)
	}
	return w, nil
}

// State returns the current lifecycle phase.
func (w *Worker) State() State { return State(w.state.Load()) }

// Scope returns the base URL requests resolve against.
func (w *Worker) Scope() *url.URL {
	u := *w.scope
	return &u
}

// Install opens the named store, fetches every asset concurrently and stores
// them as one batch. Any failed fetch (transport error or non-2xx status)
// cancels the rest and nothing is written. The worker becomes activated only
// after the batch is stored. There is no retry.
//
// A failed first install leaves the worker redundant. A failed re-install of
// an activated worker keeps it activated on the entries it already had.
func (w *Worker) Install(ctx context.Context) error {
	w.installMu.Lock()
	defer w.installMu.Unlock()

	prev := w.State()
	if prev != StateActivated {
		// an activated worker keeps serving while it re-installs
		w.state.Store(int32(StateInstalling))
	}
	start := time.Now()
	w.hooks.InstallStarted(w.storeName, len(w.assets))
	w.log.Info("install started", Fields{"store": w.storeName, "assets": len(w.assets)})

	store, err := w.install(ctx)
	if err != nil {
		if prev == StateActivated {
			w.state.Store(int32(StateActivated))
		} else {
			w.state.Store(int32(StateRedundant))
		}
		w.hooks.InstallFailed(w.storeName, err)
		w.log.Error("install failed", Fields{"store": w.storeName, "err": err})
		return err
	}

	w.store.Store(&storeRef{store})
	w.state.Store(int32(StateActivated))
	took := time.Since(start)
	w.hooks.InstallCompleted(w.storeName, len(w.assets), took)
	w.log.Info("install completed", Fields{"store": w.storeName, "assets": len(w.assets), "took": took})
	return nil
}

func (w *Worker) install(ctx context.Context) (Store, error) {
	fail := func(stage string, err error) error {
		return &InstallError{Store: w.storeName, Stage: stage, Err: err}
	}

	store, err := w.storage.Open(ctx, w.storeName)
	if err != nil {
		return nil, fail(StageOpen, err)
	}

	reqs := make([]*Request, len(w.assets))
	for i, a := range w.assets {
		r, err := NewRequest(w.scope, a)
		if err != nil {
			return nil, fail(StageFetch, &FetchError{URL: a, Err: err})
		}
		reqs[i] = r
	}

	entries := make([]Entry, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range reqs {
		g.Go(func() error {
			resp, err := w.net.Fetch(gctx, r)
			if err != nil {
				return &FetchError{URL: r.Key(), Err: err}
			}
			if !resp.OK() {
				return &FetchError{URL: r.Key(), Status: resp.Status}
			}
			entries[i] = Entry{Request: r, Response: resp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fail(StageFetch, err)
	}

	if err := store.PutAll(ctx, entries); err != nil {
		return nil, fail(StageWrite, err)
	}
	return store, nil
}

// Fetch answers req from the store when it holds a match, verbatim and
// without touching the network. Otherwise it calls the network exactly once
// and returns the result unmodified; a network failure is returned as a
// *FetchError. A store lookup error counts as a miss.
//
// Until the worker is activated, requests go straight to the network.
func (w *Worker) Fetch(ctx context.Context, req *Request) (*Response, error) {
	resp, _, err := w.fetch(ctx, req)
	return resp, err
}

func (w *Worker) fetch(ctx context.Context, req *Request) (*Response, bool, error) {
	ref := w.store.Load()
	if w.State() != StateActivated || ref == nil {
		resp, err := w.network(ctx, req)
		return resp, false, err
	}

	key := req.Key()
	resp, ok, err := ref.Match(ctx, req)
	if err != nil {
		w.hooks.StoreError("match", err)
		w.log.Warn("store lookup failed", Fields{"key": key, "err": err})
	}
	if ok {
		w.hooks.CacheHit(key)
		w.log.Debug("cache hit", Fields{"key": key})
		return resp, true, nil
	}

	w.hooks.CacheMiss(key)
	w.log.Debug("cache miss", Fields{"key": key})
	resp, err = w.network(ctx, req)
	return resp, false, err
}

func (w *Worker) network(ctx context.Context, req *Request) (*Response, error) {
	resp, err := w.net.Fetch(ctx, req)
	if err != nil {
		w.hooks.NetworkError(req.Key(), err)
		return nil, &FetchError{URL: req.Key(), Err: err}
	}
	return resp, nil
}

// ServeHTTP intercepts r: the request is resolved against the scope, passed
// to Fetch and the response copied out with an X-Cache header. Network
// failures are rendered as 502.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	req, err := w.requestFrom(r)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	resp, hit, err := w.fetch(r.Context(), req)
	if err != nil {
		http.Error(rw, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	h := rw.Header()
	for k, vs := range resp.Header {
		h[k] = append([]string(nil), vs...)
	}
	if hit {
		h.Set(headerCache, headerCacheHit)
	} else {
		h.Set(headerCache, headerCacheMiss)
	}
	rw.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		_, _ = rw.Write(resp.Body)
	}
}

func (w *Worker) requestFrom(r *http.Request) (*Request, error) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = b
	}
	target := w.scope.ResolveReference(&url.URL{
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	})
	return &Request{
		Method: r.Method,
		URL:    target,
		Header: r.Header.Clone(),
		Body:   body,
	}, nil
}
