package swcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/swcache/codec"
	gen "github.com/unkn0wn-root/swcache/genstore"
	pr "github.com/unkn0wn-root/swcache/provider"
)

// Fetcher is the network. It must return the response as received, non-2xx
// statuses included, and an error only when no response was obtained.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) { return f(ctx, req) }

// Store is what the worker needs from a named store.
type Store interface {
	// Match returns the stored response for req; ok=false on miss.
	Match(ctx context.Context, req *Request) (resp *Response, ok bool, err error)
	// PutAll stores every entry, or none of them.
	PutAll(ctx context.Context, entries []Entry) error
}

// Opener opens (or creates) a store by name.
type Opener interface {
	Open(ctx context.Context, name string) (Store, error)
}

// CachesOptions configure the stores opened by a Caches.
// Only Provider is required; others have sensible defaults.
type CachesOptions struct {
	Provider pr.Provider
	Codec    c.Codec[Record] // nil => JSON
	GenStore gen.GenStore    // nil => LocalGenStore (in-process)

	Logger          Logger        // if nil, NopLogger is used
	Hooks           Hooks         // if nil, NopHooks is used
	CleanupInterval time.Duration // local gen cleanup; 0 => never
	GenRetention    time.Duration // local gen retention; 0 => keep forever
}

// Options configure a Worker.
type Options struct {
	// Required
	Scope   string  // absolute base URL assets and requests resolve against
	Storage Opener  // where the named store lives
	Fetcher Fetcher // the network

	StoreName string   // "" => DefaultStoreName
	Assets    []string // nil => DefaultAssets
	Logger    Logger   // if nil, NopLogger is used
	Hooks     Hooks    // if nil, NopHooks is used
}
