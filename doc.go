// Package swcache precaches a fixed list of static assets into one named
// store and answers requests cache-first.
//
// Components:
//   - Worker: the two handlers. Install warms the store as one atomic batch;
//     Fetch (and ServeHTTP) serve hits verbatim and forward misses to the
//     network exactly once.
//   - Caches / Cache: named stores over a byte Provider (memory, bbolt, BigCache,
//     Ristretto, Redis), a Codec for records, and a GenStore for per-entry
//     generations.
//   - Fetcher: the network. network.HTTP is the default implementation.
//
// Keys:
//
//	entry:<store>:<url>  - one stored response per request identity
//	index:<store>        - identities held by the store, in insertion order
//
// Entries are never expired, refreshed or evicted by the worker. Installing
// a changed asset list under the same store name adds the new entries and
// leaves entries from earlier lists in place.
//
// Typical wiring:
//
//	caches, _ := swcache.NewCaches(swcache.CachesOptions{Provider: memory.New()})
//	w, _ := swcache.New(swcache.Options{
//	    Scope:   "http://localhost:8080/",
//	    Storage: caches,
//	    Fetcher: network.New(network.Options{}),
//	})
//	if err := w.Install(ctx); err != nil { ... }
//	http.ListenAndServe(":8081", w)
package swcache
