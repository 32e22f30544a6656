package swcache

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	c "github.com/unkn0wn-root/swcache/codec"
	gen "github.com/unkn0wn-root/swcache/genstore"
	"github.com/unkn0wn-root/swcache/internal/util"
	"github.com/unkn0wn-root/swcache/internal/wire"
	pr "github.com/unkn0wn-root/swcache/provider"
)

// Caches opens named stores that share one provider and generation store.
type Caches struct {
	provider pr.Provider
	codec    c.Codec[Record]
	gen      gen.GenStore
	log      Logger
	hooks    Hooks

	mu        sync.Mutex
	stores    map[string]*Cache
	closeOnce sync.Once
}

var _ Opener = (*Caches)(nil)

func NewCaches(opts CachesOptions) (*Caches, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("swcache: provider is required")
	}

	s := &Caches{
		provider: opts.Provider,
		stores:   make(map[string]*Cache),
	}

	// defaults
	s.codec = coalesce[c.Codec[Record]](opts.Codec, c.JSON[Record]{})
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.GenStore != nil {
		s.gen = opts.GenStore
	} else {
		// entries never expire, so generations are only pruned on request
		s.gen = gen.NewLocalGenStore(opts.CleanupInterval, opts.GenRetention)
	}
	return s, nil
}

// Open implements Opener.
func (s *Caches) Open(_ context.Context, name string) (Store, error) {
	return s.Cache(name)
}

// Cache opens (or creates) the named store. Opening is cheap: nothing is
// written until the first Put.
func (s *Caches) Cache(name string) (*Cache, error) {
	if name == "" {
		return nil, fmt.Errorf("swcache: store name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cc, ok := s.stores[name]; ok {
		return cc, nil
	}
	cc := &Cache{name: name, s: s}
	s.stores[name] = cc
	return cc, nil
}

// Close closes the generation store first (best effort), then the provider.
func (s *Caches) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.gen.Close(ctx)
		err = s.provider.Close(ctx)
	})
	return err
}

// Cache is one named store. Entries are keyed by request identity and are
// never expired.
type Cache struct {
	name string
	s    *Caches

	// serializes writers; the index is read-modify-write. Readers take it
	// only when the provider has no atomic batch.
	mu sync.RWMutex
}

var _ Store = (*Cache)(nil)

func (cc *Cache) Name() string { return cc.name }

// Match returns the stored response for req. Only GET requests match.
// Corrupt frames, stale generations and undecodable records are deleted and
// reported as a miss. A stored response with "Vary: *" never matches.
//
// An entry is stale when it was framed under an older generation than the
// current one. A frame ahead of the current generation means the counters
// were lost (pruned or reset on restart), and the entry still matches.
func (cc *Cache) Match(ctx context.Context, req *Request) (*Response, bool, error) {
	if !req.IsGet() {
		return nil, false, nil
	}
	key := req.Key()
	sk := util.EntryKey(cc.name, key)

	unlock := cc.readLock()
	defer unlock()

	raw, ok, err := cc.s.provider.Get(ctx, sk)
	if err != nil || !ok {
		return nil, false, err
	}
	g, payload, err := wire.DecodeSingle(raw)
	if err != nil {
		cc.selfHeal(ctx, sk, "corrupt")
		return nil, false, nil
	}
	cur, err := cc.s.gen.Snapshot(ctx, sk)
	if err != nil {
		return nil, false, fmt.Errorf("swcache: snapshot %s: %w", key, err)
	}
	if g < cur {
		cc.selfHeal(ctx, sk, "gen_mismatch")
		return nil, false, nil
	}
	rec, err := cc.s.codec.Decode(payload)
	if err != nil || rec.Key != key {
		cc.selfHeal(ctx, sk, "value_decode")
		return nil, false, nil
	}

	resp := rec.Response()
	if varyAll(resp.Header) {
		return nil, false, nil
	}
	return resp, true, nil
}

// Put stores a single entry.
func (cc *Cache) Put(ctx context.Context, e Entry) error {
	return cc.PutAll(ctx, []Entry{e})
}

// PutAll stores every entry and the updated index, or nothing. Providers that
// implement provider.Batcher get one atomic call; others are written key by
// key and restored to their previous bytes if any write fails or is rejected.
func (cc *Cache) PutAll(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	keys := make([]string, len(entries))
	storage := make([]string, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.Request == nil || e.Response == nil {
			return fmt.Errorf("swcache: entry %d: request and response are required", i)
		}
		k := e.Request.Key()
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, k)
		}
		seen[k] = struct{}{}
		keys[i] = k
		storage[i] = util.EntryKey(cc.name, k)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	gens, err := cc.s.gen.SnapshotMany(ctx, storage)
	if err != nil {
		return fmt.Errorf("swcache: snapshot generations: %w", err)
	}

	items := make([]pr.Item, 0, len(entries)+1)
	for i, e := range entries {
		payload, err := cc.s.codec.Encode(newRecord(keys[i], e.Response))
		if err != nil {
			return fmt.Errorf("swcache: encode %s: %w", keys[i], err)
		}
		items = append(items, pr.Item{
			Key:   storage[i],
			Value: wire.EncodeSingle(gens[storage[i]], payload),
		})
	}

	index, err := cc.readIndex(ctx)
	if err != nil {
		return err
	}
	for i, k := range keys {
		index = upsertIndex(index, k, gens[storage[i]])
	}
	ib, err := wire.EncodeBulk(index)
	if err != nil {
		return fmt.Errorf("swcache: encode index: %w", err)
	}
	items = append(items, pr.Item{Key: util.IndexKey(cc.name), Value: ib})

	if err := cc.write(ctx, items); err != nil {
		return err
	}
	cc.s.log.Debug("stored batch", Fields{"store": cc.name, "entries": len(entries)})
	return nil
}

// Delete removes the entry for req and reports whether one existed. The
// generation is bumped before the delete, so a copy that survives a failed
// delete no longer matches.
func (cc *Cache) Delete(ctx context.Context, req *Request) (bool, error) {
	if !req.IsGet() {
		return false, nil
	}
	key := req.Key()
	sk := util.EntryKey(cc.name, key)

	cc.mu.Lock()
	defer cc.mu.Unlock()

	_, existed, err := cc.s.provider.Get(ctx, sk)
	if err != nil {
		return false, err
	}
	_, bumpErr := cc.s.gen.Bump(ctx, sk)
	delErr := cc.s.provider.Del(ctx, sk)
	switch {
	case bumpErr != nil && delErr != nil:
		return false, &DeleteError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	case bumpErr != nil:
		cc.s.hooks.StoreError("gen_bump", bumpErr)
	case delErr != nil:
		cc.s.hooks.StoreError("delete", delErr)
	}

	if err := cc.dropFromIndex(ctx, key); err != nil {
		cc.s.hooks.StoreError("index", err)
		cc.s.log.Warn("index update failed", Fields{"store": cc.name, "err": err})
	}
	cc.s.log.Debug("deleted entry", Fields{"store": cc.name, "key": key})
	return existed, nil
}

// Keys returns the identities recorded in the store index, in insertion order.
func (cc *Cache) Keys(ctx context.Context) ([]string, error) {
	unlock := cc.readLock()
	defer unlock()
	index, err := cc.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(index))
	for _, it := range index {
		out = append(out, it.Key)
	}
	return out, nil
}

// readLock blocks on an in-flight key-by-key batch, which is not atomic.
func (cc *Cache) readLock() func() {
	if _, ok := cc.s.provider.(pr.Batcher); ok {
		return func() {}
	}
	cc.mu.RLock()
	return cc.mu.RUnlock
}

func (cc *Cache) readIndex(ctx context.Context) ([]wire.BulkItem, error) {
	ik := util.IndexKey(cc.name)
	raw, ok, err := cc.s.provider.Get(ctx, ik)
	if err != nil {
		return nil, fmt.Errorf("swcache: read index: %w", err)
	}
	if !ok {
		return nil, nil
	}
	items, err := wire.DecodeBulk(raw)
	if err != nil {
		cc.selfHeal(ctx, ik, "corrupt")
		return nil, nil
	}
	// payloads alias raw; the index never carries any
	return items, nil
}

func (cc *Cache) dropFromIndex(ctx context.Context, key string) error {
	index, err := cc.readIndex(ctx)
	if err != nil {
		return err
	}
	kept := index[:0]
	for _, it := range index {
		if it.Key != key {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(index) {
		return nil
	}
	ik := util.IndexKey(cc.name)
	if len(kept) == 0 {
		return cc.s.provider.Del(ctx, ik)
	}
	ib, err := wire.EncodeBulk(kept)
	if err != nil {
		return err
	}
	ok, err := cc.s.provider.Set(ctx, ik, ib, int64(len(ib)), 0)
	if err == nil && !ok {
		err = ErrSetRejected
	}
	return err
}

func upsertIndex(index []wire.BulkItem, key string, g uint64) []wire.BulkItem {
	for i := range index {
		if index[i].Key == key {
			index[i].Gen = g
			return index
		}
	}
	return append(index, wire.BulkItem{Key: key, Gen: g})
}

func (cc *Cache) write(ctx context.Context, items []pr.Item) error {
	if b, ok := cc.s.provider.(pr.Batcher); ok {
		if err := b.SetBatch(ctx, items); err != nil {
			return fmt.Errorf("swcache: batch write: %w", err)
		}
		return nil
	}
	return cc.writeEach(ctx, items)
}

type prior struct {
	key     string
	value   []byte
	existed bool
}

func (cc *Cache) writeEach(ctx context.Context, items []pr.Item) error {
	done := make([]prior, 0, len(items))
	for _, it := range items {
		old, existed, err := cc.s.provider.Get(ctx, it.Key)
		if err != nil {
			cc.rollback(ctx, done)
			return fmt.Errorf("swcache: read %s: %w", it.Key, err)
		}
		// recorded before Set: a failed Set may still have landed
		done = append(done, prior{key: it.Key, value: old, existed: existed})

		ok, err := cc.s.provider.Set(ctx, it.Key, it.Value, int64(len(it.Value)), 0)
		if err == nil && !ok {
			err = ErrSetRejected
		}
		if err != nil {
			cc.rollback(ctx, done)
			return fmt.Errorf("swcache: write %s: %w", it.Key, err)
		}
	}
	// an admission later in the batch can evict an earlier write
	for _, it := range items {
		_, ok, err := cc.s.provider.Get(ctx, it.Key)
		if err == nil && !ok {
			err = fmt.Errorf("%w: evicted during batch", ErrSetRejected)
		}
		if err != nil {
			cc.rollback(ctx, done)
			return fmt.Errorf("swcache: verify %s: %w", it.Key, err)
		}
	}
	return nil
}

func (cc *Cache) rollback(ctx context.Context, done []prior) {
	ctx = context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		p := done[i]
		var err error
		if p.existed {
			_, err = cc.s.provider.Set(ctx, p.key, p.value, int64(len(p.value)), 0)
		} else {
			err = cc.s.provider.Del(ctx, p.key)
		}
		if err != nil {
			cc.s.hooks.StoreError("rollback", err)
			cc.s.log.Error("rollback failed", Fields{"store": cc.name, "key": p.key, "err": err})
		}
	}
}

func (cc *Cache) selfHeal(ctx context.Context, storageKey, reason string) {
	_ = cc.s.provider.Del(ctx, storageKey)
	cc.s.hooks.SelfHeal(storageKey, reason)
	cc.s.log.Debug("self-healed entry", Fields{"key": storageKey, "reason": reason})
}

func varyAll(h http.Header) bool {
	for _, v := range h.Values("Vary") {
		for _, f := range strings.Split(v, ",") {
			if strings.TrimSpace(f) == "*" {
				return true
			}
		}
	}
	return false
}
