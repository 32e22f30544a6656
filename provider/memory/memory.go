// Package memory is an in-process provider backed by a map.
package memory

import (
	"context"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/swcache/provider"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no expiry
}

// Provider keeps values in a map guarded by a mutex. The zero value is not
// usable; call New.
type Provider struct {
	mu  sync.RWMutex
	m   map[string]entry
	now func() time.Time
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Batcher  = (*Provider)(nil)
)

func New() *Provider {
	return &Provider{m: make(map[string]entry), now: time.Now}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	e, ok := p.m[key]
	p.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && p.now().After(e.exp) {
		p.mu.Lock()
		if cur, ok := p.m[key]; ok && cur.exp.Equal(e.exp) {
			delete(p.m, key)
		}
		p.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.v...), true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = p.now().Add(ttl)
	}
	p.mu.Lock()
	p.m[key] = entry{v: append([]byte(nil), value...), exp: exp}
	p.mu.Unlock()
	return true, nil
}

// SetBatch stores all items under a single lock acquisition.
func (p *Provider) SetBatch(_ context.Context, items []pr.Item) error {
	cp := make([]entry, len(items))
	for i, it := range items {
		cp[i] = entry{v: append([]byte(nil), it.Value...)}
	}
	p.mu.Lock()
	for i, it := range items {
		p.m[it.Key] = cp[i]
	}
	p.mu.Unlock()
	return nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

// Len reports the number of stored keys, expired ones included.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}

func (p *Provider) Close(_ context.Context) error { return nil }
