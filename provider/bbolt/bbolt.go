// Package bbolt is a file-backed provider on go.etcd.io/bbolt. Stored
// entries survive restarts, and SetBatch commits in one transaction.
package bbolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	pr "github.com/unkn0wn-root/swcache/provider"
)

const (
	defaultBucket = "swcache"
	genBucket     = "swcache.gens"
)

var errShortValue = errors.New("bbolt provider: short value")

type Provider struct {
	db     *bolt.DB
	bucket []byte
	now    func() time.Time
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Batcher  = (*Provider)(nil)
)

type Config struct {
	Path    string        // database file; created if missing
	Bucket  string        // "" => "swcache"
	Timeout time.Duration // wait for the file lock; 0 waits forever
}

func New(cfg Config) (*Provider, error) {
	if cfg.Path == "" {
		return nil, errors.New("bbolt provider: path is required")
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("bbolt provider: open %s: %w", cfg.Path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucket, genBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bbolt provider: create bucket: %w", err)
	}
	return &Provider{db: db, bucket: []byte(bucket), now: time.Now}, nil
}

// values are stored as: expiry unix nanos u64 (0 = none) | bytes

func (p *Provider) encode(value []byte, ttl time.Duration) []byte {
	out := make([]byte, 8+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(out[:8], uint64(p.now().Add(ttl).UnixNano()))
	}
	copy(out[8:], value)
	return out
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	var (
		out []byte
		ok  bool
	)
	err := p.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(p.bucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if len(raw) < 8 {
			return errShortValue
		}
		if exp := binary.BigEndian.Uint64(raw[:8]); exp != 0 && p.now().UnixNano() > int64(exp) {
			return nil
		}
		// raw is only valid inside the transaction
		out = append([]byte(nil), raw[8:]...)
		ok = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, ok, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucket).Put([]byte(key), p.encode(value, ttl))
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetBatch writes every item in one read-write transaction.
func (p *Provider) SetBatch(_ context.Context, items []pr.Item) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(p.bucket)
		for _, it := range items {
			if err := b.Put([]byte(it.Key), p.encode(it.Value, 0)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Provider) Del(_ context.Context, key string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucket).Delete([]byte(key))
	})
}

func (p *Provider) Close(_ context.Context) error {
	return p.db.Close()
}
