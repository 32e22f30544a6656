package bbolt

import (
	"context"
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"

	gen "github.com/unkn0wn-root/swcache/genstore"
)

// GenStore keeps generations in the provider's database file, so they
// survive restarts together with the entries framed under them.
type GenStore struct {
	db     *bolt.DB
	bucket []byte
}

var _ gen.GenStore = (*GenStore)(nil)

// Generations returns the generation store sharing p's file. It is valid
// until p is closed.
func (p *Provider) Generations() *GenStore {
	return &GenStore{db: p.db, bucket: []byte(genBucket)}
}

func readGen(b *bolt.Bucket, k string) uint64 {
	v := b.Get([]byte(k))
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func (s *GenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	var g uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		g = readGen(tx.Bucket(s.bucket), k)
		return nil
	})
	return g, err
}

func (s *GenStore) SnapshotMany(_ context.Context, ks []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(ks))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, k := range ks {
			out[k] = readGen(b, k)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GenStore) Bump(_ context.Context, k string) (uint64, error) {
	var g uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		g = readGen(b, k) + 1
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], g)
		return b.Put([]byte(k), buf[:])
	})
	if err != nil {
		return 0, err
	}
	return g, nil
}

// Cleanup is a no-op: a generation may guard an entry that never expires.
func (s *GenStore) Cleanup(time.Duration) {}

// Close is a no-op; the provider owns the file.
func (s *GenStore) Close(context.Context) error { return nil }
