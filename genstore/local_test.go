package genstore

import (
	"context"
	"testing"
	"time"
)

func TestLocalBumpAndSnapshotMany(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	for i := 0; i < 2; i++ {
		if _, err := s.Bump(ctx, "entry:post-cache:http://h/index.html"); err != nil {
			t.Fatal(err)
		}
	}

	keys := []string{"entry:post-cache:http://h/", "entry:post-cache:http://h/index.html"}
	in := append([]string(nil), keys...)
	got, err := s.SnapshotMany(ctx, keys)
	if err != nil {
		t.Fatal(err)
	}
	if got[keys[0]] != 0 || got[keys[1]] != 2 || len(got) != 2 {
		t.Fatalf("got=%v want %s=0 %s=2", got, keys[0], keys[1])
	}
	for i := range in {
		if in[i] != keys[i] {
			t.Fatalf("input mutated at %d", i)
		}
	}
}

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Bump(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	// backdate instead of sleeping
	s.mu.Lock()
	e := s.gens["old"]
	e.UpdatedAt = time.Now().Add(-2 * time.Hour)
	s.gens["old"] = e
	s.mu.Unlock()
	if _, err := s.Bump(ctx, "fresh"); err != nil {
		t.Fatal(err)
	}

	s.Cleanup(time.Hour)

	if g, _ := s.Snapshot(ctx, "old"); g != 0 {
		t.Fatalf("expected pruned -> 0, got %d", g)
	}
	if g, _ := s.Snapshot(ctx, "fresh"); g != 1 {
		t.Fatalf("fresh gen should survive cleanup, got %d", g)
	}
}

func TestLocalCloseIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(time.Millisecond, time.Hour)
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
}
