package router

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDeduplicatorExpires(t *testing.T) {
	d := NewMemoryDeduplicator(time.Minute)
	now := time.Unix(0, 0)
	d.now = func() time.Time { return now }

	ctx := context.Background()
	if fresh, _ := d.FirstSeen(ctx, "k"); !fresh {
		t.Fatalf("first delivery should be fresh")
	}
	if fresh, _ := d.FirstSeen(ctx, "k"); fresh {
		t.Fatalf("second delivery should be a duplicate")
	}
	now = now.Add(2 * time.Minute)
	if fresh, _ := d.FirstSeen(ctx, "k"); !fresh {
		t.Fatalf("key should expire after the ttl")
	}
}

func TestMemoryDeduplicatorSweepsOncePerTTL(t *testing.T) {
	d := NewMemoryDeduplicator(time.Minute)
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	d.FirstSeen(ctx, "a")
	d.FirstSeen(ctx, "b")
	now = now.Add(90 * time.Second)

	// a and b have expired; the sweep that runs here removes them
	d.FirstSeen(ctx, "c")
	if d.Len() != 1 {
		t.Fatalf("expected expired keys swept, %d held", d.Len())
	}

	now = now.Add(30 * time.Second)
	d.FirstSeen(ctx, "d")
	d.FirstSeen(ctx, "e")
	if d.Len() != 3 {
		t.Fatalf("no sweep expected within the ttl, %d held", d.Len())
	}
	if fresh, _ := d.FirstSeen(ctx, "c"); fresh {
		t.Fatalf("unexpired key should still be a duplicate")
	}
}
