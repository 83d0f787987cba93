package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryStore_ClaimOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, _ := s.Claim(ctx, "sig-1", time.Minute)
	second, _ := s.Claim(ctx, "sig-1", time.Minute)

	if first.State != StateClaimed {
		t.Errorf("first claim: got %v", first.State)
	}
	if second.State != StateInFlight {
		t.Errorf("second claim: got %v", second.State)
	}
}

func TestMemoryStore_ConcurrentClaims(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var claimed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.Claim(ctx, "same-key", time.Minute)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if c.State == StateClaimed {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()

	if claimed.Load() != 1 {
		t.Errorf("expected exactly one claim, got %d", claimed.Load())
	}
}

func TestMemoryStore_CompleteReturnsResult(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Claim(ctx, "k", time.Minute)
	s.Complete(ctx, "k", json.RawMessage(`{"signature":"abc"}`), time.Hour)

	c, _ := s.Claim(ctx, "k", time.Minute)
	if c.State != StateCompleted {
		t.Fatalf("expected completed, got %v", c.State)
	}
	if string(c.Result) != `{"signature":"abc"}` {
		t.Errorf("unexpected result %s", c.Result)
	}
}

func TestMemoryStore_ReleaseAllowsReclaim(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Claim(ctx, "k", time.Minute)
	s.Release(ctx, "k")

	c, _ := s.Claim(ctx, "k", time.Minute)
	if c.State != StateClaimed {
		t.Errorf("expected reclaim after release, got %v", c.State)
	}
}

func TestMemoryStore_ReleaseKeepsCompleted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Complete(ctx, "k", json.RawMessage(`1`), time.Hour)
	s.Release(ctx, "k")

	c, _ := s.Lookup(ctx, "k")
	if c.State != StateCompleted {
		t.Errorf("release must not drop completed keys, got %v", c.State)
	}
}

func TestMemoryStore_ClaimExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	s.Claim(ctx, "k", time.Minute)
	now = now.Add(2 * time.Minute)

	c, _ := s.Claim(ctx, "k", time.Minute)
	if c.State != StateClaimed {
		t.Errorf("expired claim should be reclaimable, got %v", c.State)
	}
}
