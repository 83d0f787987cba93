package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBackoff_Table(t *testing.T) {
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		32000 * time.Millisecond,
		60000 * time.Millisecond,
		60000 * time.Millisecond,
	}

	for attemptsMade, expected := range want {
		if got := Backoff(attemptsMade); got != expected {
			t.Errorf("Backoff(%d) = %v, want %v", attemptsMade, got, expected)
		}
	}
}

func TestBackoff_LargeAttemptsCapped(t *testing.T) {
	if got := Backoff(1000); got != 60*time.Second {
		t.Errorf("expected cap 60s, got %v", got)
	}
}

func TestWebhookPolicy(t *testing.T) {
	cases := map[int]time.Duration{
		1: 2 * time.Minute,
		2: 4 * time.Minute,
		5: 32 * time.Minute,
		6: time.Hour,
	}
	for attempt, expected := range cases {
		if got := WebhookPolicy.Delay(attempt); got != expected {
			t.Errorf("WebhookPolicy.Delay(%d) = %v, want %v", attempt, got, expected)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"plain", errors.New("boom"), Transient},
		{"configuration", Configurationf("relay key missing"), Configuration},
		{"business", Businessf("no balance"), Business},
		{"wrapped business", fmt.Errorf("sell: %w", Businessf("no balance")), Business},
		{"ambiguous", AsAmbiguous(errors.New("confirmation timeout")), Ambiguous},
		{"429 text", errors.New("rpc: HTTP 429 Too Many Requests"), RateLimited},
		{"explicit rate limited", AsRateLimited(errors.New("slow down")), RateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v", got, tt.kind)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if !IsRetryable(errors.New("connection reset")) {
		t.Error("plain errors should be retryable")
	}
	if IsRetryable(Businessf("no balance")) {
		t.Error("business errors should not be retryable")
	}
	if IsRetryable(AsAmbiguous(errors.New("timeout"))) {
		t.Error("ambiguous errors should not be retried blindly")
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Options{
		Attempts: 3,
		Policy:   Policy{Base: time.Millisecond, Max: time.Millisecond},
	}, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Options{
		Attempts: 3,
		Policy:   Policy{Base: time.Millisecond, Max: time.Millisecond},
	}, func(ctx context.Context, attempt int) error {
		calls++
		return Businessf("insufficient funds")
	})

	if KindOf(err) != Business {
		t.Fatalf("expected business error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ReturnsLastError(t *testing.T) {
	var retries []int
	err := Do(context.Background(), Options{
		Attempts: 2,
		Policy:   Policy{Base: time.Millisecond, Max: time.Millisecond},
		OnRetry: func(attempt int, _ time.Duration, _ error) {
			retries = append(retries, attempt)
		},
	}, func(ctx context.Context, attempt int) error {
		return fmt.Errorf("attempt %d failed", attempt)
	})

	if err == nil || err.Error() != "attempt 2 failed" {
		t.Fatalf("expected last error, got %v", err)
	}
	if len(retries) != 1 || retries[0] != 1 {
		t.Errorf("expected one OnRetry call for attempt 1, got %v", retries)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Options{
		Attempts: 3,
		Policy:   Policy{Base: time.Hour, Max: time.Hour},
	}, func(ctx context.Context, attempt int) error {
		return errors.New("temporary")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
