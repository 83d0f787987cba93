package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Swarm/internal/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBroker() (*MemoryBroker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewMemoryBroker().WithClock(clock.Now), clock
}

func TestMemoryBroker_PriorityOrdering(t *testing.T) {
	b, _ := newTestBroker()
	ctx := context.Background()

	low, _ := b.Enqueue(ctx, "trades", "buy", nil, EnqueueOptions{Priority: 10})
	high, _ := b.Enqueue(ctx, "trades", "buy", nil, EnqueueOptions{Priority: 1})

	job, err := b.Lease(ctx, "trades", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != high.ID {
		t.Errorf("expected priority 1 job first, got priority %d", job.Priority)
	}

	job, err = b.Lease(ctx, "trades", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != low.ID {
		t.Errorf("expected priority 10 job second")
	}
}

func TestMemoryBroker_FIFOWithinPriority(t *testing.T) {
	b, _ := newTestBroker()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		j, _ := b.Enqueue(ctx, "trades", "buy", map[string]int{"n": i}, EnqueueOptions{Priority: 5})
		ids = append(ids, j.ID)
	}

	for i, want := range ids {
		job, err := b.Lease(ctx, "trades", time.Minute)
		if err != nil {
			t.Fatalf("lease %d: %v", i, err)
		}
		if job.ID != want {
			t.Errorf("lease %d: got %s, want %s", i, job.ID, want)
		}
	}
}

func TestMemoryBroker_EmptyQueue(t *testing.T) {
	b, _ := newTestBroker()

	_, err := b.Lease(context.Background(), "trades", time.Minute)
	if !errors.Is(err, ErrNoJob) {
		t.Errorf("expected ErrNoJob, got %v", err)
	}
}

func TestMemoryBroker_QueuesAreIsolated(t *testing.T) {
	b, _ := newTestBroker()
	ctx := context.Background()

	b.Enqueue(ctx, "webhooks", "webhook.deliver", nil, EnqueueOptions{})

	if _, err := b.Lease(ctx, "trades", time.Minute); !errors.Is(err, ErrNoJob) {
		t.Errorf("trades queue should be empty, got %v", err)
	}
	if _, err := b.Lease(ctx, "webhooks", time.Minute); err != nil {
		t.Errorf("webhooks queue should have a job: %v", err)
	}
}

func TestMemoryBroker_Delay(t *testing.T) {
	b, clock := newTestBroker()
	ctx := context.Background()

	b.Enqueue(ctx, "trades", "sell", nil, EnqueueOptions{Delay: 5 * time.Second})

	if _, err := b.Lease(ctx, "trades", time.Minute); !errors.Is(err, ErrNoJob) {
		t.Fatalf("delayed job must not be leased early, got %v", err)
	}

	delayed, _ := b.ListJobs(ctx, "trades", domain.JobStateDelayed)
	if len(delayed) != 1 {
		t.Fatalf("expected 1 delayed job, got %d", len(delayed))
	}

	clock.Advance(5 * time.Second)

	if _, err := b.Lease(ctx, "trades", time.Minute); err != nil {
		t.Errorf("job should be available after delay: %v", err)
	}
}

func TestMemoryBroker_UniqueJobID(t *testing.T) {
	b, _ := newTestBroker()
	ctx := context.Background()

	first, _ := b.Enqueue(ctx, "webhooks", "webhook.deliver", map[string]string{"a": "1"}, EnqueueOptions{JobID: "delivery-1"})
	second, _ := b.Enqueue(ctx, "webhooks", "webhook.deliver", map[string]string{"a": "2"}, EnqueueOptions{JobID: "delivery-1"})

	if first.ID != second.ID {
		t.Errorf("expected same job id")
	}
	if string(second.Payload) != string(first.Payload) {
		t.Errorf("duplicate enqueue must return the original job, got %s", second.Payload)
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 job, got %d", b.Len())
	}
}

func TestMemoryBroker_LeaseExpiry(t *testing.T) {
	b, clock := newTestBroker()
	ctx := context.Background()

	b.Enqueue(ctx, "trades", "buy", nil, EnqueueOptions{})

	first, err := b.Lease(ctx, "trades", 30*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := b.Lease(ctx, "trades", 30*time.Second); !errors.Is(err, ErrNoJob) {
		t.Fatalf("leased job must not be handed out twice, got %v", err)
	}

	clock.Advance(31 * time.Second)

	again, err := b.Lease(ctx, "trades", 30*time.Second)
	if err != nil {
		t.Fatalf("expired lease should be redelivered: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("expected redelivery of %s, got %s", first.ID, again.ID)
	}
}

func TestMemoryBroker_Retry(t *testing.T) {
	b, clock := newTestBroker()
	ctx := context.Background()

	b.Enqueue(ctx, "trades", "buy", nil, EnqueueOptions{MaxAttempts: 5})

	job, _ := b.Lease(ctx, "trades", time.Minute)
	job.AttemptsMade = 1
	job.LastError = "rpc unavailable"

	if err := b.Retry(ctx, job, 2*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := b.Lease(ctx, "trades", time.Minute); !errors.Is(err, ErrNoJob) {
		t.Fatalf("retried job should be delayed")
	}

	clock.Advance(2 * time.Second)

	retried, err := b.Lease(ctx, "trades", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retried.AttemptsMade != 1 || retried.LastError != "rpc unavailable" {
		t.Errorf("retry must keep attempts and error, got %d %q", retried.AttemptsMade, retried.LastError)
	}
}

func TestMemoryBroker_RetryRequiresLease(t *testing.T) {
	b, _ := newTestBroker()
	ctx := context.Background()

	job, _ := b.Enqueue(ctx, "trades", "buy", nil, EnqueueOptions{})

	if err := b.Retry(ctx, job, 0); !errors.Is(err, ErrNotLeased) {
		t.Errorf("expected ErrNotLeased, got %v", err)
	}
	if err := b.Retry(ctx, &domain.Job{ID: "missing"}, 0); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRemoveCampaignJobs(t *testing.T) {
	b, _ := newTestBroker()
	ctx := context.Background()

	campaign := uuid.New()
	other := uuid.New()

	b.Enqueue(ctx, "trades", "buy", nil, EnqueueOptions{CampaignID: campaign})
	b.Enqueue(ctx, "trades", "sell", nil, EnqueueOptions{CampaignID: campaign, Delay: time.Minute})
	b.Enqueue(ctx, "distributions", "distribute", nil, EnqueueOptions{CampaignID: campaign})
	b.Enqueue(ctx, "trades", "buy", nil, EnqueueOptions{CampaignID: other})

	removed, err := RemoveCampaignJobs(ctx, b, campaign, "trades", "distributions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}

	for _, q := range []string{"trades", "distributions"} {
		jobs, _ := b.ListJobs(ctx, q, domain.JobStateWaiting, domain.JobStateDelayed)
		if left := FilterByCampaign(jobs, campaign); len(left) != 0 {
			t.Errorf("queue %s still has %d campaign jobs", q, len(left))
		}
	}

	jobs, _ := b.ListJobs(ctx, "trades")
	if len(FilterByCampaign(jobs, other)) != 1 {
		t.Error("other campaign jobs must survive")
	}
}

func TestWithMaxAttempts(t *testing.T) {
	mem, _ := newTestBroker()
	b := WithMaxAttempts(mem, 7)
	ctx := context.Background()

	def, err := b.Enqueue(ctx, "trades", "buy", nil, EnqueueOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.MaxAttempts != 7 {
		t.Errorf("expected max attempts 7, got %d", def.MaxAttempts)
	}

	explicit, _ := b.Enqueue(ctx, "trades", "buy", nil, EnqueueOptions{MaxAttempts: 2})
	if explicit.MaxAttempts != 2 {
		t.Errorf("explicit max attempts overridden: %d", explicit.MaxAttempts)
	}

	if WithMaxAttempts(mem, 0) != Broker(mem) {
		t.Error("zero limit should return the broker unchanged")
	}
}
