package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shaiso/Swarm/internal/domain"
)

type memEntry struct {
	job        domain.Job
	state      domain.JobState
	leaseUntil time.Time
	seq        uint64
}

// MemoryBroker — Broker в памяти процесса.
//
// Используется в тестах и в однопроцессном режиме. Семантика совпадает
// с RedisBroker: приоритет, затем FIFO; delayed jobs выдаются после RunAt;
// просроченные lease возвращаются в waiting.
type MemoryBroker struct {
	mu   sync.Mutex
	jobs map[string]*memEntry
	seq  uint64
	now  func() time.Time
}

// NewMemoryBroker создаёт MemoryBroker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		jobs: make(map[string]*memEntry),
		now:  time.Now,
	}
}

// WithClock подменяет источник времени.
func (b *MemoryBroker) WithClock(now func() time.Time) *MemoryBroker {
	b.now = now
	return b
}

// Enqueue ставит job в очередь.
func (b *MemoryBroker) Enqueue(ctx context.Context, queue, jobType string, payload any, opts EnqueueOptions) (*domain.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if opts.JobID != "" {
		if e, ok := b.jobs[opts.JobID]; ok {
			job := e.job
			return &job, nil
		}
	}

	job, err := newJob(queue, jobType, payload, opts, b.now())
	if err != nil {
		return nil, err
	}

	state := domain.JobStateWaiting
	if opts.Delay > 0 {
		state = domain.JobStateDelayed
	}

	b.seq++
	b.jobs[job.ID] = &memEntry{job: *job, state: state, seq: b.seq}

	return job, nil
}

// Lease выдаёт следующий job очереди.
func (b *MemoryBroker) Lease(ctx context.Context, queue string, leaseFor time.Duration) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.promote(now)

	var best *memEntry
	for _, e := range b.jobs {
		if e.job.Queue != queue || e.state != domain.JobStateWaiting {
			continue
		}
		if best == nil || less(e, best) {
			best = e
		}
	}

	if best == nil {
		return nil, ErrNoJob
	}

	best.state = domain.JobStateActive
	best.leaseUntil = now.Add(leaseFor)

	job := best.job
	return &job, nil
}

// Retry возвращает выданный job в очередь с задержкой.
func (b *MemoryBroker) Retry(ctx context.Context, job *domain.Job, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.jobs[job.ID]
	if !ok {
		return ErrJobNotFound
	}
	if e.state != domain.JobStateActive {
		return ErrNotLeased
	}

	now := b.now()
	e.job.AttemptsMade = job.AttemptsMade
	e.job.LastError = job.LastError
	e.job.PendingDeadLetter = job.PendingDeadLetter
	e.job.RunAt = now.Add(delay)
	e.leaseUntil = time.Time{}

	b.seq++
	e.seq = b.seq

	if delay > 0 {
		e.state = domain.JobStateDelayed
	} else {
		e.state = domain.JobStateWaiting
	}

	return nil
}

// Remove удаляет job.
func (b *MemoryBroker) Remove(ctx context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.jobs, jobID)
	return nil
}

// ListJobs возвращает jobs очереди в указанных состояниях.
// Без states возвращает jobs во всех состояниях.
func (b *MemoryBroker) ListJobs(ctx context.Context, queue string, states ...domain.JobState) ([]domain.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.promote(b.now())

	var entries []*memEntry
	for _, e := range b.jobs {
		if e.job.Queue != queue {
			continue
		}
		if len(states) > 0 && !slices.Contains(states, e.state) {
			continue
		}
		entries = append(entries, e)
	}

	slices.SortFunc(entries, func(a, c *memEntry) int {
		if less(a, c) {
			return -1
		}
		if less(c, a) {
			return 1
		}
		return 0
	})

	jobs := make([]domain.Job, len(entries))
	for i, e := range entries {
		jobs[i] = e.job
	}
	return jobs, nil
}

// Len возвращает общее количество jobs во всех очередях.
func (b *MemoryBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.jobs)
}

// promote переводит наступившие delayed jobs и просроченные lease в waiting.
func (b *MemoryBroker) promote(now time.Time) {
	for _, e := range b.jobs {
		switch e.state {
		case domain.JobStateDelayed:
			if !e.job.RunAt.After(now) {
				e.state = domain.JobStateWaiting
			}
		case domain.JobStateActive:
			if !e.leaseUntil.IsZero() && !e.leaseUntil.After(now) {
				e.state = domain.JobStateWaiting
				e.leaseUntil = time.Time{}
			}
		}
	}
}

func less(a, b *memEntry) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority < b.job.Priority
	}
	return a.seq < b.seq
}
