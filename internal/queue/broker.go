package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Swarm/internal/domain"
)

// Ошибки брокера.
var (
	// ErrNoJob — в очереди нет jobs, готовых к выдаче.
	ErrNoJob = errors.New("no job available")

	// ErrJobNotFound — job не найден.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotLeased — операция требует, чтобы job был выдан воркеру.
	ErrNotLeased = errors.New("job is not leased")
)

// DefaultMaxAttempts — значение MaxAttempts, если оно не задано при постановке.
const DefaultMaxAttempts = 3

// EnqueueOptions — параметры постановки job в очередь.
type EnqueueOptions struct {
	// JobID — уникальный ID. Если job с таким ID уже есть, новый не создаётся.
	JobID string

	// Priority — меньшее значение выдаётся раньше.
	Priority int

	// Delay — задержка перед первой выдачей.
	Delay time.Duration

	// MaxAttempts — лимит попыток. 0 — DefaultMaxAttempts.
	MaxAttempts int

	// CampaignID и RunID — теги для фильтрации и статистики.
	CampaignID uuid.UUID
	RunID      uuid.UUID
}

// Broker — очередь jobs с приоритетами и задержкой.
//
// Доставка at-least-once: job, выданный через Lease и не удалённый/не
// возвращённый до истечения lease, снова становится доступен.
type Broker interface {
	// Enqueue ставит job в очередь. При повторе JobID возвращает существующий job.
	Enqueue(ctx context.Context, queue, jobType string, payload any, opts EnqueueOptions) (*domain.Job, error)

	// Lease выдаёт следующий job очереди на время leaseFor. ErrNoJob, если очередь пуста.
	Lease(ctx context.Context, queue string, leaseFor time.Duration) (*domain.Job, error)

	// Retry возвращает выданный job в очередь с задержкой.
	// AttemptsMade и LastError берутся из job.
	Retry(ctx context.Context, job *domain.Job, delay time.Duration) error

	// Remove удаляет job в любом состоянии. Удаление отсутствующего job — не ошибка.
	Remove(ctx context.Context, jobID string) error

	// ListJobs возвращает jobs очереди в указанных состояниях.
	ListJobs(ctx context.Context, queue string, states ...domain.JobState) ([]domain.Job, error)
}

// newJob собирает domain.Job из параметров постановки.
func newJob(queue, jobType string, payload any, opts EnqueueOptions, now time.Time) (*domain.Job, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &domain.Job{
		ID:          id,
		Queue:       queue,
		Type:        jobType,
		Payload:     raw,
		Priority:    opts.Priority,
		Delay:       opts.Delay,
		MaxAttempts: maxAttempts,
		CampaignID:  opts.CampaignID,
		RunID:       opts.RunID,
		CreatedAt:   now,
		RunAt:       now.Add(opts.Delay),
	}, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return raw, nil
	}
}

// FilterByCampaign оставляет jobs указанной кампании.
func FilterByCampaign(jobs []domain.Job, campaignID uuid.UUID) []domain.Job {
	var out []domain.Job
	for _, j := range jobs {
		if j.CampaignID == campaignID {
			out = append(out, j)
		}
	}
	return out
}

// RemoveCampaignJobs удаляет waiting и delayed jobs кампании из указанных очередей.
// Возвращает количество удалённых jobs.
func RemoveCampaignJobs(ctx context.Context, b Broker, campaignID uuid.UUID, queues ...string) (int, error) {
	removed := 0
	for _, q := range queues {
		jobs, err := b.ListJobs(ctx, q, domain.JobStateWaiting, domain.JobStateDelayed)
		if err != nil {
			return removed, fmt.Errorf("list %s jobs: %w", q, err)
		}

		for _, j := range FilterByCampaign(jobs, campaignID) {
			if err := b.Remove(ctx, j.ID); err != nil {
				return removed, fmt.Errorf("remove job %s: %w", j.ID, err)
			}
			removed++
		}
	}
	return removed, nil
}
