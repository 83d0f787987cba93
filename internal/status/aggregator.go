package status

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/metrics"
)

// RunStore — runs для пересчёта. Реализуется repo.RunRepo.
type RunStore interface {
	ListActive(ctx context.Context) ([]domain.CampaignRun, error)
	UpdateSummary(ctx context.Context, runID uuid.UUID, summary domain.RunSummary) error
}

// JobCounter — счётчики jobs. Реализуется repo.JobRepo.
type JobCounter interface {
	CountByRun(ctx context.Context, runID uuid.UUID) ([]domain.JobCount, error)
}

// LatencySource — средняя задержка расчёта. Реализуется repo.ExecutionRepo.
type LatencySource interface {
	MeanLatency(ctx context.Context, runID uuid.UUID) (float64, error)
}

// Broadcaster рассылает события. Реализуется mq.Publisher.
type Broadcaster interface {
	Broadcast(ctx context.Context, event domain.Event) error
}

// Config — зависимости Aggregator.
type Config struct {
	Runs      RunStore
	Jobs      JobCounter
	Latencies LatencySource

	// Events — рассылка run-status (опционально).
	Events Broadcaster

	Metrics metrics.Sink
	Logger  *slog.Logger
	Now     func() time.Time
}

// Aggregator пересчитывает RunSummary для всех нефинальных runs.
type Aggregator struct {
	runs      RunStore
	jobs      JobCounter
	latencies LatencySource
	events    Broadcaster

	metrics metrics.Sink
	logger  *slog.Logger
	now     func() time.Time
}

// New создаёт Aggregator.
func New(cfg Config) *Aggregator {
	a := &Aggregator{
		runs:      cfg.Runs,
		jobs:      cfg.Jobs,
		latencies: cfg.Latencies,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if a.metrics == nil {
		a.metrics = metrics.Noop{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Tick выполняет один проход агрегации.
//
// Ошибка одного run не блокирует остальные. Возвращает количество
// обновлённых runs.
func (a *Aggregator) Tick(ctx context.Context) (int, error) {
	start := time.Now()

	runs, err := a.runs.ListActive(ctx)
	if err != nil {
		err = fmt.Errorf("list active runs: %w", err)
		a.metrics.AggregationCompleted(0, time.Since(start), err)
		return 0, err
	}

	updated := 0
	for i := range runs {
		run := &runs[i]
		if err := a.aggregate(ctx, run); err != nil {
			a.logger.Error("failed to aggregate run",
				"run_id", run.ID,
				"campaign_id", run.CampaignID,
				"error", err,
			)
			continue
		}
		updated++
	}

	a.metrics.AggregationCompleted(updated, time.Since(start), nil)
	a.logger.Debug("aggregation tick completed", "runs", len(runs), "updated", updated)
	return updated, nil
}

func (a *Aggregator) aggregate(ctx context.Context, run *domain.CampaignRun) error {
	counts, err := a.jobs.CountByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("count jobs: %w", err)
	}

	mean, err := a.latencies.MeanLatency(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("mean latency: %w", err)
	}

	summary := Summarize(counts, mean, a.now().UTC())
	if err := a.runs.UpdateSummary(ctx, run.ID, summary); err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	run.Summary = summary

	if a.events == nil {
		return nil
	}

	event := domain.NewEvent(domain.EventTypeRunStatus, run.CampaignID, map[string]any{
		"runId":   run.ID,
		"status":  run.Status,
		"summary": summary,
	})
	if err := a.events.Broadcast(ctx, event); err != nil {
		a.logger.Warn("failed to broadcast run summary", "run_id", run.ID, "error", err)
		return nil
	}
	a.metrics.EventBroadcast(string(domain.EventTypeRunStatus))
	return nil
}

// Summarize собирает RunSummary из счётчиков jobs.
//
// SuccessRate — доля SUCCEEDED среди завершённых (SUCCEEDED, FAILED, DEAD),
// в процентах. DEAD учитывается как failed.
func Summarize(counts []domain.JobCount, meanLatencyMs float64, now time.Time) domain.RunSummary {
	s := domain.RunSummary{
		MeanLatencyMs: meanLatencyMs,
		Queues:        make(map[string]domain.QueueSummary),
		UpdatedAt:     now,
	}

	for _, c := range counts {
		q := s.Queues[c.Queue]
		q.Total += c.Count
		s.Total += c.Count

		switch c.Status {
		case domain.JobStatusSucceeded:
			q.Succeeded += c.Count
			s.Succeeded += c.Count
		case domain.JobStatusFailed, domain.JobStatusDead:
			q.Failed += c.Count
			s.Failed += c.Count
		case domain.JobStatusQueued:
			q.Queued += c.Count
			s.Queued += c.Count
		case domain.JobStatusRunning:
			q.Running += c.Count
			s.Running += c.Count
		}
		s.Queues[c.Queue] = q
	}

	if finished := s.Succeeded + s.Failed; finished > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(finished) * 100
	}
	return s
}
