package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/idempotency"
	"github.com/shaiso/Swarm/internal/queue"
)

// JobContext — окружение одного выполнения job.
//
// Живёт ровно одну попытку и не переиспользуется.
type JobContext struct {
	job      *domain.Job
	store    idempotency.Store
	broker   queue.Broker
	recorder JobRecorder
	logger   *slog.Logger
}

// Job возвращает выполняемый job.
func (jc *JobContext) Job() *domain.Job { return jc.job }

// Logger возвращает логгер с полями job.
func (jc *JobContext) Logger() *slog.Logger { return jc.logger }

// Store возвращает хранилище ключей идемпотентности.
func (jc *JobContext) Store() idempotency.Store { return jc.store }

// Processed проверяет, выполнена ли уже операция с ключом key.
func (jc *JobContext) Processed(ctx context.Context, key string) (json.RawMessage, bool, error) {
	c, err := jc.store.Lookup(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return c.Result, c.State == idempotency.StateCompleted, nil
}

// MarkProcessed сохраняет результат операции с ключом key.
func (jc *JobContext) MarkProcessed(ctx context.Context, key string, result json.RawMessage) error {
	return jc.store.Complete(ctx, key, result, idempotency.DefaultResultTTL)
}

// UpdateProgress сообщает о ходе выполнения. Ошибки записи игнорируются.
func (jc *JobContext) UpdateProgress(ctx context.Context, percent int, message string) {
	percent = min(max(percent, 0), 100)

	jc.logger.Debug("job progress", "percent", percent, "message", message)

	if err := jc.recorder.Progress(ctx, jc.job.ID, percent, message); err != nil {
		jc.logger.Debug("failed to record progress", "error", err)
	}
}

// Enqueue ставит follow-up job. CampaignID и RunID по умолчанию наследуются.
func (jc *JobContext) Enqueue(ctx context.Context, queueName, jobType string, payload any, opts queue.EnqueueOptions) (*domain.Job, error) {
	if opts.CampaignID == uuid.Nil {
		opts.CampaignID = jc.job.CampaignID
	}
	if opts.RunID == uuid.Nil {
		opts.RunID = jc.job.RunID
	}
	return jc.broker.Enqueue(ctx, queueName, jobType, payload, opts)
}
