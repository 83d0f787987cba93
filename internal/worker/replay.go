package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/queue"
)

// Replay ставит dead-lettered job обратно в очередь с обнулёнными попытками.
//
// ID job сохраняется, поэтому повторный replay того же job не создаёт дубль,
// пока первый ещё в брокере.
func Replay(ctx context.Context, b queue.Broker, job domain.Job) (*domain.Job, error) {
	replayed, err := b.Enqueue(ctx, job.Queue, job.Type, job.Payload, queue.EnqueueOptions{
		JobID:       job.ID,
		Priority:    job.Priority,
		MaxAttempts: job.MaxAttempts,
		CampaignID:  job.CampaignID,
		RunID:       job.RunID,
	})
	if err != nil {
		return nil, fmt.Errorf("replay job %s: %w", job.ID, err)
	}
	return replayed, nil
}
