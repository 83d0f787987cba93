package jobs

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/domain"
)

// announcer публикует job-status события и уведомления webhooks.
// Сбои рассылки не влияют на исход job.
type announcer struct {
	events   EventPublisher
	notifier Notifier
	logger   *slog.Logger
}

func (a announcer) jobStatus(ctx context.Context, job *domain.Job, status domain.JobStatus, data map[string]any) {
	if a.events == nil {
		return
	}
	payload := map[string]any{
		"jobId":   job.ID,
		"queue":   job.Queue,
		"jobType": job.Type,
		"runId":   job.RunID,
		"status":  status,
		"attempt": job.AttemptsMade + 1,
	}
	for k, v := range data {
		payload[k] = v
	}
	event := domain.NewEvent(domain.EventTypeJobStatus, job.CampaignID, payload)
	if err := a.events.Broadcast(ctx, event); err != nil {
		a.logger.Warn("failed to broadcast job status", "job_id", job.ID, "error", err)
	}
}

func (a announcer) notify(ctx context.Context, userID uuid.UUID, eventID, event string, payload any) {
	if a.notifier == nil || userID == uuid.Nil {
		return
	}
	if _, err := a.notifier.Notify(ctx, userID, eventID, event, payload); err != nil {
		a.logger.Warn("failed to notify webhooks", "event", event, "error", err)
	}
}
