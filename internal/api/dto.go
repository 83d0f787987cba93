package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/mq"
)

// RunResponse — ответ с run кампании.
type RunResponse struct {
	ID         uuid.UUID         `json:"id"`
	CampaignID uuid.UUID         `json:"campaign_id"`
	Status     domain.RunStatus  `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    *time.Time        `json:"ended_at,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Summary    domain.RunSummary `json:"summary"`
}

// RunFromDomain конвертирует domain.CampaignRun в RunResponse.
func RunFromDomain(r domain.CampaignRun) RunResponse {
	return RunResponse{
		ID:         r.ID,
		CampaignID: r.CampaignID,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		DurationMs: r.Duration().Milliseconds(),
		Summary:    r.Summary,
	}
}

// CommandResponse — ответ на команду жизненного цикла.
type CommandResponse struct {
	CampaignID uuid.UUID             `json:"campaign_id"`
	Status     domain.CampaignStatus `json:"status"`
	Run        *RunResponse          `json:"run,omitempty"`
}

// JobResponse — ответ с записью job.
type JobResponse struct {
	ID         string           `json:"id"`
	Queue      string           `json:"queue"`
	Type       string           `json:"type"`
	CampaignID uuid.UUID        `json:"campaign_id"`
	RunID      uuid.UUID        `json:"run_id"`
	Status     domain.JobStatus `json:"status"`
	Attempts   int              `json:"attempts"`
	Progress   int              `json:"progress"`
	Error      string           `json:"error,omitempty"`
	Result     json.RawMessage  `json:"result,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// JobFromDomain конвертирует domain.JobRecord в JobResponse.
func JobFromDomain(j *domain.JobRecord) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Queue:      j.Queue,
		Type:       j.Type,
		CampaignID: j.CampaignID,
		RunID:      j.RunID,
		Status:     j.Status,
		Attempts:   j.Attempts,
		Progress:   j.Progress,
		Error:      j.Error,
		Result:     j.Result,
		UpdatedAt:  j.UpdatedAt,
	}
}

// DistributeRequest — запрос на распределение SOL с кошелька.
type DistributeRequest struct {
	Count      int       `json:"count"`
	CampaignID uuid.UUID `json:"campaign_id,omitempty"`
	UserID     uuid.UUID `json:"user_id,omitempty"`
}

// JobAcceptedResponse — job поставлен в очередь.
type JobAcceptedResponse struct {
	JobID string `json:"job_id"`
	Queue string `json:"queue"`
}

// DeadLetterResponse — запись DLQ.
type DeadLetterResponse struct {
	MessageID   string          `json:"message_id"`
	JobID       string          `json:"job_id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	CampaignID  uuid.UUID       `json:"campaign_id"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Reason      string          `json:"reason"`
	Error       string          `json:"error"`
	Payload     json.RawMessage `json:"payload"`
	FailedAt    time.Time       `json:"failed_at"`
}

// DeadLetterFromMQ конвертирует mq.DeadLetter в DeadLetterResponse.
func DeadLetterFromMQ(d mq.DeadLetter) DeadLetterResponse {
	job := d.Payload.Job
	return DeadLetterResponse{
		MessageID:   d.MessageID,
		JobID:       job.ID,
		Queue:       job.Queue,
		Type:        job.Type,
		CampaignID:  job.CampaignID,
		Attempts:    job.AttemptsMade,
		MaxAttempts: job.MaxAttempts,
		Reason:      d.Payload.Reason,
		Error:       d.Payload.Error,
		Payload:     job.Payload,
		FailedAt:    d.Payload.FailedAt,
	}
}

// ReplayRequest — запрос на replay dead letters.
type ReplayRequest struct {
	Limit int `json:"limit"`
}

// ReplayResponse — результат replay.
type ReplayResponse struct {
	Replayed []string `json:"replayed"`
	Failed   []string `json:"failed,omitempty"`
}
