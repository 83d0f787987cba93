package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignRun — один запуск кампании.
//
// Run создаётся при старте кампании. Pause/Resume меняют статус
// существующего run, Stop переводит его в финальный статус.
// У кампании в каждый момент не более одного нефинального run.
type CampaignRun struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// CampaignID — кампания, к которой относится run.
	CampaignID uuid.UUID `json:"campaign_id"`

	// Status — текущий статус run.
	Status RunStatus `json:"status"`

	// StartedAt — время старта.
	StartedAt time.Time `json:"started_at"`

	// EndedAt — время завершения. Nil, пока run не в финальном статусе.
	EndedAt *time.Time `json:"ended_at,omitempty"`

	// Summary — последняя агрегированная статистика (пересчитывается периодически).
	Summary RunSummary `json:"summary"`
}

// RunSummary — агрегированная статистика run.
type RunSummary struct {
	Total         int                     `json:"total"`
	Succeeded     int                     `json:"succeeded"`
	Failed        int                     `json:"failed"`
	Queued        int                     `json:"queued"`
	Running       int                     `json:"running"`
	SuccessRate   float64                 `json:"success_rate"`
	MeanLatencyMs float64                 `json:"mean_latency_ms"`
	Queues        map[string]QueueSummary `json:"queues,omitempty"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// QueueSummary — статистика по одной очереди.
type QueueSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
}

// Duration возвращает продолжительность run.
// Для незавершённого run считает до текущего момента.
func (r *CampaignRun) Duration() time.Duration {
	if r.EndedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// IsFinished возвращает true, если run завершён.
func (r *CampaignRun) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkPaused переводит run в статус PAUSED.
func (r *CampaignRun) MarkPaused() {
	r.Status = RunStatusPaused
}

// MarkRunning переводит run в статус RUNNING.
func (r *CampaignRun) MarkRunning() {
	r.Status = RunStatusRunning
}

// MarkStopped переводит run в статус STOPPED.
func (r *CampaignRun) MarkStopped() {
	now := time.Now()
	r.Status = RunStatusStopped
	r.EndedAt = &now
}
