package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Имена очередей. Каждой очереди соответствует свой пул воркеров
// с собственной concurrency.
const (
	QueueTrades        = "trades"
	QueueDistributions = "distributions"
	QueueWebhooks      = "webhooks"
)

// Типы jobs.
const (
	JobTypeBuy             = "buy"
	JobTypeSell            = "sell"
	JobTypeDistribute      = "distribute"
	JobTypeWebhookDelivery = "webhook.deliver"
)

// JobState — состояние job внутри брокера.
type JobState string

const (
	// JobStateWaiting — job готов к выдаче воркеру.
	JobStateWaiting JobState = "waiting"

	// JobStateDelayed — job ждёт наступления времени запуска.
	JobStateDelayed JobState = "delayed"

	// JobStateActive — job выдан воркеру (lease).
	JobStateActive JobState = "active"
)

// Job — единица работы в очереди.
//
// Job принадлежит брокеру. Воркер получает его через Lease,
// а после выполнения удаляет (успех, dead letter) или ставит заново
// с увеличенным AttemptsMade (retry).
type Job struct {
	// ID — идентификатор job. Уникален в рамках брокера.
	ID string `json:"id"`

	// Queue — имя очереди.
	Queue string `json:"queue"`

	// Type — тип job, определяет обработчик.
	Type string `json:"type"`

	// Payload — входные данные обработчика.
	Payload json.RawMessage `json:"payload"`

	// Priority — приоритет, меньшее значение выдаётся раньше.
	Priority int `json:"priority"`

	// Delay — задержка перед первой выдачей.
	Delay time.Duration `json:"delay,omitempty"`

	// AttemptsMade — количество уже выполненных попыток.
	AttemptsMade int `json:"attempts_made"`

	// MaxAttempts — максимальное количество попыток.
	MaxAttempts int `json:"max_attempts"`

	// CampaignID — кампания, к которой относится job (uuid.Nil для служебных jobs).
	// Используется для удаления jobs при pause/stop.
	CampaignID uuid.UUID `json:"campaign_id"`

	// RunID — run кампании, в рамках которого создан job.
	RunID uuid.UUID `json:"run_id"`

	// LastError — текст последней ошибки.
	LastError string `json:"last_error,omitempty"`

	// PendingDeadLetter — причина dead letter, если публикация в DLQ не удалась
	// и job ждёт повторной публикации без выполнения.
	PendingDeadLetter string `json:"pending_dead_letter,omitempty"`

	// CreatedAt — время первой постановки в очередь.
	CreatedAt time.Time `json:"created_at"`

	// RunAt — время, начиная с которого job может быть выдан.
	RunAt time.Time `json:"run_at"`
}

// CanRetry проверяет, можно ли сделать ещё одну попытку.
func (j *Job) CanRetry() bool {
	return j.AttemptsMade < j.MaxAttempts
}

// JobRecord — персистентная запись о job в таблице jobs.
//
// Пишется пулом воркеров на каждом переходе статуса,
// читается агрегатором статистики.
type JobRecord struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Type       string          `json:"type"`
	CampaignID uuid.UUID       `json:"campaign_id"`
	RunID      uuid.UUID       `json:"run_id"`
	Status     JobStatus       `json:"status"`
	Attempts   int             `json:"attempts"`
	Progress   int             `json:"progress"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// JobCount — количество jobs одного статуса в одной очереди.
type JobCount struct {
	Queue  string
	Status JobStatus
	Count  int
}
