package domain

// CampaignStatus — статус кампании.
//
// Жизненный цикл:
//
//	DRAFT → ACTIVE ⇄ PAUSED → STOPPED
//	        ACTIVE ─────────→ STOPPED
type CampaignStatus string

const (
	// CampaignStatusDraft — кампания создана, но ни разу не запускалась.
	CampaignStatusDraft CampaignStatus = "DRAFT"

	// CampaignStatusActive — кампания выполняется, jobs ставятся в очередь.
	CampaignStatusActive CampaignStatus = "ACTIVE"

	// CampaignStatusPaused — кампания приостановлена, очереди очищены.
	CampaignStatusPaused CampaignStatus = "PAUSED"

	// CampaignStatusStopped — кампания остановлена окончательно.
	CampaignStatusStopped CampaignStatus = "STOPPED"
)

// CanTransitionTo проверяет допустимость перехода между статусами кампании.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	switch s {
	case CampaignStatusDraft:
		return next == CampaignStatusActive
	case CampaignStatusActive:
		return next == CampaignStatusPaused || next == CampaignStatusStopped
	case CampaignStatusPaused:
		return next == CampaignStatusActive || next == CampaignStatusStopped
	default:
		return false
	}
}

// RunStatus — статус запуска кампании (campaign run).
//
// Жизненный цикл:
//
//	RUNNING ⇄ PAUSED → STOPPED
//	RUNNING → COMPLETED | FAILED
type RunStatus string

const (
	// RunStatusRunning — run выполняется.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusPaused — run приостановлен.
	RunStatusPaused RunStatus = "PAUSED"

	// RunStatusStopped — run остановлен пользователем.
	RunStatusStopped RunStatus = "STOPPED"

	// RunStatusCompleted — run завершён.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusFailed — run завершился с ошибкой.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusStopped, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// JobStatus — статус job в таблице jobs.
//
// Жизненный цикл:
//
//	QUEUED → RUNNING → SUCCEEDED
//	                 ↘ QUEUED (retry) ↘ DEAD (попытки исчерпаны или ошибка не ретраится)
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusDead      JobStatus = "DEAD"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusDead:
		return true
	default:
		return false
	}
}

// DeliveryStatus — статус доставки webhook.
//
// Жизненный цикл:
//
//	PENDING → SUCCESS
//	        ↘ RETRYING → ... → SUCCESS | FAILED
//	        ↘ FAILED
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "PENDING"
	DeliveryStatusSuccess  DeliveryStatus = "SUCCESS"
	DeliveryStatusRetrying DeliveryStatus = "RETRYING"
	DeliveryStatusFailed   DeliveryStatus = "FAILED"
)

// IsTerminal возвращает true, если доставка завершена.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusSuccess || s == DeliveryStatusFailed
}
