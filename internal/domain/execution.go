package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Execution — запись о попытке расчёта, дошедшей до сети.
//
// Таблица executions append-only. Для одного IdempotencyKey существует
// не более одной записи с непустым TxSignature.
type Execution struct {
	ID             uuid.UUID       `json:"id"`
	JobID          string          `json:"job_id"`
	RunID          uuid.UUID       `json:"run_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	TxSignature    *string         `json:"tx_signature,omitempty"`
	LatencyMs      int64           `json:"latency_ms"`
	Result         json.RawMessage `json:"result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
