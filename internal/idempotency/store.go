package idempotency

import (
	"context"
	"encoding/json"
	"time"
)

// State — состояние ключа идемпотентности.
type State int

const (
	// StateNone — ключ не встречался.
	StateNone State = iota

	// StateClaimed — ключ только что захвачен текущим вызовом.
	StateClaimed

	// StateInFlight — ключ захвачен другим исполнителем, результат ещё не готов.
	StateInFlight

	// StateCompleted — операция по ключу уже выполнена.
	StateCompleted
)

// String возвращает имя состояния.
func (s State) String() string {
	switch s {
	case StateClaimed:
		return "claimed"
	case StateInFlight:
		return "in_flight"
	case StateCompleted:
		return "completed"
	default:
		return "none"
	}
}

// Claim — результат попытки захвата ключа.
type Claim struct {
	State State

	// Result — сохранённый результат для StateCompleted.
	Result json.RawMessage
}

// TTL по умолчанию.
const (
	// DefaultClaimTTL — сколько живёт незавершённый захват (защита от зависших воркеров).
	DefaultClaimTTL = 10 * time.Minute

	// DefaultResultTTL — сколько хранится результат завершённой операции.
	DefaultResultTTL = 7 * 24 * time.Hour
)

// Store — хранилище ключей идемпотентности.
//
// Claim атомарен: из N конкурентных вызовов с одним ключом ровно один
// получает StateClaimed.
type Store interface {
	// Claim пытается захватить ключ.
	Claim(ctx context.Context, key string, ttl time.Duration) (Claim, error)

	// Complete помечает ключ выполненным и сохраняет результат.
	Complete(ctx context.Context, key string, result json.RawMessage, ttl time.Duration) error

	// Release снимает незавершённый захват (после ошибки выполнения).
	Release(ctx context.Context, key string) error

	// Lookup возвращает текущее состояние ключа, не захватывая его.
	Lookup(ctx context.Context, key string) (Claim, error)
}
