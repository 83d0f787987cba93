// Package txexec исполняет подписанные транзакции одной из двух стратегий.
//
// Direct отправляет транзакцию в RPC и опрашивает статус подписи.
// RelayedBundle добавляет tip-перевод и отправляет bundle в block engine.
// Стратегия выбирается Factory по ExecutorConfig; стратегии взаимоисключающие.
package txexec

import (
	"context"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Strategy — стратегия отправки.
type Strategy string

const (
	StrategyDirect  Strategy = "direct"
	StrategyRelayed Strategy = "relayed_bundle"
)

// Outcome — исход отправки.
type Outcome string

const (
	// OutcomeSuccess — транзакция подтверждена.
	OutcomeSuccess Outcome = "success"

	// OutcomeAccepted — bundle принят block engine.
	OutcomeAccepted Outcome = "accepted"

	// OutcomeRejected — транзакция или bundle отклонены.
	OutcomeRejected Outcome = "rejected"

	// OutcomeTimeout — подтверждение не получено вовремя, исход неизвестен.
	OutcomeTimeout Outcome = "timeout"

	// OutcomeUnknown — bundle не получил финального статуса.
	OutcomeUnknown Outcome = "unknown"

	// OutcomeDisconnected — связь с узлом потеряна во время опроса.
	OutcomeDisconnected Outcome = "disconnected"

	// OutcomeError — ошибка до отправки (blockhash, подпись, сеть).
	OutcomeError Outcome = "error"
)

// BundlePrefix — префикс Result.Signature для принятого bundle.
const BundlePrefix = "bundle:"

// Submission — транзакция к отправке.
type Submission struct {
	// Tx — транзакция; blockhash и подписи будут заменены.
	Tx *solana.Transaction

	// Signers — ключи подписантов; первый — плательщик комиссии и tip.
	Signers []solana.PrivateKey
}

// Payer возвращает плательщика.
func (s Submission) Payer() solana.PrivateKey {
	if len(s.Signers) == 0 {
		return nil
	}
	return s.Signers[0]
}

// Result — результат исполнения.
//
// При неудаче Signature содержит подпись отправленной транзакции, если
// она известна, чтобы Verifier мог сверить фактический исход.
type Result struct {
	Success   bool          `json:"success"`
	Signature string        `json:"signature,omitempty"`
	Error     string        `json:"error,omitempty"`
	Outcome   Outcome       `json:"outcome"`
	Strategy  Strategy      `json:"strategy"`
	Latency   time.Duration `json:"latency"`

	// Err — классифицированная ошибка (internal/retry) для неуспешного результата.
	Err error `json:"-"`
}

// Ambiguous проверяет, мог ли расчёт произойти несмотря на неудачу.
func (r Result) Ambiguous() bool {
	if r.Success || r.Signature == "" {
		return false
	}
	switch r.Outcome {
	case OutcomeTimeout, OutcomeUnknown, OutcomeDisconnected:
		return true
	default:
		return false
	}
}

// IsBundle проверяет, что Signature — идентификатор bundle.
func (r Result) IsBundle() bool {
	return strings.HasPrefix(r.Signature, BundlePrefix)
}

// Executor исполняет Submission. Execute не возвращает error:
// любая ошибка отражается в Result.
type Executor interface {
	Execute(ctx context.Context, sub Submission) Result
	Strategy() Strategy
}

func failed(strategy Strategy, outcome Outcome, sig string, err error, start time.Time) Result {
	return Result{
		Signature: sig,
		Error:     err.Error(),
		Outcome:   outcome,
		Strategy:  strategy,
		Latency:   time.Since(start),
		Err:       err,
	}
}
