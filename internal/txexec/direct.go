package txexec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Swarm/internal/chain"
	"github.com/shaiso/Swarm/internal/retry"
)

// Ошибки Direct.
var (
	ErrConfirmTimeout = errors.New("confirmation timeout")
	ErrOnChain        = errors.New("transaction failed on-chain")
	ErrNoSigners      = errors.New("submission has no signers")
)

// DirectConfig — параметры Direct.
type DirectConfig struct {
	// Commitment — требуемый уровень подтверждения (default: confirmed).
	Commitment chain.Commitment

	// ConfirmTimeout — время ожидания подтверждения (default: 60s).
	ConfirmTimeout time.Duration

	// PollInterval — интервал опроса статуса (default: 500ms).
	PollInterval time.Duration
}

// Direct — отправка через RPC с опросом подтверждения.
type Direct struct {
	client chain.Client
	cfg    DirectConfig
}

// NewDirect создаёт Direct.
func NewDirect(client chain.Client, cfg DirectConfig) *Direct {
	if cfg.Commitment == "" {
		cfg.Commitment = chain.CommitmentConfirmed
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Direct{client: client, cfg: cfg}
}

// Strategy возвращает StrategyDirect.
func (d *Direct) Strategy() Strategy { return StrategyDirect }

// Execute: blockhash → подпись → отправка → опрос статуса.
func (d *Direct) Execute(ctx context.Context, sub Submission) Result {
	start := time.Now()

	if len(sub.Signers) == 0 || sub.Tx == nil {
		return failed(StrategyDirect, OutcomeError, "", retry.AsPermanent(ErrNoSigners), start)
	}

	blockhash, err := d.client.LatestBlockhash(ctx)
	if err != nil {
		return failed(StrategyDirect, OutcomeError, "", err, start)
	}

	sig, err := chain.Sign(sub.Tx, blockhash, sub.Signers...)
	if err != nil {
		return failed(StrategyDirect, OutcomeError, "", retry.AsPermanent(err), start)
	}

	if _, err := d.client.SendTransaction(ctx, sub.Tx); err != nil {
		if chain.IsRejected(err) {
			return failed(StrategyDirect, OutcomeRejected, "", err, start)
		}
		// ответа нет: транзакция могла уйти в сеть
		return failed(StrategyDirect, OutcomeDisconnected, sig.String(), err, start)
	}

	pollCtx, cancel := context.WithTimeout(ctx, d.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := d.client.SignatureStatus(pollCtx, sig)
		switch {
		case err != nil && pollCtx.Err() == nil:
			return failed(StrategyDirect, OutcomeDisconnected, sig.String(), fmt.Errorf("poll status: %w", err), start)
		case status != nil && status.Err != nil:
			return failed(StrategyDirect, OutcomeRejected, sig.String(), fmt.Errorf("%w: %v", ErrOnChain, status.Err), start)
		case status != nil && status.Reached(d.cfg.Commitment):
			return Result{
				Success:   true,
				Signature: sig.String(),
				Outcome:   OutcomeSuccess,
				Strategy:  StrategyDirect,
				Latency:   time.Since(start),
			}
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return failed(StrategyDirect, OutcomeTimeout, sig.String(), retry.AsAmbiguous(ctx.Err()), start)
			}
			err := fmt.Errorf("%w after %s: %s", ErrConfirmTimeout, d.cfg.ConfirmTimeout, sig)
			return failed(StrategyDirect, OutcomeTimeout, sig.String(), retry.AsAmbiguous(err), start)
		case <-ticker.C:
		}
	}
}
