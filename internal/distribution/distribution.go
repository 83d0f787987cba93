// Package distribution финансирует новые кошельки из кошелька-источника.
//
// Переводы выполняются строго последовательно. После каждого перевода
// баланс получателя проверяется опросом; частичный успех возвращается
// в Result, а не ошибкой, чтобы вызывающий мог сохранить профинансированные
// кошельки.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/shaiso/Swarm/internal/chain"
	"github.com/shaiso/Swarm/internal/metrics"
	"github.com/shaiso/Swarm/internal/retry"
	"github.com/shaiso/Swarm/internal/txexec"
)

// Ошибки распределения.
var (
	ErrInvalidCount      = errors.New("wallet count out of range")
	ErrInsufficientFunds = errors.New("source wallet is underfunded")
	ErrNotSettled        = errors.New("destination balance not confirmed")
)

// Значения по умолчанию.
const (
	MaxWallets               = 20
	DefaultPerWalletLamports = 10_000_000
	DefaultFeeLamports       = 5_000
	DefaultBufferLamports    = 5_000_000
	DefaultTransferAttempts  = 3
	DefaultVerifyAttempts    = 5
	DefaultVerifyInterval    = time.Second
	DefaultTransferDelay     = 500 * time.Millisecond

	// tolerancePercent — минимальная доля суммы на балансе получателя.
	tolerancePercent = 95
)

// Config — параметры Service.
type Config struct {
	Chain    chain.Client
	Executor txexec.Executor

	PerWalletLamports uint64
	FeeLamports       uint64
	BufferLamports    uint64

	// TransferAttempts — попытки одного перевода (default: 3).
	TransferAttempts int
	Policy           retry.Policy

	// VerifyAttempts и VerifyInterval — опрос баланса получателя.
	VerifyAttempts int
	VerifyInterval time.Duration

	// TransferDelay — пауза между переводами.
	TransferDelay time.Duration

	Metrics metrics.Sink
	Logger  *slog.Logger
}

// Wallet — сгенерированный кошелёк, на который ушёл перевод.
type Wallet struct {
	Address    string            `json:"address"`
	PrivateKey solana.PrivateKey `json:"-"`
	Lamports   uint64            `json:"lamports"`
	Signature  string            `json:"signature,omitempty"`

	// Verified — баланс подтверждён в пределах допуска.
	Verified bool `json:"verified"`
}

// Result — итог распределения.
//
// Wallets содержит все кошельки, на которые перевод мог дойти, включая
// неподтверждённые: их ключи нельзя терять. Failed — количество кошельков
// без подтверждённого баланса.
type Result struct {
	Success          bool     `json:"success"`
	Wallets          []Wallet `json:"wallets"`
	TotalDistributed uint64   `json:"total_distributed"`
	Failed           int      `json:"failed"`
	Errors           []string `json:"errors,omitempty"`
}

// ProgressFunc получает количество обработанных кошельков.
type ProgressFunc func(done, total int)

// Service — сервис распределения SOL.
type Service struct {
	cfg     Config
	metrics metrics.Sink
	logger  *slog.Logger
}

// NewService создаёт Service.
func NewService(cfg Config) *Service {
	if cfg.PerWalletLamports == 0 {
		cfg.PerWalletLamports = DefaultPerWalletLamports
	}
	if cfg.FeeLamports == 0 {
		cfg.FeeLamports = DefaultFeeLamports
	}
	if cfg.BufferLamports == 0 {
		cfg.BufferLamports = DefaultBufferLamports
	}
	if cfg.TransferAttempts <= 0 {
		cfg.TransferAttempts = DefaultTransferAttempts
	}
	if cfg.VerifyAttempts <= 0 {
		cfg.VerifyAttempts = DefaultVerifyAttempts
	}
	if cfg.VerifyInterval <= 0 {
		cfg.VerifyInterval = DefaultVerifyInterval
	}
	if cfg.TransferDelay <= 0 {
		cfg.TransferDelay = DefaultTransferDelay
	}

	s := &Service{cfg: cfg, metrics: cfg.Metrics, logger: cfg.Logger}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Required возвращает минимальный баланс источника для count кошельков.
func (s *Service) Required(count int) uint64 {
	return (s.cfg.PerWalletLamports+s.cfg.FeeLamports)*uint64(count) + s.cfg.BufferLamports
}

// ValidateCount проверяет количество кошельков без обращения к сети.
func ValidateCount(count int) error {
	if count <= 0 || count > MaxWallets {
		return retry.Businessf("%w: %d (allowed 1..%d)", ErrInvalidCount, count, MaxWallets)
	}
	return nil
}

// DistributeSol создаёт count кошельков и переводит на каждый PerWalletLamports.
//
// Ошибка возвращается только для проверок до первого перевода
// и при отмене контекста; сбои отдельных переводов отражаются в Result.
func (s *Service) DistributeSol(ctx context.Context, source solana.PrivateKey, count int, progress ProgressFunc) (*Result, error) {
	if err := ValidateCount(count); err != nil {
		return nil, err
	}
	if len(source) == 0 {
		return nil, retry.AsPermanent(txexec.ErrNoSigners)
	}

	from := source.PublicKey()
	logger := s.logger.With("source", from.String(), "count", count)

	if err := s.checkFunds(ctx, from, count); err != nil {
		return nil, err
	}

	result := &Result{}
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := retry.Sleep(ctx, s.cfg.TransferDelay); err != nil {
				return s.abort(result, count-i, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return s.abort(result, count-i, err)
		}

		w, err := s.fund(ctx, source)
		switch {
		case err == nil:
			result.Wallets = append(result.Wallets, *w)
			result.TotalDistributed += w.Lamports
		case w != nil:
			// перевод мог дойти: кошелёк сохраняется неподтверждённым
			result.Wallets = append(result.Wallets, *w)
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
		default:
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
		}

		if err != nil {
			logger.Warn("wallet funding failed", "index", i, "error", err)
		}
		if progress != nil {
			progress(i+1, count)
		}
	}

	result.Success = result.Failed == 0
	s.metrics.DistributionCompleted(count-result.Failed, result.Failed)

	logger.Info("distribution finished",
		"funded", count-result.Failed,
		"failed", result.Failed,
		"total_lamports", result.TotalDistributed,
	)
	return result, nil
}

// checkFunds проверяет, что источник покрывает все переводы.
func (s *Service) checkFunds(ctx context.Context, from solana.PublicKey, count int) error {
	var balance uint64
	err := retry.Do(ctx, retry.Options{Attempts: s.cfg.TransferAttempts, Policy: s.cfg.Policy}, func(ctx context.Context, _ int) error {
		b, err := s.cfg.Chain.Balance(ctx, from)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return fmt.Errorf("source balance: %w", err)
	}

	if required := s.Required(count); balance < required {
		return retry.Businessf("%w: have %d, need %d lamports", ErrInsufficientFunds, balance, required)
	}
	return nil
}

// fund создаёт кошелёк и переводит на него средства.
//
// Возвращает кошелёк вместе с ошибкой, если перевод мог дойти до сети.
func (s *Service) fund(ctx context.Context, source solana.PrivateKey) (*Wallet, error) {
	key, err := chain.NewKeypair()
	if err != nil {
		return nil, err
	}
	dest := key.PublicKey()
	amount := s.cfg.PerWalletLamports

	var sig string
	err = retry.Do(ctx, retry.Options{Attempts: s.cfg.TransferAttempts, Policy: s.cfg.Policy}, func(ctx context.Context, _ int) error {
		tx, err := chain.TransferTx(source.PublicKey(), dest, amount, solana.Hash{})
		if err != nil {
			return retry.AsPermanent(err)
		}

		res := s.cfg.Executor.Execute(ctx, txexec.Submission{Tx: tx, Signers: []solana.PrivateKey{source}})
		s.metrics.TransactionSubmitted(string(res.Strategy), string(res.Outcome), res.Latency)
		if res.Success {
			sig = res.Signature
			return nil
		}

		if res.Signature != "" {
			sig = res.Signature
		}
		// получатель новый: ненулевой баланс означает, что перевод дошёл
		if res.Ambiguous() {
			if got, err := s.cfg.Chain.Balance(ctx, dest); err == nil && got > 0 {
				return nil
			}
		}
		return res.Err
	})

	w := &Wallet{
		Address:    dest.String(),
		PrivateKey: key,
		Lamports:   amount,
		Signature:  sig,
	}

	if err != nil {
		if sig != "" {
			return w, fmt.Errorf("transfer to %s: %w", dest, err)
		}
		return nil, fmt.Errorf("transfer to %s: %w", dest, err)
	}

	if err := s.verify(ctx, dest, amount); err != nil {
		return w, err
	}
	w.Verified = true
	return w, nil
}

// verify опрашивает баланс получателя до VerifyAttempts раз.
func (s *Service) verify(ctx context.Context, dest solana.PublicKey, amount uint64) error {
	minimum := amount * tolerancePercent / 100

	var last uint64
	for attempt := 1; attempt <= s.cfg.VerifyAttempts; attempt++ {
		got, err := s.cfg.Chain.Balance(ctx, dest)
		if err == nil {
			last = got
			if got >= minimum {
				return nil
			}
		}
		if attempt == s.cfg.VerifyAttempts {
			break
		}
		if err := retry.Sleep(ctx, s.cfg.VerifyInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s has %d, want >= %d", ErrNotSettled, dest, last, minimum)
}

// abort закрывает результат при отмене контекста.
func (s *Service) abort(result *Result, remaining int, err error) (*Result, error) {
	result.Failed += remaining
	result.Success = false
	s.metrics.DistributionCompleted(len(result.Wallets)-countUnverified(result.Wallets), result.Failed)
	return result, err
}

func countUnverified(wallets []Wallet) int {
	n := 0
	for _, w := range wallets {
		if !w.Verified {
			n++
		}
	}
	return n
}
