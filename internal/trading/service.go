// Package trading исполняет покупки и продажи токена.
//
// Транзакция свопа строится Router (агрегатор или прямой пул),
// подписывается ключом кошелька и отправляется исполнителем txexec.
// Каждый сетевой вызов проходит через общий rate.Limiter.
package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/time/rate"

	"github.com/shaiso/Swarm/internal/chain"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/metrics"
	"github.com/shaiso/Swarm/internal/retry"
	"github.com/shaiso/Swarm/internal/txexec"
)

// Значения по умолчанию.
const (
	DefaultAttempts        = 3
	DefaultBalanceAttempts = 5
	DefaultSlippageBps     = 100
)

// DefaultBalancePolicy — ожидание баланса токена после покупки.
var DefaultBalancePolicy = retry.Policy{Base: 500 * time.Millisecond, Max: 4 * time.Second}

// ExecutorSource выбирает исполнителя по конфигурации (txexec.Factory).
type ExecutorSource interface {
	For(cfg domain.ExecutorConfig) (txexec.Executor, error)
}

// Config — зависимости и параметры Service.
type Config struct {
	Chain     chain.Client
	Router    Router
	Executors ExecutorSource

	// Verifier сверяет неоднозначный исход перед повтором (default: SignatureVerifier).
	Verifier txexec.Verifier

	// Limiter — глобальный лимит сетевых вызовов. Nil — без ограничения.
	Limiter *rate.Limiter

	// Attempts — попытки сделки целиком (default: 3).
	Attempts int

	// Policy — backoff между попытками сделки. Нулевое значение — retry.DefaultPolicy.
	Policy retry.Policy

	// BalanceAttempts — попытки получить ненулевой баланс (default: 5).
	BalanceAttempts int

	BalancePolicy retry.Policy

	// SlippageBps — проскальзывание, если не задано в запросе.
	SlippageBps int

	Metrics metrics.Sink
	Logger  *slog.Logger
}

// BuyRequest — покупка токена за SOL.
type BuyRequest struct {
	Wallet         solana.PrivateKey
	Mint           solana.PublicKey
	AmountLamports uint64
	Pool           string
	SlippageBps    int
	Executor       domain.ExecutorConfig
}

// SellRequest — продажа токена.
//
// Amount > 0 — продать ровно Amount (не больше баланса),
// иначе Percent от баланса (0 означает 100).
type SellRequest struct {
	Wallet      solana.PrivateKey
	Mint        solana.PublicKey
	Pool        string
	Percent     int
	Amount      uint64
	SlippageBps int
	Executor    domain.ExecutorConfig
}

// TradeResult — результат успешной сделки.
type TradeResult struct {
	Side      Side            `json:"side"`
	Wallet    string          `json:"wallet"`
	Mint      string          `json:"mint"`
	Amount    uint64          `json:"amount"`
	Signature string          `json:"signature"`
	Strategy  txexec.Strategy `json:"strategy"`
	Outcome   txexec.Outcome  `json:"outcome"`
	Attempts  int             `json:"attempts"`
	LatencyMs int64           `json:"latency_ms"`
	Verified  bool            `json:"verified,omitempty"`
}

// Service — торговый сервис.
type Service struct {
	chain     chain.Client
	router    Router
	executors ExecutorSource
	verifier  txexec.Verifier
	limiter   *rate.Limiter

	attempts        int
	policy          retry.Policy
	balanceAttempts int
	balancePolicy   retry.Policy
	slippageBps     int

	metrics metrics.Sink
	logger  *slog.Logger
}

// NewService создаёт Service.
func NewService(cfg Config) *Service {
	s := &Service{
		chain:           cfg.Chain,
		router:          cfg.Router,
		executors:       cfg.Executors,
		verifier:        cfg.Verifier,
		limiter:         cfg.Limiter,
		attempts:        cfg.Attempts,
		policy:          cfg.Policy,
		balanceAttempts: cfg.BalanceAttempts,
		balancePolicy:   cfg.BalancePolicy,
		slippageBps:     cfg.SlippageBps,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}

	if s.verifier == nil {
		s.verifier = txexec.NewSignatureVerifier(cfg.Chain)
	}
	if s.attempts <= 0 {
		s.attempts = DefaultAttempts
	}
	if s.balanceAttempts <= 0 {
		s.balanceAttempts = DefaultBalanceAttempts
	}
	if s.balancePolicy == (retry.Policy{}) {
		s.balancePolicy = DefaultBalancePolicy
	}
	if s.slippageBps <= 0 {
		s.slippageBps = DefaultSlippageBps
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// ExecuteBuy покупает токен на AmountLamports.
func (s *Service) ExecuteBuy(ctx context.Context, req BuyRequest) (*TradeResult, error) {
	if req.AmountLamports == 0 {
		return nil, retry.Businessf("%w: buy amount", ErrInvalidAmount)
	}
	if len(req.Wallet) == 0 {
		return nil, retry.AsPermanent(txexec.ErrNoSigners)
	}

	exec, err := s.executors.For(req.Executor)
	if err != nil {
		return nil, err
	}

	swap := SwapRequest{
		Side:        SideBuy,
		Owner:       req.Wallet.PublicKey(),
		Mint:        req.Mint,
		Amount:      req.AmountLamports,
		SlippageBps: s.slippage(req.SlippageBps),
		Pool:        req.Pool,
	}

	res, err := s.trade(ctx, exec, swap, req.Wallet)
	s.metrics.TradeCompleted(string(SideBuy), err == nil)
	return res, err
}

// ExecuteSell продаёт токен.
//
// Баланс может отставать от подтверждения покупки на несколько слотов,
// поэтому он запрашивается с повторами. Нулевой баланс после всех
// попыток — бизнес-ошибка ErrNoBalance.
func (s *Service) ExecuteSell(ctx context.Context, req SellRequest) (*TradeResult, error) {
	if len(req.Wallet) == 0 {
		return nil, retry.AsPermanent(txexec.ErrNoSigners)
	}

	percent := req.Percent
	if percent == 0 {
		percent = 100
	}
	if req.Amount == 0 && (percent < 1 || percent > 100) {
		return nil, retry.Businessf("%w: %d", ErrInvalidPercent, percent)
	}

	exec, err := s.executors.For(req.Executor)
	if err != nil {
		return nil, err
	}

	owner := req.Wallet.PublicKey()
	balance, err := s.TokenBalance(ctx, owner, req.Mint)
	if err != nil {
		s.metrics.TradeCompleted(string(SideSell), false)
		return nil, err
	}

	amount := req.Amount
	if amount == 0 {
		if amount, err = PercentOf(balance, percent); err != nil {
			return nil, err
		}
	}
	amount = min(amount, balance)
	if amount == 0 {
		s.metrics.TradeCompleted(string(SideSell), false)
		return nil, retry.Businessf("%w: %d%% of %d rounds to zero", ErrNoBalance, percent, balance)
	}

	swap := SwapRequest{
		Side:        SideSell,
		Owner:       owner,
		Mint:        req.Mint,
		Amount:      amount,
		SlippageBps: s.slippage(req.SlippageBps),
		Pool:        req.Pool,
	}

	res, err := s.trade(ctx, exec, swap, req.Wallet)
	s.metrics.TradeCompleted(string(SideSell), err == nil)
	return res, err
}

var errZeroBalance = errors.New("token balance is zero")

// TokenBalance возвращает ненулевой баланс токена с повторами.
func (s *Service) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	var balance uint64

	err := retry.Do(ctx, retry.Options{
		Attempts: s.balanceAttempts,
		Policy:   s.balancePolicy,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			s.logger.Debug("token balance not ready",
				"owner", owner.String(),
				"mint", mint.String(),
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		},
	}, func(ctx context.Context, _ int) error {
		if err := s.gate(ctx); err != nil {
			return err
		}
		b, err := s.chain.TokenBalance(ctx, owner, mint)
		if err != nil {
			return err
		}
		if b == 0 {
			return errZeroBalance
		}
		balance = b
		return nil
	})

	if errors.Is(err, errZeroBalance) {
		return 0, retry.Businessf("%w: %s", ErrNoBalance, mint)
	}
	if err != nil {
		return 0, fmt.Errorf("token balance: %w", err)
	}
	return balance, nil
}

// trade строит, подписывает и отправляет своп с повторами.
func (s *Service) trade(ctx context.Context, exec txexec.Executor, swap SwapRequest, wallet solana.PrivateKey) (*TradeResult, error) {
	logger := s.logger.With(
		"side", swap.Side,
		"wallet", swap.Owner.String(),
		"mint", swap.Mint.String(),
		"strategy", exec.Strategy(),
	)

	var result *TradeResult

	err := retry.Do(ctx, retry.Options{
		Attempts: s.attempts,
		Policy:   s.policy,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("trade attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		},
	}, func(ctx context.Context, attempt int) error {
		if err := s.gate(ctx); err != nil {
			return err
		}
		tx, err := s.router.Build(ctx, swap)
		if err != nil {
			return fmt.Errorf("build %s: %w", swap.Side, err)
		}

		if err := s.gate(ctx); err != nil {
			return err
		}
		res := exec.Execute(ctx, txexec.Submission{Tx: tx, Signers: []solana.PrivateKey{wallet}})
		s.metrics.TransactionSubmitted(string(res.Strategy), string(res.Outcome), res.Latency)

		if res.Success {
			result = newTradeResult(swap, res, attempt, false)
			return nil
		}
		if res.Ambiguous() {
			return s.reconcile(ctx, logger, swap, res, attempt, &result)
		}
		return res.Err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("trade completed",
		"amount", result.Amount,
		"signature", result.Signature,
		"attempts", result.Attempts,
		"latency_ms", result.LatencyMs,
	)
	return result, nil
}

// reconcile сверяет неоднозначный исход с сетью.
//
// Landed — сделка состоялась, повтор запрещён. Failed — транзакция упала
// в сети, повтор со свежей котировкой допустим. Unknown — исходная ошибка:
// таймаут подтверждения остаётся неоднозначным и не повторяется.
func (s *Service) reconcile(ctx context.Context, logger *slog.Logger, swap SwapRequest, res txexec.Result, attempt int, out **TradeResult) error {
	verdict, err := s.verifier.Verify(ctx, res.Signature)
	if err != nil {
		logger.Warn("verification failed", "signature", res.Signature, "error", err)
		return res.Err
	}

	logger.Info("ambiguous outcome verified",
		"signature", res.Signature,
		"outcome", res.Outcome,
		"verdict", verdict.String(),
	)

	switch verdict {
	case txexec.VerdictLanded:
		*out = newTradeResult(swap, res, attempt, true)
		return nil
	case txexec.VerdictFailed:
		return fmt.Errorf("%w: %s", txexec.ErrOnChain, res.Signature)
	default:
		if retry.KindOf(res.Err) == retry.Ambiguous {
			return fmt.Errorf("%w: %s: %w", ErrUnsettled, res.Signature, res.Err)
		}
		return res.Err
	}
}

func newTradeResult(swap SwapRequest, res txexec.Result, attempt int, verified bool) *TradeResult {
	outcome := res.Outcome
	if verified {
		outcome = txexec.OutcomeSuccess
	}
	return &TradeResult{
		Side:      swap.Side,
		Wallet:    swap.Owner.String(),
		Mint:      swap.Mint.String(),
		Amount:    swap.Amount,
		Signature: res.Signature,
		Strategy:  res.Strategy,
		Outcome:   outcome,
		Attempts:  attempt,
		LatencyMs: res.Latency.Milliseconds(),
		Verified:  verified,
	}
}

// gate ждёт разрешения глобального лимитера.
func (s *Service) gate(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (s *Service) slippage(bps int) int {
	if bps > 0 {
		return bps
	}
	return s.slippageBps
}
