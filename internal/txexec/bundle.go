package txexec

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/shaiso/Swarm/internal/chain"
	"github.com/shaiso/Swarm/internal/relay"
	"github.com/shaiso/Swarm/internal/retry"
)

// Ошибки RelayedBundle.
var (
	ErrBundleRejected = errors.New("bundle rejected")
	ErrBundleTooLarge = errors.New("bundle exceeds transaction limit")
)

// Значения по умолчанию для RelayedBundle.
const (
	DefaultTipLamports            = 10_000
	DefaultBundleTransactionLimit = 5
	DefaultBundleTimeout          = 30 * time.Second
)

// BundleConfig — параметры RelayedBundle.
type BundleConfig struct {
	TipLamports      uint64
	TransactionLimit int
	Timeout          time.Duration
	PollInterval     time.Duration
}

// RelayedBundle — отправка bundle {tx, tip} через block engine.
type RelayedBundle struct {
	chain chain.Client
	relay relay.Client
	cfg   BundleConfig
}

// NewRelayedBundle создаёт RelayedBundle.
func NewRelayedBundle(chainClient chain.Client, relayClient relay.Client, cfg BundleConfig) *RelayedBundle {
	if cfg.TipLamports == 0 {
		cfg.TipLamports = DefaultTipLamports
	}
	if cfg.TransactionLimit <= 0 {
		cfg.TransactionLimit = DefaultBundleTransactionLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBundleTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &RelayedBundle{chain: chainClient, relay: relayClient, cfg: cfg}
}

// Strategy возвращает StrategyRelayed.
func (b *RelayedBundle) Strategy() Strategy { return StrategyRelayed }

// Execute: tip accounts → tip-перевод → подпись → sendBundle → ожидание результата.
func (b *RelayedBundle) Execute(ctx context.Context, sub Submission) Result {
	start := time.Now()

	payer := sub.Payer()
	if payer == nil || sub.Tx == nil {
		return failed(StrategyRelayed, OutcomeError, "", retry.AsPermanent(ErrNoSigners), start)
	}

	// tip идёт отдельной транзакцией в том же bundle
	if b.cfg.TransactionLimit < 2 {
		return failed(StrategyRelayed, OutcomeError, "", retry.Configurationf("%w: limit %d", ErrBundleTooLarge, b.cfg.TransactionLimit), start)
	}

	tipAccounts, err := b.relay.TipAccounts(ctx)
	if err != nil {
		return failed(StrategyRelayed, OutcomeError, "", err, start)
	}
	tipAccount := tipAccounts[rand.IntN(len(tipAccounts))]

	blockhash, err := b.chain.LatestBlockhash(ctx)
	if err != nil {
		return failed(StrategyRelayed, OutcomeError, "", err, start)
	}

	sig, err := chain.Sign(sub.Tx, blockhash, sub.Signers...)
	if err != nil {
		return failed(StrategyRelayed, OutcomeError, "", retry.AsPermanent(err), start)
	}

	tipTx, err := chain.TransferTx(payer.PublicKey(), tipAccount, b.cfg.TipLamports, blockhash)
	if err != nil {
		return failed(StrategyRelayed, OutcomeError, "", retry.AsPermanent(err), start)
	}
	if _, err := chain.Sign(tipTx, blockhash, payer); err != nil {
		return failed(StrategyRelayed, OutcomeError, "", retry.AsPermanent(err), start)
	}

	bundleID, err := b.relay.SendBundle(ctx, []*solana.Transaction{sub.Tx, tipTx})
	if err != nil {
		if retry.IsRetryable(err) {
			// bundle мог быть принят
			return failed(StrategyRelayed, OutcomeUnknown, sig.String(), err, start)
		}
		return failed(StrategyRelayed, OutcomeRejected, "", err, start)
	}

	status, err := relay.AwaitResult(ctx, b.relay, bundleID, b.cfg.Timeout, b.cfg.PollInterval)
	if err != nil {
		return failed(StrategyRelayed, OutcomeUnknown, sig.String(), err, start)
	}

	if status != relay.StatusLanded {
		err := fmt.Errorf("%w: %s status %s", ErrBundleRejected, bundleID, status)
		return failed(StrategyRelayed, OutcomeRejected, sig.String(), err, start)
	}

	return Result{
		Success:   true,
		Signature: BundlePrefix + bundleID,
		Outcome:   OutcomeAccepted,
		Strategy:  StrategyRelayed,
		Latency:   time.Since(start),
	}
}
