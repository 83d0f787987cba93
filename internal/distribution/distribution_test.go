package distribution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Swarm/internal/chain"
	"github.com/shaiso/Swarm/internal/retry"
	"github.com/shaiso/Swarm/internal/testutil"
	"github.com/shaiso/Swarm/internal/txexec"
)

const perWallet = 1_000_000

// ledger — балансы для FakeChain: источник плюс подтверждённые переводы.
type ledger struct {
	mu       sync.Mutex
	source   solana.PublicKey
	balances map[solana.PublicKey]uint64
	calls    int
}

func newLedger(source solana.PublicKey, balance uint64) *ledger {
	return &ledger{source: source, balances: map[solana.PublicKey]uint64{source: balance}}
}

func (l *ledger) balance(owner solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.balances[owner], nil
}

func (l *ledger) credit(owner solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[owner] += lamports
}

// crediting исполняет перевод через Direct и зачисляет сумму получателю.
type crediting struct {
	exec   txexec.Executor
	ledger *ledger
	fail   func(n int) *txexec.Result
	n      int
}

func (c *crediting) Strategy() txexec.Strategy { return txexec.StrategyDirect }

func (c *crediting) Execute(ctx context.Context, sub txexec.Submission) txexec.Result {
	c.n++
	if c.fail != nil {
		if r := c.fail(c.n); r != nil {
			return *r
		}
	}
	res := c.exec.Execute(ctx, sub)
	if res.Success {
		dest := sub.Tx.Message.AccountKeys[1]
		c.ledger.credit(dest, perWallet)
	}
	return res
}

type fixture struct {
	chain  *testutil.FakeChain
	ledger *ledger
	exec   *crediting
	source solana.PrivateKey
	svc    *Service
}

func newFixture(t *testing.T, sourceBalance uint64) *fixture {
	t.Helper()
	source, err := chain.NewKeypair()
	require.NoError(t, err)

	fc := testutil.NewFakeChain()
	l := newLedger(source.PublicKey(), sourceBalance)
	fc.BalanceFunc = l.balance

	exec := &crediting{
		exec:   txexec.NewDirect(fc, txexec.DirectConfig{ConfirmTimeout: 50 * time.Millisecond, PollInterval: time.Millisecond}),
		ledger: l,
	}
	svc := NewService(Config{
		Chain:             fc,
		Executor:          exec,
		PerWalletLamports: perWallet,
		FeeLamports:       5_000,
		BufferLamports:    100_000,
		Policy:            retry.Policy{Base: time.Millisecond, Max: time.Millisecond},
		VerifyInterval:    time.Millisecond,
		TransferDelay:     time.Millisecond,
	})
	return &fixture{chain: fc, ledger: l, exec: exec, source: source, svc: svc}
}

func TestDistributeSol_CountBounds(t *testing.T) {
	for _, count := range []int{0, -1, 21} {
		f := newFixture(t, 1<<40)

		res, err := f.svc.DistributeSol(context.Background(), f.source, count, nil)

		require.ErrorIs(t, err, ErrInvalidCount, "count %d", count)
		assert.Nil(t, res)
		assert.Equal(t, retry.Business, retry.KindOf(err))
		assert.Equal(t, 0, f.ledger.calls, "no network calls before validation")
		assert.Equal(t, 0, f.chain.SentCount())
	}
}

func TestDistributeSol_TwentyWallets(t *testing.T) {
	f := newFixture(t, 1<<40)

	var progress []int
	res, err := f.svc.DistributeSol(context.Background(), f.source, MaxWallets, func(done, total int) {
		assert.Equal(t, MaxWallets, total)
		progress = append(progress, done)
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.Wallets, MaxWallets)
	assert.Equal(t, uint64(MaxWallets*perWallet), res.TotalDistributed)
	assert.Equal(t, MaxWallets, f.chain.SentCount())
	assert.Len(t, progress, MaxWallets)
	assert.Equal(t, MaxWallets, progress[len(progress)-1])

	seen := make(map[string]bool)
	for _, w := range res.Wallets {
		assert.True(t, w.Verified)
		assert.Equal(t, w.Address, w.PrivateKey.PublicKey().String())
		assert.False(t, seen[w.Address], "wallets must be unique")
		seen[w.Address] = true
	}
}

func TestDistributeSol_Underfunded(t *testing.T) {
	f := newFixture(t, 0)
	required := f.svc.Required(3)
	assert.Equal(t, uint64((perWallet+5_000)*3+100_000), required)

	f.ledger.credit(f.source.PublicKey(), required-1)

	_, err := f.svc.DistributeSol(context.Background(), f.source, 3, nil)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.False(t, retry.IsRetryable(err))
	assert.Equal(t, 0, f.chain.SentCount())
}

func TestDistributeSol_PartialFailureIsReported(t *testing.T) {
	f := newFixture(t, 1<<40)
	// второй кошелёк: перевод отклонён сетью (не повторяется)
	f.exec.fail = func(n int) *txexec.Result {
		if n != 2 {
			return nil
		}
		err := retry.AsPermanent(errors.New("insufficient funds for rent"))
		return &txexec.Result{Outcome: txexec.OutcomeRejected, Error: err.Error(), Err: err}
	}

	res, err := f.svc.DistributeSol(context.Background(), f.source, 3, nil)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, res.Wallets, 2)
	assert.Equal(t, uint64(2*perWallet), res.TotalDistributed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "insufficient funds for rent")
}

func TestDistributeSol_TransientTransferRetried(t *testing.T) {
	f := newFixture(t, 1<<40)
	f.exec.fail = func(n int) *txexec.Result {
		if n > 2 {
			return nil
		}
		err := errors.New("503 service unavailable")
		return &txexec.Result{Outcome: txexec.OutcomeError, Error: err.Error(), Err: err}
	}

	res, err := f.svc.DistributeSol(context.Background(), f.source, 1, nil)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, f.exec.n)
}

func TestDistributeSol_UnverifiedBalanceKeepsWallet(t *testing.T) {
	f := newFixture(t, 1<<40)
	// перевод подтверждён, но баланс получателя не виден
	f.exec.ledger = newLedger(solana.PublicKey{}, 0)

	res, err := f.svc.DistributeSol(context.Background(), f.source, 2, nil)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Wallets, 2, "keys of possibly funded wallets are kept")
	for _, w := range res.Wallets {
		assert.False(t, w.Verified)
		assert.NotEmpty(t, w.Signature)
	}
	assert.Zero(t, res.TotalDistributed)
	assert.Contains(t, res.Errors[0], ErrNotSettled.Error())
}

func TestDistributeSol_AmbiguousTransferLandedIsNotResent(t *testing.T) {
	f := newFixture(t, 1<<40)
	// сеть приняла перевод, но подтверждение не дождались
	f.chain.AutoConfirm = false
	f.exec.exec = &landedButTimedOut{inner: f.exec.exec, ledger: f.ledger}

	res, err := f.svc.DistributeSol(context.Background(), f.source, 1, nil)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, f.exec.n, "landed transfer must not be resubmitted")
}

// landedButTimedOut зачисляет перевод, но возвращает таймаут подтверждения.
type landedButTimedOut struct {
	inner  txexec.Executor
	ledger *ledger
}

func (e *landedButTimedOut) Strategy() txexec.Strategy { return txexec.StrategyDirect }

func (e *landedButTimedOut) Execute(ctx context.Context, sub txexec.Submission) txexec.Result {
	res := e.inner.Execute(ctx, sub)
	e.ledger.credit(sub.Tx.Message.AccountKeys[1], perWallet)
	return res
}

func TestDistributeSol_ContextCancelled(t *testing.T) {
	f := newFixture(t, 1<<40)
	ctx, cancel := context.WithCancel(context.Background())

	res, err := f.svc.DistributeSol(ctx, f.source, 5, func(done, total int) {
		if done == 2 {
			cancel()
		}
	})

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Len(t, res.Wallets, 2)
	assert.Equal(t, 3, res.Failed)
	assert.False(t, res.Success)
}
