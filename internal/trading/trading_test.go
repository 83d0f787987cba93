package trading

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Swarm/internal/chain"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/retry"
	"github.com/shaiso/Swarm/internal/testutil"
	"github.com/shaiso/Swarm/internal/txexec"
)

var fastPolicy = retry.Policy{Base: time.Millisecond, Max: 2 * time.Millisecond}

// fakeRouter строит перевод самому себе вместо свопа.
type fakeRouter struct {
	mu       sync.Mutex
	requests []SwapRequest
	errs     []error
}

func (r *fakeRouter) Name() string { return "fake" }

func (r *fakeRouter) Build(ctx context.Context, req SwapRequest) (*solana.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = append(r.requests, req)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return chain.TransferTx(req.Owner, req.Owner, 1, solana.Hash{})
}

func (r *fakeRouter) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

type staticExecutors struct{ exec txexec.Executor }

func (s staticExecutors) For(domain.ExecutorConfig) (txexec.Executor, error) { return s.exec, nil }

type scriptedExecutor struct {
	results []txexec.Result
	calls   int
}

func (e *scriptedExecutor) Strategy() txexec.Strategy { return txexec.StrategyDirect }

func (e *scriptedExecutor) Execute(ctx context.Context, sub txexec.Submission) txexec.Result {
	r := e.results[min(e.calls, len(e.results)-1)]
	e.calls++
	return r
}

type fixedVerifier struct {
	verdict txexec.Verdict
	calls   int
}

func (v *fixedVerifier) Verify(context.Context, string) (txexec.Verdict, error) {
	v.calls++
	return v.verdict, nil
}

func newWallet(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := chain.NewKeypair()
	require.NoError(t, err)
	return key
}

func newTestService(fc *testutil.FakeChain, router Router, exec txexec.Executor, verifier txexec.Verifier) *Service {
	return NewService(Config{
		Chain:         fc,
		Router:        router,
		Executors:     staticExecutors{exec: exec},
		Verifier:      verifier,
		Policy:        fastPolicy,
		BalancePolicy: fastPolicy,
	})
}

func directExecutor(fc *testutil.FakeChain) txexec.Executor {
	return txexec.NewDirect(fc, txexec.DirectConfig{ConfirmTimeout: 50 * time.Millisecond, PollInterval: time.Millisecond})
}

func TestPercentOf(t *testing.T) {
	got, err := PercentOf(3_000_000, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), got)

	cases := []struct {
		balance uint64
		percent int
		want    uint64
	}{
		{10, 33, 3},
		{999, 100, 999},
		{1, 50, 0},
		{18_446_744_073_709_551_615, 100, 18_446_744_073_709_551_615},
		{18_446_744_073_709_551_615, 50, 9_223_372_036_854_775_807},
	}
	for _, tc := range cases {
		got, err := PercentOf(tc.balance, tc.percent)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%d%% of %d", tc.percent, tc.balance)
	}

	for _, p := range []int{0, -1, 101} {
		_, err := PercentOf(100, p)
		require.ErrorIs(t, err, ErrInvalidPercent)
		assert.Equal(t, retry.Business, retry.KindOf(err))
	}
}

func TestExecuteBuy_Success(t *testing.T) {
	fc := testutil.NewFakeChain()
	router := &fakeRouter{}
	svc := newTestService(fc, router, directExecutor(fc), nil)

	mint := solana.NewWallet().PublicKey()
	res, err := svc.ExecuteBuy(context.Background(), BuyRequest{
		Wallet:         newWallet(t),
		Mint:           mint,
		AmountLamports: 1_000_000,
	})

	require.NoError(t, err)
	assert.Equal(t, SideBuy, res.Side)
	assert.Equal(t, uint64(1_000_000), res.Amount)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.Signature)
	require.Len(t, router.requests, 1)
	assert.Equal(t, DefaultSlippageBps, router.requests[0].SlippageBps)
	assert.Equal(t, mint, router.requests[0].Mint)
}

func TestExecuteBuy_RetriesTransientRouterErrors(t *testing.T) {
	fc := testutil.NewFakeChain()
	router := &fakeRouter{errs: []error{errors.New("502 bad gateway"), errors.New("connection reset")}}
	svc := newTestService(fc, router, directExecutor(fc), nil)

	res, err := svc.ExecuteBuy(context.Background(), BuyRequest{
		Wallet:         newWallet(t),
		Mint:           solana.NewWallet().PublicKey(),
		AmountLamports: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, router.calls())
}

func TestExecuteBuy_GivesUpAfterThreeAttempts(t *testing.T) {
	fc := testutil.NewFakeChain()
	fail := errors.New("503 service unavailable")
	router := &fakeRouter{errs: []error{fail, fail, fail, fail}}
	svc := newTestService(fc, router, directExecutor(fc), nil)

	_, err := svc.ExecuteBuy(context.Background(), BuyRequest{
		Wallet:         newWallet(t),
		Mint:           solana.NewWallet().PublicKey(),
		AmountLamports: 1,
	})

	require.ErrorIs(t, err, fail)
	assert.Equal(t, 3, router.calls())
	assert.Equal(t, 0, fc.SentCount())
}

func TestExecuteBuy_PermanentRouterErrorNotRetried(t *testing.T) {
	fc := testutil.NewFakeChain()
	router := &fakeRouter{errs: []error{retry.AsPermanent(errors.New("no route"))}}
	svc := newTestService(fc, router, directExecutor(fc), nil)

	_, err := svc.ExecuteBuy(context.Background(), BuyRequest{
		Wallet:         newWallet(t),
		Mint:           solana.NewWallet().PublicKey(),
		AmountLamports: 1,
	})

	require.Error(t, err)
	assert.Equal(t, retry.Permanent, retry.KindOf(err))
	assert.Equal(t, 1, router.calls())
}

func TestExecuteBuy_ZeroAmountIsBusinessError(t *testing.T) {
	svc := newTestService(testutil.NewFakeChain(), &fakeRouter{}, nil, nil)

	_, err := svc.ExecuteBuy(context.Background(), BuyRequest{Wallet: newWallet(t)})
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, retry.Business, retry.KindOf(err))
}

func TestExecuteBuy_MissingRelayKey(t *testing.T) {
	fc := testutil.NewFakeChain()
	router := &fakeRouter{}
	svc := NewService(Config{
		Chain:     fc,
		Router:    router,
		Executors: txexec.NewFactory(fc, txexec.DirectConfig{}, nil, nil),
	})

	_, err := svc.ExecuteBuy(context.Background(), BuyRequest{
		Wallet:         newWallet(t),
		Mint:           solana.NewWallet().PublicKey(),
		AmountLamports: 1,
		Executor:       domain.ExecutorConfig{UseRelay: true, RelayEndpoint: "https://relay"},
	})

	require.ErrorIs(t, err, txexec.ErrMissingRelayKey)
	assert.Equal(t, retry.Configuration, retry.KindOf(err))
	assert.Equal(t, 0, router.calls())
}

func TestExecuteSell_WaitsForBalance(t *testing.T) {
	fc := testutil.NewFakeChain()
	var lookups int
	fc.TokenBalanceFunc = func(owner, mint solana.PublicKey) (uint64, error) {
		lookups++
		if lookups < 3 {
			return 0, nil
		}
		return 3_000_000, nil
	}
	router := &fakeRouter{}
	svc := newTestService(fc, router, directExecutor(fc), nil)

	res, err := svc.ExecuteSell(context.Background(), SellRequest{
		Wallet:  newWallet(t),
		Mint:    solana.NewWallet().PublicKey(),
		Percent: 50,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, lookups)
	assert.Equal(t, uint64(1_500_000), res.Amount)
	require.Len(t, router.requests, 1)
	assert.Equal(t, SideSell, router.requests[0].Side)
	assert.Equal(t, uint64(1_500_000), router.requests[0].Amount)
}

func TestExecuteSell_NoBalance(t *testing.T) {
	fc := testutil.NewFakeChain()
	var lookups int
	fc.TokenBalanceFunc = func(owner, mint solana.PublicKey) (uint64, error) {
		lookups++
		return 0, nil
	}
	router := &fakeRouter{}
	svc := newTestService(fc, router, directExecutor(fc), nil)

	_, err := svc.ExecuteSell(context.Background(), SellRequest{
		Wallet: newWallet(t),
		Mint:   solana.NewWallet().PublicKey(),
	})

	require.ErrorIs(t, err, ErrNoBalance)
	assert.Equal(t, retry.Business, retry.KindOf(err))
	assert.False(t, retry.IsRetryable(err))
	assert.Equal(t, DefaultBalanceAttempts, lookups)
	assert.Equal(t, 0, router.calls())
}

func TestExecuteSell_AmountCappedAtBalance(t *testing.T) {
	fc := testutil.NewFakeChain()
	fc.TokenBalanceFunc = func(owner, mint solana.PublicKey) (uint64, error) { return 700, nil }
	router := &fakeRouter{}
	svc := newTestService(fc, router, directExecutor(fc), nil)

	res, err := svc.ExecuteSell(context.Background(), SellRequest{
		Wallet: newWallet(t),
		Mint:   solana.NewWallet().PublicKey(),
		Amount: 1_000,
	})

	require.NoError(t, err)
	assert.Equal(t, uint64(700), res.Amount)
}

func TestAmbiguousOutcome_LandedIsNotResubmitted(t *testing.T) {
	exec := &scriptedExecutor{results: []txexec.Result{{
		Signature: solana.Signature{9}.String(),
		Outcome:   txexec.OutcomeTimeout,
		Strategy:  txexec.StrategyDirect,
		Err:       retry.AsAmbiguous(txexec.ErrConfirmTimeout),
	}}}
	verifier := &fixedVerifier{verdict: txexec.VerdictLanded}
	svc := newTestService(testutil.NewFakeChain(), &fakeRouter{}, exec, verifier)

	res, err := svc.ExecuteBuy(context.Background(), BuyRequest{
		Wallet:         newWallet(t),
		Mint:           solana.NewWallet().PublicKey(),
		AmountLamports: 1,
	})

	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, txexec.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, 1, verifier.calls)
}

func TestAmbiguousOutcome_UnknownStops(t *testing.T) {
	exec := &scriptedExecutor{results: []txexec.Result{{
		Signature: solana.Signature{9}.String(),
		Outcome:   txexec.OutcomeTimeout,
		Err:       retry.AsAmbiguous(txexec.ErrConfirmTimeout),
	}}}
	svc := newTestService(testutil.NewFakeChain(), &fakeRouter{}, exec, &fixedVerifier{verdict: txexec.VerdictUnknown})

	_, err := svc.ExecuteBuy(context.Background(), BuyRequest{
		Wallet:         newWallet(t),
		Mint:           solana.NewWallet().PublicKey(),
		AmountLamports: 1,
	})

	require.ErrorIs(t, err, ErrUnsettled)
	assert.Equal(t, retry.Ambiguous, retry.KindOf(err))
	assert.Equal(t, 1, exec.calls, "unsettled transaction must not be resubmitted")
}

func TestAmbiguousOutcome_FailedOnChainIsRetried(t *testing.T) {
	exec := &scriptedExecutor{results: []txexec.Result{
		{
			Signature: solana.Signature{9}.String(),
			Outcome:   txexec.OutcomeDisconnected,
			Err:       errors.New("connection reset"),
		},
		{Success: true, Signature: solana.Signature{10}.String(), Outcome: txexec.OutcomeSuccess},
	}}
	svc := newTestService(testutil.NewFakeChain(), &fakeRouter{}, exec, &fixedVerifier{verdict: txexec.VerdictFailed})

	res, err := svc.ExecuteBuy(context.Background(), BuyRequest{
		Wallet:         newWallet(t),
		Mint:           solana.NewWallet().PublicKey(),
		AmountLamports: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, exec.calls)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, solana.Signature{10}.String(), res.Signature)
}

// --- routers ---

func encodedTx(t *testing.T, owner solana.PublicKey) []byte {
	t.Helper()
	tx, err := chain.TransferTx(owner, owner, 1, solana.Hash{1})
	require.NoError(t, err)
	b, err := tx.MarshalBinary()
	require.NoError(t, err)
	return b
}

func TestAggregatorRouter_Build(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	raw := encodedTx(t, owner)

	var quoteQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			q := r.URL.Query()
			quoteQuery = map[string]string{
				"inputMint":   q.Get("inputMint"),
				"outputMint":  q.Get("outputMint"),
				"amount":      q.Get("amount"),
				"slippageBps": q.Get("slippageBps"),
			}
			_, _ = w.Write([]byte(`{"outAmount":"42"}`))
		case "/swap":
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), owner.String())
			assert.Contains(t, string(body), `"outAmount":"42"`)
			_, _ = w.Write([]byte(`{"swapTransaction":"` + base64.StdEncoding.EncodeToString(raw) + `"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	router, err := NewRouter(RouterAggregator, srv.URL+"/", time.Second)
	require.NoError(t, err)

	tx, err := router.Build(context.Background(), SwapRequest{
		Side: SideSell, Owner: owner, Mint: mint, Amount: 1_500_000, SlippageBps: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, owner, tx.Message.AccountKeys[0])

	assert.Equal(t, mint.String(), quoteQuery["inputMint"])
	assert.Equal(t, WrappedSOL.String(), quoteQuery["outputMint"])
	assert.Equal(t, "1500000", quoteQuery["amount"])
	assert.Equal(t, "50", quoteQuery["slippageBps"])
}

func TestPoolRouter_Build(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	raw := encodedTx(t, owner)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-local", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"action":"buy"`)
		assert.Contains(t, string(body), `"pool":"auto"`)
		assert.Contains(t, string(body), `"denominatedIn":"lamports"`)
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	router, err := NewRouter(RouterPool, srv.URL, time.Second)
	require.NoError(t, err)

	tx, err := router.Build(context.Background(), SwapRequest{
		Side: SideBuy, Owner: owner, Mint: solana.NewWallet().PublicKey(), Amount: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, owner, tx.Message.AccountKeys[0])
}

func TestRouter_StatusClassification(t *testing.T) {
	cases := []struct {
		code int
		kind retry.Kind
	}{
		{http.StatusTooManyRequests, retry.RateLimited},
		{http.StatusBadGateway, retry.Transient},
		{http.StatusBadRequest, retry.Permanent},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		}))

		router, err := NewRouter(RouterPool, srv.URL, time.Second)
		require.NoError(t, err)

		_, err = router.Build(context.Background(), SwapRequest{
			Side: SideBuy, Owner: solana.NewWallet().PublicKey(), Mint: solana.NewWallet().PublicKey(), Amount: 1,
		})
		require.Error(t, err)
		assert.Equal(t, tc.kind, retry.KindOf(err), "status %d", tc.code)
		srv.Close()
	}
}

func TestNewRouter_UnknownMode(t *testing.T) {
	_, err := NewRouter("magic", "http://localhost", time.Second)
	require.ErrorIs(t, err, ErrUnknownRouter)
	assert.Equal(t, retry.Configuration, retry.KindOf(err))
}
