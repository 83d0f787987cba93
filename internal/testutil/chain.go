package testutil

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/shaiso/Swarm/internal/chain"
)

// FakeChain — chain.Client в памяти.
//
// По умолчанию отправленные транзакции сразу подтверждаются (AutoConfirm).
type FakeChain struct {
	mu sync.Mutex

	Blockhash    solana.Hash
	BlockhashErr error

	// SendErr возвращается SendTransaction, если задан.
	SendErr error

	// AutoConfirm — статус confirmed для каждой отправленной транзакции.
	AutoConfirm bool

	// StatusErr возвращается SignatureStatus, если задан.
	StatusErr error

	Statuses map[solana.Signature]*chain.SignatureStatus
	Sent     []*solana.Transaction

	// BalanceFunc и TokenBalanceFunc переопределяют балансы.
	BalanceFunc      func(owner solana.PublicKey) (uint64, error)
	TokenBalanceFunc func(owner, mint solana.PublicKey) (uint64, error)
}

// NewFakeChain создаёт FakeChain с AutoConfirm.
func NewFakeChain() *FakeChain {
	return &FakeChain{
		Blockhash:   solana.Hash{7},
		AutoConfirm: true,
		Statuses:    make(map[solana.Signature]*chain.SignatureStatus),
	}
}

func (f *FakeChain) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Blockhash, f.BlockhashErr
}

func (f *FakeChain) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SendErr != nil {
		return solana.Signature{}, f.SendErr
	}
	f.Sent = append(f.Sent, tx)

	sig := tx.Signatures[0]
	if f.AutoConfirm {
		f.Statuses[sig] = &chain.SignatureStatus{Confirmation: chain.CommitmentConfirmed}
	}
	return sig, nil
}

func (f *FakeChain) SignatureStatus(ctx context.Context, sig solana.Signature) (*chain.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.StatusErr != nil {
		return nil, f.StatusErr
	}
	return f.Statuses[sig], nil
}

// SetStatus задаёт статус подписи.
func (f *FakeChain) SetStatus(sig solana.Signature, status *chain.SignatureStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Statuses[sig] = status
}

// SentCount возвращает количество отправленных транзакций.
func (f *FakeChain) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

func (f *FakeChain) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	if f.BalanceFunc != nil {
		return f.BalanceFunc(owner)
	}
	return 0, nil
}

func (f *FakeChain) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	if f.TokenBalanceFunc != nil {
		return f.TokenBalanceFunc(owner, mint)
	}
	return 0, nil
}
