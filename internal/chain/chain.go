// Package chain — адаптер Solana RPC поверх solana-go.
//
// Остальной код работает с интерфейсом Client, поэтому в тестах сеть
// подменяется фейком.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/shaiso/Swarm/internal/circuitbreaker"
)

// Commitment — уровень подтверждения.
type Commitment = rpc.CommitmentType

const (
	CommitmentProcessed = rpc.CommitmentProcessed
	CommitmentConfirmed = rpc.CommitmentConfirmed
	CommitmentFinalized = rpc.CommitmentFinalized
)

// SignatureStatus — состояние транзакции в сети.
type SignatureStatus struct {
	Slot         uint64
	Confirmation Commitment

	// Err — ошибка исполнения on-chain. Nil — транзакция прошла.
	Err any
}

// Reached проверяет, достигнут ли уровень want.
func (s *SignatureStatus) Reached(want Commitment) bool {
	return rank(s.Confirmation) >= rank(want)
}

func rank(c Commitment) int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// Client — сетевые операции, нужные исполнителям транзакций.
type Client interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)

	// SignatureStatus возвращает nil, nil, если сеть ещё не знает подпись.
	SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error)

	Balance(ctx context.Context, owner solana.PublicKey) (uint64, error)

	// TokenBalance возвращает баланс ATA владельца в base units; 0, если ATA нет.
	TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
}

// RPC — Client поверх rpc.Client с circuit breaker.
type RPC struct {
	client     *rpc.Client
	endpoint   string
	commitment Commitment
	breaker    *circuitbreaker.Breaker
}

// NewRPC создаёт RPC клиента. breaker может быть nil.
func NewRPC(endpoint string, commitment Commitment, breaker *circuitbreaker.Breaker) *RPC {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	return &RPC{
		client:     rpc.New(endpoint),
		endpoint:   endpoint,
		commitment: commitment,
		breaker:    breaker,
	}
}

// Close закрывает idle-соединения.
func (c *RPC) Close() error {
	return c.client.Close()
}

func (c *RPC) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.breaker == nil {
		return Classify(fn(ctx))
	}

	if err := c.breaker.Allow(c.endpoint); err != nil {
		return fmt.Errorf("rpc %s: %w", c.endpoint, err)
	}

	err := fn(ctx)
	switch {
	case err == nil, !isNodeFailure(err):
		// отклонённый запрос говорит о запросе, а не о доступности узла
		c.breaker.RecordSuccess(c.endpoint)
	case ctx.Err() == nil:
		c.breaker.RecordFailure(c.endpoint)
	}
	return Classify(err)
}

// LatestBlockhash возвращает последний blockhash.
func (c *RPC) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var out *rpc.GetLatestBlockhashResult
	err := c.call(ctx, func(ctx context.Context) (err error) {
		out, err = c.client.GetLatestBlockhash(ctx, c.commitment)
		return err
	})
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, errors.New("get latest blockhash: empty response")
	}
	return out.Value.Blockhash, nil
}

// SendTransaction отправляет подписанную транзакцию.
func (c *RPC) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	err := c.call(ctx, func(ctx context.Context) (err error) {
		sig, err = c.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			PreflightCommitment: c.commitment,
		})
		return err
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// SignatureStatus возвращает статус подписи.
func (c *RPC) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	var out *rpc.GetSignatureStatusesResult
	err := c.call(ctx, func(ctx context.Context) (err error) {
		out, err = c.client.GetSignatureStatuses(ctx, true, sig)
		if errors.Is(err, rpc.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}

	v := out.Value[0]
	return &SignatureStatus{
		Slot:         v.Slot,
		Confirmation: Commitment(v.ConfirmationStatus),
		Err:          v.Err,
	}, nil
}

// Balance возвращает баланс SOL в lamports.
func (c *RPC) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var out *rpc.GetBalanceResult
	err := c.call(ctx, func(ctx context.Context) (err error) {
		out, err = c.client.GetBalance(ctx, owner, c.commitment)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if out == nil {
		return 0, nil
	}
	return out.Value, nil
}

// TokenBalance возвращает баланс токена mint у owner.
func (c *RPC) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("derive token account: %w", err)
	}

	var out *rpc.GetTokenAccountBalanceResult
	err = c.call(ctx, func(ctx context.Context) (err error) {
		out, err = c.client.GetTokenAccountBalance(ctx, ata, c.commitment)
		if isMissingAccount(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get token balance: %w", err)
	}
	if out == nil || out.Value == nil {
		return 0, nil
	}
	return ParseAmount(out.Value.Amount)
}
