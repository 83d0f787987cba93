package txexec

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/shaiso/Swarm/internal/chain"
)

// Verdict — результат сверки неоднозначного исхода.
type Verdict int

const (
	// VerdictUnknown — сеть не знает подпись; повтор допустим только после истечения blockhash.
	VerdictUnknown Verdict = iota

	// VerdictLanded — транзакция подтверждена, повторять нельзя.
	VerdictLanded

	// VerdictFailed — транзакция попала в сеть с ошибкой.
	VerdictFailed
)

func (v Verdict) String() string {
	switch v {
	case VerdictLanded:
		return "landed"
	case VerdictFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Verifier сверяет фактический исход неуспешной отправки перед повтором.
type Verifier interface {
	Verify(ctx context.Context, signature string) (Verdict, error)
}

// SignatureVerifier проверяет подпись в сети.
//
// Любой статус без ошибки, включая processed, считается VerdictLanded.
type SignatureVerifier struct {
	client chain.Client
}

// NewSignatureVerifier создаёт SignatureVerifier.
func NewSignatureVerifier(client chain.Client) *SignatureVerifier {
	return &SignatureVerifier{client: client}
}

// Verify возвращает вердикт по подписи.
func (v *SignatureVerifier) Verify(ctx context.Context, signature string) (Verdict, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return VerdictUnknown, fmt.Errorf("parse signature: %w", err)
	}

	status, err := v.client.SignatureStatus(ctx, sig)
	if err != nil {
		return VerdictUnknown, err
	}
	switch {
	case status == nil:
		return VerdictUnknown, nil
	case status.Err != nil:
		return VerdictFailed, nil
	default:
		return VerdictLanded, nil
	}
}
