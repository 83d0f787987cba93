package trading

import (
	"context"
	"fmt"
	"net/http"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/shaiso/Swarm/internal/retry"
)

// PoolRouter строит прямой своп в пуле через trade-local API.
// Ответ API — сырая сериализованная транзакция.
type PoolRouter struct {
	endpoint string
	client   *http.Client
}

// Name возвращает RouterPool.
func (r *PoolRouter) Name() string { return RouterPool }

// Build запрашивает транзакцию свопа.
func (r *PoolRouter) Build(ctx context.Context, req SwapRequest) (*solana.Transaction, error) {
	if req.Amount == 0 {
		return nil, retry.Businessf("%w", ErrInvalidAmount)
	}

	pool := req.Pool
	if pool == "" {
		pool = "auto"
	}

	// покупка в lamports, продажа в базовых единицах токена
	denominated := "token"
	if req.Side == SideBuy {
		denominated = "lamports"
	}

	body := map[string]any{
		"publicKey":     req.Owner.String(),
		"action":        string(req.Side),
		"mint":          req.Mint.String(),
		"amount":        req.Amount,
		"denominatedIn": denominated,
		"slippage":      float64(req.SlippageBps) / 100,
		"pool":          pool,
	}

	raw, err := doJSON(ctx, r.client, http.MethodPost, r.endpoint+"/trade-local", body, nil)
	if err != nil {
		return nil, fmt.Errorf("trade-local: %w", err)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, retry.AsPermanent(fmt.Errorf("decode transaction: %w", err))
	}
	return tx, nil
}
