package trading

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/shaiso/Swarm/internal/chain"
	"github.com/shaiso/Swarm/internal/retry"
)

// AggregatorRouter строит своп через агрегатор ликвидности (quote + swap API).
type AggregatorRouter struct {
	endpoint string
	client   *http.Client
}

// Name возвращает RouterAggregator.
func (r *AggregatorRouter) Name() string { return RouterAggregator }

// Build запрашивает котировку и по ней сериализованную транзакцию.
func (r *AggregatorRouter) Build(ctx context.Context, req SwapRequest) (*solana.Transaction, error) {
	if req.Amount == 0 {
		return nil, retry.Businessf("%w", ErrInvalidAmount)
	}

	input, output := WrappedSOL, req.Mint
	if req.Side == SideSell {
		input, output = req.Mint, WrappedSOL
	}

	q := url.Values{}
	q.Set("inputMint", input.String())
	q.Set("outputMint", output.String())
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))

	var quote json.RawMessage
	if _, err := doJSON(ctx, r.client, http.MethodGet, r.endpoint+"/quote?"+q.Encode(), nil, &quote); err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	var swap struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	body := map[string]any{
		"quoteResponse":    quote,
		"userPublicKey":    req.Owner.String(),
		"wrapAndUnwrapSol": true,
	}
	if _, err := doJSON(ctx, r.client, http.MethodPost, r.endpoint+"/swap", body, &swap); err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}
	if swap.SwapTransaction == "" {
		return nil, fmt.Errorf("swap: empty transaction")
	}

	tx, err := chain.DecodeTransaction(swap.SwapTransaction)
	if err != nil {
		return nil, retry.AsPermanent(err)
	}
	return tx, nil
}
