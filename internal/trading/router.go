package trading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/shaiso/Swarm/internal/retry"
)

// Side — направление сделки.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Режимы маршрутизации.
const (
	RouterAggregator = "aggregator"
	RouterPool       = "pool"
)

// WrappedSOL — mint wSOL, используется агрегатором как входной/выходной токен.
var WrappedSOL = solana.SolMint

// SwapRequest — запрос на построение транзакции свопа.
type SwapRequest struct {
	Side  Side
	Owner solana.PublicKey
	Mint  solana.PublicKey

	// Amount — lamports для покупки, базовые единицы токена для продажи.
	Amount uint64

	SlippageBps int

	// Pool — пул для прямого свопа. Пусто — auto.
	Pool string
}

// Router строит неподписанную транзакцию свопа.
type Router interface {
	Build(ctx context.Context, req SwapRequest) (*solana.Transaction, error)
	Name() string
}

// NewRouter создаёт Router по режиму из конфигурации.
func NewRouter(mode, endpoint string, timeout time.Duration) (Router, error) {
	client := &http.Client{Timeout: timeout}
	switch mode {
	case RouterAggregator:
		return &AggregatorRouter{endpoint: strings.TrimRight(endpoint, "/"), client: client}, nil
	case RouterPool:
		return &PoolRouter{endpoint: strings.TrimRight(endpoint, "/"), client: client}, nil
	default:
		return nil, retry.Configurationf("%w: %q", ErrUnknownRouter, mode)
	}
}

// doJSON выполняет запрос и разбирает JSON-ответ в out.
// out == nil — тело возвращается как есть.
func doJSON(ctx context.Context, client *http.Client, method, url string, body any, out any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, retry.AsPermanent(fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, retry.AsPermanent(fmt.Errorf("build request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := statusError(resp.StatusCode, data); err != nil {
		return nil, err
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return data, nil
}

// statusError классифицирует HTTP-статус ответа роутера.
func statusError(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	err := fmt.Errorf("router returned %d: %s", code, msg)

	switch {
	case code == http.StatusTooManyRequests:
		return retry.AsRateLimited(err)
	case code >= 500:
		return err
	default:
		// 4xx: нет маршрута, неверный mint и т.п.
		return retry.AsPermanent(err)
	}
}
