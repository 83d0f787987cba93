// Package relay — клиент block engine для отправки bundles (Jito-совместимый JSON-RPC).
package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/shaiso/Swarm/internal/chain"
	"github.com/shaiso/Swarm/internal/circuitbreaker"
	"github.com/shaiso/Swarm/internal/retry"
)

// Status — состояние bundle в block engine.
type Status string

const (
	StatusUnknown Status = ""
	StatusPending Status = "Pending"
	StatusLanded  Status = "Landed"
	StatusFailed  Status = "Failed"
	StatusInvalid Status = "Invalid"
)

// IsFinal возвращает true для статусов, после которых опрос не нужен.
func (s Status) IsFinal() bool {
	return s == StatusLanded || s == StatusFailed || s == StatusInvalid
}

// ErrBundleTimeout — bundle не получил финальный статус за отведённое время.
var ErrBundleTimeout = errors.New("bundle result timeout")

// AuthHeader — заголовок с ключом relay.
const AuthHeader = "x-jito-auth"

// Client — операции block engine.
type Client interface {
	TipAccounts(ctx context.Context) ([]solana.PublicKey, error)
	SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error)
	BundleStatus(ctx context.Context, bundleID string) (Status, error)
}

// JSONRPC — Client поверх JSON-RPC solana-go.
type JSONRPC struct {
	rpc      jsonrpc.RPCClient
	endpoint string
	breaker  *circuitbreaker.Breaker
}

// New создаёт клиента block engine. endpoint — полный URL bundles API.
func New(endpoint, key string, timeout time.Duration, breaker *circuitbreaker.Breaker) *JSONRPC {
	headers := map[string]string{}
	if key != "" {
		headers[AuthHeader] = key
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &JSONRPC{
		rpc: jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{
			HTTPClient:    &http.Client{Timeout: timeout},
			CustomHeaders: headers,
		}),
		endpoint: endpoint,
		breaker:  breaker,
	}
}

func (c *JSONRPC) call(ctx context.Context, out any, method string, params []any) error {
	fn := func(ctx context.Context) error {
		return c.rpc.CallForInto(ctx, out, method, params)
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Do(ctx, c.endpoint, fn)
	} else {
		err = fn(ctx)
	}
	if err != nil {
		return fmt.Errorf("relay %s: %w", method, chain.Classify(err))
	}
	return nil
}

// TipAccounts возвращает аккаунты для tip.
func (c *JSONRPC) TipAccounts(ctx context.Context) ([]solana.PublicKey, error) {
	var raw []string
	if err := c.call(ctx, &raw, "getTipAccounts", []any{}); err != nil {
		return nil, err
	}

	accounts := make([]solana.PublicKey, 0, len(raw))
	for _, s := range raw {
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return nil, retry.AsPermanent(fmt.Errorf("relay tip account %q: %w", s, err))
		}
		accounts = append(accounts, pk)
	}
	if len(accounts) == 0 {
		return nil, errors.New("relay returned no tip accounts")
	}
	return accounts, nil
}

// SendBundle отправляет подписанные транзакции одним bundle.
func (c *JSONRPC) SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error) {
	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		data, err := tx.MarshalBinary()
		if err != nil {
			return "", retry.AsPermanent(fmt.Errorf("encode bundle transaction: %w", err))
		}
		encoded = append(encoded, base64.StdEncoding.EncodeToString(data))
	}

	var id string
	params := []any{encoded, map[string]string{"encoding": "base64"}}
	if err := c.call(ctx, &id, "sendBundle", params); err != nil {
		return "", err
	}
	return id, nil
}

type inflightResult struct {
	Value []struct {
		BundleID string `json:"bundle_id"`
		Status   Status `json:"status"`
	} `json:"value"`
}

// BundleStatus возвращает статус bundle.
func (c *JSONRPC) BundleStatus(ctx context.Context, bundleID string) (Status, error) {
	var out inflightResult
	if err := c.call(ctx, &out, "getInflightBundleStatuses", []any{[]string{bundleID}}); err != nil {
		return StatusUnknown, err
	}
	for _, v := range out.Value {
		if v.BundleID == bundleID {
			return v.Status, nil
		}
	}
	return StatusUnknown, nil
}

// AwaitResult опрашивает статус bundle до финального или до timeout.
// По истечении timeout возвращает ErrBundleTimeout, помеченную как Ambiguous.
func AwaitResult(ctx context.Context, c Client, bundleID string, timeout, interval time.Duration) (Status, error) {
	if interval <= 0 {
		interval = time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.BundleStatus(ctx, bundleID)
		if err == nil && status.IsFinal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return StatusUnknown, retry.AsAmbiguous(fmt.Errorf("%w: %s", ErrBundleTimeout, bundleID))
			}
			return StatusUnknown, ctx.Err()
		case <-ticker.C:
		}
	}
}
