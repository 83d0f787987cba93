package chain

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/shaiso/Swarm/internal/retry"
)

// JSON-RPC коды Solana, означающие отклонение транзакции узлом.
const (
	codeSendTransactionPreflightFailure = -32002
	codeTransactionSignatureVerify      = -32003
	codeInvalidParams                   = -32602
)

// Classify присваивает ошибке RPC класс retry.
//
//   - HTTP 429 и JSON-RPC 429 — RateLimited
//   - отказ preflight, неверная подпись, неверные параметры — Permanent
//   - всё остальное (сеть, 5xx, узел отстал) — Transient
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Code == http.StatusTooManyRequests:
			return retry.AsRateLimited(err)
		case httpErr.Code >= 400 && httpErr.Code < 500:
			return retry.AsPermanent(err)
		default:
			return err
		}
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case http.StatusTooManyRequests:
			return retry.AsRateLimited(err)
		case codeSendTransactionPreflightFailure, codeTransactionSignatureVerify, codeInvalidParams:
			return retry.AsPermanent(err)
		}
	}

	return err
}

// IsRejected проверяет, отклонил ли узел транзакцию (а не отказал сам).
func IsRejected(err error) bool {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	switch rpcErr.Code {
	case codeSendTransactionPreflightFailure, codeTransactionSignatureVerify, codeInvalidParams:
		return true
	default:
		return false
	}
}

// isNodeFailure — ошибка, характеризующая доступность узла.
func isNodeFailure(err error) bool {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == http.StatusTooManyRequests
	}
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code >= 500 || httpErr.Code == http.StatusTooManyRequests
	}
	return true
}

func isMissingAccount(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find account") || strings.Contains(msg, "invalid param: could not find")
}

// ParseAmount разбирает целое количество base units из строки RPC.
func ParseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("invalid token amount %q", s)
	}
	return v.Uint64(), nil
}
