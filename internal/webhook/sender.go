// Package webhook доставляет события пользователям по HTTP.
//
// Каждая доставка подписывается HMAC-SHA256 секретом webhook, хранится
// в webhook_deliveries до первого запроса и повторяется отдельными
// jobs webhook.deliver с экспоненциальной задержкой.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Заголовки запроса.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// DefaultTimeout — таймаут одного запроса.
const DefaultTimeout = 10 * time.Second

// Body — тело запроса.
type Body struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// Sign возвращает hex HMAC-SHA256 от body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify проверяет подпись в постоянном времени.
func Verify(secret string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Request — одна попытка отправки.
type Request struct {
	URL       string
	Secret    string
	Event     string
	Payload   json.RawMessage
	Timestamp time.Time
}

// Response — результат попытки.
type Response struct {
	StatusCode int
	Signature  string
	Duration   time.Duration
}

// Sender отправляет подписанные запросы.
type Sender struct {
	client *http.Client
}

// NewSender создаёт Sender с таймаутом на запрос.
func NewSender(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sender{client: &http.Client{Timeout: timeout}}
}

// Send выполняет POST. Ошибка возвращается только при сетевом сбое;
// HTTP-статус любого класса возвращается в Response.
func (s *Sender) Send(ctx context.Context, req Request) (Response, error) {
	ts := req.Timestamp.UTC().Format(time.RFC3339)

	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	body, err := json.Marshal(Body{Event: req.Event, Payload: payload, Timestamp: ts})
	if err != nil {
		return Response{}, fmt.Errorf("marshal body: %w", err)
	}

	sig := Sign(req.Secret, body)
	resp := Response{Signature: sig}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return resp, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "swarm-webhooks/1.0")
	httpReq.Header.Set(HeaderSignature, sig)
	httpReq.Header.Set(HeaderEvent, req.Event)
	httpReq.Header.Set(HeaderTimestamp, ts)

	start := time.Now()
	httpResp, err := s.client.Do(httpReq)
	resp.Duration = time.Since(start)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 64<<10))

	resp.StatusCode = httpResp.StatusCode
	return resp, nil
}
