// Package retry классифицирует ошибки и считает задержки повторов.
//
// Классы ошибок:
//   - Transient, RateLimited — повторяются
//   - Configuration, Business, Permanent — не повторяются
//   - Ambiguous — исход расчёта неизвестен, повтор только после сверки
//
// Backoff: delay = min(base * 2^attemptsMade, max).
// Для jobs base = 1s, max = 60s; для 429 base = 5s, max = 5m;
// для webhook base = 60s, max = 1h.
package retry
