package retry

import (
	"context"
	"time"
)

// Options — параметры Do.
type Options struct {
	// Attempts — общее количество попыток (включая первую). Минимум 1.
	Attempts int

	// Policy — backoff между попытками. Нулевое значение — DefaultPolicy.
	Policy Policy

	// OnRetry вызывается перед ожиданием очередной попытки.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Do выполняет fn до Attempts раз.
//
// Повтор делается только для retryable ошибок (IsRetryable).
// Для 429 используется RateLimitPolicy, если Policy не задана явно.
// attempt передаётся в fn начиная с 1.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context, attempt int) error) error {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	policy := opts.Policy
	explicit := policy != (Policy{})
	if !explicit {
		policy = DefaultPolicy
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) || attempt == attempts {
			return lastErr
		}

		delay := policy.Delay(attempt - 1)
		if !explicit && KindOf(lastErr) == RateLimited {
			delay = RateLimitPolicy.Delay(attempt - 1)
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt, delay, lastErr)
		}

		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// Sleep ждёт d или отмены контекста.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
