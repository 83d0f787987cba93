package retry

import "time"

// Policy — параметры экспоненциального backoff.
//
// delay = min(Base * 2^attemptsMade, Max)
type Policy struct {
	Base time.Duration
	Max  time.Duration
}

// Политики по умолчанию.
var (
	// DefaultPolicy — retry jobs и сетевых вызовов.
	DefaultPolicy = Policy{Base: time.Second, Max: 60 * time.Second}

	// RateLimitPolicy — retry после 429.
	RateLimitPolicy = Policy{Base: 5 * time.Second, Max: 5 * time.Minute}

	// WebhookPolicy — повторная доставка webhook.
	WebhookPolicy = Policy{Base: time.Minute, Max: time.Hour}
)

// Delay возвращает задержку перед следующей попыткой.
// attemptsMade — количество уже сделанных попыток (0 для первой неудачи).
func (p Policy) Delay(attemptsMade int) time.Duration {
	if attemptsMade < 0 {
		attemptsMade = 0
	}

	delay := p.Base
	for i := 0; i < attemptsMade; i++ {
		delay *= 2
		if delay >= p.Max {
			return p.Max
		}
	}

	return min(delay, p.Max)
}

// Backoff возвращает задержку по DefaultPolicy.
func Backoff(attemptsMade int) time.Duration {
	return DefaultPolicy.Delay(attemptsMade)
}

// DelayFor выбирает политику по классу ошибки.
func DelayFor(err error, attemptsMade int) time.Duration {
	if KindOf(err) == RateLimited {
		return RateLimitPolicy.Delay(attemptsMade)
	}
	return DefaultPolicy.Delay(attemptsMade)
}
