package retry

import (
	"errors"
	"fmt"
	"strings"
)

// Kind — класс ошибки, определяющий поведение retry.
type Kind int

const (
	// Transient — временный сбой (сеть, 5xx, таймаут RPC). Повторяется с backoff.
	Transient Kind = iota

	// RateLimited — внешний сервис ответил 429. Повторяется с увеличенным backoff.
	RateLimited

	// Configuration — ошибка конфигурации. Не повторяется.
	Configuration

	// Business — бизнес-отказ (нет баланса, невалидные параметры). Не повторяется.
	Business

	// Ambiguous — исход расчёта неизвестен (таймаут подтверждения, bundle без ответа).
	// Считается неудачей; перед повтором требуется сверка.
	Ambiguous

	// Permanent — прочие неповторяемые ошибки.
	Permanent
)

// String возвращает имя класса.
func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case RateLimited:
		return "rate_limited"
	case Configuration:
		return "configuration"
	case Business:
		return "business"
	case Ambiguous:
		return "ambiguous"
	case Permanent:
		return "permanent"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error — ошибка с классом.
type Error struct {
	Kind Kind
	Err  error
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

// Unwrap возвращает базовую ошибку.
func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Configurationf создаёт ошибку конфигурации.
func Configurationf(format string, args ...any) error {
	return wrap(Configuration, fmt.Errorf(format, args...))
}

// Businessf создаёт бизнес-ошибку.
func Businessf(format string, args ...any) error {
	return wrap(Business, fmt.Errorf(format, args...))
}

// AsPermanent помечает ошибку как неповторяемую.
func AsPermanent(err error) error { return wrap(Permanent, err) }

// AsAmbiguous помечает ошибку как неоднозначный исход расчёта.
func AsAmbiguous(err error) error { return wrap(Ambiguous, err) }

// AsRateLimited помечает ошибку как 429.
func AsRateLimited(err error) error { return wrap(RateLimited, err) }

// AsTransient явно помечает ошибку как временную.
func AsTransient(err error) error { return wrap(Transient, err) }

// KindOf возвращает класс ошибки. Неклассифицированные ошибки считаются Transient,
// кроме ответов 429, которые распознаются по тексту.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if looksRateLimited(err) {
		return RateLimited
	}
	return Transient
}

// IsRetryable проверяет, можно ли повторить операцию после ошибки.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case Transient, RateLimited:
		return true
	default:
		return false
	}
}

func looksRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}
