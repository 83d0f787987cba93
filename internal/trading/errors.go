package trading

import "errors"

// Ошибки торговли.
var (
	ErrNoBalance      = errors.New("no balance")
	ErrInvalidPercent = errors.New("sell percent must be in 1..100")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrUnknownRouter  = errors.New("unknown router mode")
	ErrUnsettled      = errors.New("settlement unknown after verification")
)
