package coordinator

import "errors"

// Ошибки координатора.
var (
	// ErrInvalidTransition — команда недопустима в текущем статусе кампании.
	ErrInvalidTransition = errors.New("invalid campaign transition")

	// ErrNoActiveWallets — у кампании нет активных кошельков.
	ErrNoActiveWallets = errors.New("campaign has no active wallets")
)
