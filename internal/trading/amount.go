package trading

import (
	"math/big"

	"github.com/shaiso/Swarm/internal/retry"
)

// PercentOf возвращает floor(balance * percent / 100) в базовых единицах.
func PercentOf(balance uint64, percent int) (uint64, error) {
	if percent < 1 || percent > 100 {
		return 0, retry.Businessf("%w: %d", ErrInvalidPercent, percent)
	}

	v := new(big.Int).SetUint64(balance)
	v.Mul(v, big.NewInt(int64(percent)))
	v.Quo(v, big.NewInt(100))
	return v.Uint64(), nil
}
