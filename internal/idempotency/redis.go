package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "swarm:idem:"
	pendingMarker = "pending"
	donePrefix    = "done:"
)

// releaseScript удаляет ключ, только если он всё ещё в состоянии pending.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore — Store поверх Redis SET NX.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore создаёт RedisStore.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Claim пытается захватить ключ через SET NX.
func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (Claim, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, pendingMarker, ttl).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return Claim{State: StateClaimed}, nil
	}

	claim, err := s.Lookup(ctx, key)
	if err != nil {
		return Claim{}, err
	}
	// Ключ мог истечь между SETNX и GET.
	if claim.State == StateNone {
		return s.Claim(ctx, key, ttl)
	}
	return claim, nil
}

// Complete сохраняет результат.
func (s *RedisStore) Complete(ctx context.Context, key string, result json.RawMessage, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+key, donePrefix+string(result), ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release снимает незавершённый захват.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, s.client, []string{keyPrefix + key}, pendingMarker).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Lookup возвращает состояние ключа.
func (s *RedisStore) Lookup(ctx context.Context, key string) (Claim, error) {
	val, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return Claim{State: StateNone}, nil
	}
	if err != nil {
		return Claim{}, fmt.Errorf("lookup idempotency key: %w", err)
	}

	if strings.HasPrefix(val, donePrefix) {
		return Claim{
			State:  StateCompleted,
			Result: json.RawMessage(strings.TrimPrefix(val, donePrefix)),
		}, nil
	}
	return Claim{State: StateInFlight}, nil
}
