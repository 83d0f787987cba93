package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memEntry struct {
	done      bool
	result    json.RawMessage
	expiresAt time.Time
}

// MemoryStore — Store в памяти процесса.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

// NewMemoryStore создаёт MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
}

// Claim пытается захватить ключ.
func (s *MemoryStore) Claim(ctx context.Context, key string, ttl time.Duration) (Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(key); e != nil {
		if e.done {
			return Claim{State: StateCompleted, Result: e.result}, nil
		}
		return Claim{State: StateInFlight}, nil
	}

	s.entries[key] = &memEntry{expiresAt: s.now().Add(ttl)}
	return Claim{State: StateClaimed}, nil
}

// Complete помечает ключ выполненным.
func (s *MemoryStore) Complete(ctx context.Context, key string, result json.RawMessage, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memEntry{done: true, result: result, expiresAt: s.now().Add(ttl)}
	return nil
}

// Release снимает незавершённый захват.
func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && !e.done {
		delete(s.entries, key)
	}
	return nil
}

// Lookup возвращает состояние ключа.
func (s *MemoryStore) Lookup(ctx context.Context, key string) (Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	switch {
	case e == nil:
		return Claim{State: StateNone}, nil
	case e.done:
		return Claim{State: StateCompleted, Result: e.result}, nil
	default:
		return Claim{State: StateInFlight}, nil
	}
}

// live возвращает неистёкшую запись. Вызывается под mu.
func (s *MemoryStore) live(key string) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(s.now()) {
		delete(s.entries, key)
		return nil
	}
	return e
}
