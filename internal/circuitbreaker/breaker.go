// Package circuitbreaker — circuit breaker по ключу (URL webhook, RPC endpoint, relay).
//
// После threshold подряд неудачных вызовов ключ переходит в open и
// отклоняет вызовы до истечения cooldown. Затем пропускается ровно один
// пробный вызов (half-open): успех закрывает цепь, ошибка открывает снова.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen — вызов отклонён открытой цепью.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State — состояние цепи для одного ключа.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type keyState struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker хранит состояние цепи для каждого ключа.
type Breaker struct {
	mu        sync.Mutex
	keys      map[string]*keyState
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// New создаёт Breaker. threshold <= 0 трактуется как 1.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{
		keys:      make(map[string]*keyState),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock подменяет источник времени.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Allow возвращает ErrCircuitOpen, если вызов для key сейчас запрещён.
func (b *Breaker) Allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.keys[key]
	if !ok {
		return nil
	}

	switch s.state {
	case StateOpen:
		if b.now().Sub(s.openedAt) >= b.cooldown {
			s.state = StateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		// пробный вызов уже выполняется
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess закрывает цепь для key.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.keys[key]; ok {
		s.state = StateClosed
		s.failures = 0
	}
}

// RecordFailure учитывает неудачный вызов.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.keys[key]
	if !ok {
		s = &keyState{}
		b.keys[key] = s
	}

	s.failures++
	if s.state == StateHalfOpen || s.failures >= b.threshold {
		s.state = StateOpen
		s.openedAt = b.now()
	}
}

// State возвращает текущее состояние цепи для key.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.keys[key]; ok {
		return s.state
	}
	return StateClosed
}

// Do выполняет fn под защитой цепи key.
//
// Отмена ctx не считается отказом ключа.
func (b *Breaker) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := b.Allow(key); err != nil {
		return err
	}

	err := fn(ctx)
	switch {
	case err == nil:
		b.RecordSuccess(key)
	case ctx.Err() != nil:
		b.release(key)
	default:
		b.RecordFailure(key)
	}
	return err
}

// release возвращает half-open ключ в open без сдвига openedAt,
// чтобы следующий вызов снова мог стать пробным.
func (b *Breaker) release(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.keys[key]; ok && s.state == StateHalfOpen {
		s.state = StateOpen
	}
}
