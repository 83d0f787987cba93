// Package testutil — общие тестовые помощники Swarm.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

// FakeClock — детерминированное время для тестов.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewFakeClock создаёт FakeClock с заданным временем.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// Now возвращает текущее время часов.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance сдвигает часы на d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// TestContext возвращает контекст с таймаутом 5s, отменяемый по завершении теста.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
