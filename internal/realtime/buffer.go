package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/domain"
)

// Параметры буфера по умолчанию.
const (
	DefaultCapacity = 100
	DefaultTTL      = 5 * time.Minute
)

type bufferedEvent struct {
	event domain.Event
	at    time.Time
}

// EventBuffer — кольцевой буфер последних событий по кампаниям.
type EventBuffer struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	events   map[uuid.UUID][]bufferedEvent
}

// NewEventBuffer создаёт буфер. Нулевые значения заменяются значениями по умолчанию.
func NewEventBuffer(capacity int, ttl time.Duration) *EventBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &EventBuffer{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		events:   make(map[uuid.UUID][]bufferedEvent),
	}
}

// WithClock подменяет часы (для тестов).
func (b *EventBuffer) WithClock(now func() time.Time) *EventBuffer {
	b.now = now
	return b
}

// Add сохраняет событие. При переполнении вытесняется самое старое.
func (b *EventBuffer) Add(e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := append(b.events[e.CampaignID], bufferedEvent{event: e, at: b.now()})
	if over := len(list) - b.capacity; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	b.events[e.CampaignID] = list
}

// Since возвращает непросроченные события кампании с Timestamp после since,
// от старых к новым, не больше limit (limit <= 0 — без ограничения).
func (b *EventBuffer) Since(campaignID uuid.UUID, since time.Time, limit int) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.ttl)
	var out []domain.Event
	for _, be := range b.events[campaignID] {
		if be.at.Before(cutoff) || !be.event.Timestamp.After(since) {
			continue
		}
		out = append(out, be.event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Sweep удаляет просроченные события. Возвращает количество удалённых.
func (b *EventBuffer) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.ttl)
	removed := 0
	for id, list := range b.events {
		i := 0
		for i < len(list) && list[i].at.Before(cutoff) {
			i++
		}
		removed += i
		if i == len(list) {
			delete(b.events, id)
			continue
		}
		if i > 0 {
			b.events[id] = append(list[:0:0], list[i:]...)
		}
	}
	return removed
}

// Len возвращает количество событий кампании в буфере.
func (b *EventBuffer) Len(campaignID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events[campaignID])
}
