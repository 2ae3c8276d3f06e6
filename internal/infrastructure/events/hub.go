// Package events fans core events out to connected shell subscribers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// Hub is an in-process broadcaster. Slow subscribers drop events rather than block publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]chan domain.Event
	buffer int
	now    func() time.Time
	logger *zap.Logger
}

// NewHub creates a hub whose subscriber channels hold buffer events
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]chan domain.Event),
		buffer: buffer,
		now:    time.Now,
		logger: logger.Named("events"),
	}
}

// Publish stamps and delivers an event to every subscriber
func (h *Hub) Publish(eventType string, payload interface{}) {
	ev := domain.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: h.now(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("subscriber full, event dropped",
				zap.String("subscriber", id),
				zap.String("type", eventType))
		}
	}
}

// Subscribe registers a new listener. The returned cancel func closes the channel.
func (h *Hub) Subscribe() (<-chan domain.Event, func()) {
	id := uuid.NewString()
	ch := make(chan domain.Event, h.buffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active listeners
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
