package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/event"
)

// EventStore implements event.Store in memory.
type EventStore struct {
	clk clock.Clock

	mu     sync.Mutex
	events []event.Event
}

// NewEventStore returns an empty in-memory event store.
func NewEventStore(clk clock.Clock) *EventStore {
	return &EventStore{clk: clk}
}

// Append persists the events, assigning ids and timestamps.
func (s *EventStore) Append(_ context.Context, events ...event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.clk.Now().UTC()
		}
		s.events = append(s.events, e)
	}
	return nil
}

// Load returns all events for an aggregate in append order.
func (s *EventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, e := range s.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

// LoadByType returns events filtered by type in append order.
func (s *EventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}
