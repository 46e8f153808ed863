package memory

import (
	"context"
	"fmt"
	"sync"

	"sleepingpill/internal/domain"
)

// EventRepository is a process-local event log. It is used when no database is
// configured and in tests; everything is lost on restart.
type EventRepository struct {
	mu     sync.RWMutex
	events []*domain.Event
	ids    map[string]struct{}
}

func NewEventRepository() *EventRepository {
	return &EventRepository{ids: make(map[string]struct{})}
}

func (r *EventRepository) Append(ctx context.Context, e *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[e.ID]; ok {
		return fmt.Errorf("event %s: %w", e.ID, domain.ErrDuplicateIdentity)
	}
	e.Sequence = int64(len(r.events)) + 1
	stored := *e
	r.events = append(r.events, &stored)
	r.ids[e.ID] = struct{}{}
	return nil
}

func (r *EventRepository) List(ctx context.Context) ([]*domain.Event, error) {
	return r.filter(func(*domain.Event) bool { return true }), nil
}

func (r *EventRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.Event, error) {
	return r.filter(func(e *domain.Event) bool { return e.SessionID == sessionID }), nil
}

func (r *EventRepository) filter(keep func(*domain.Event) bool) []*domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Event, 0, len(r.events))
	for _, e := range r.events {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}
