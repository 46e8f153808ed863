package services

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"

	"sleepingpill/internal/domain"
)

// SessionHolder is the in-memory read model: the current snapshot of every live
// session, kept up to date by applying events in log order. It holds no state
// that cannot be rebuilt by replaying the log from empty.
//
// Snapshots are replaced, never modified, so readers always see either the
// state before or after an event.
type SessionHolder struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*domain.Session
	// order records creation order so listings are stable.
	order map[string]int64
	// retired holds ids that were deleted; they may not be created again.
	retired map[string]struct{}
	created int64
}

// NewSessionHolder returns an empty read model.
func NewSessionHolder(logger *slog.Logger) *SessionHolder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SessionHolder{
		logger:   logger,
		sessions: make(map[string]*domain.Session),
		order:    make(map[string]int64),
		retired:  make(map[string]struct{}),
	}
}

// EventAdded applies one event. A CREATE for an id that exists or existed fails
// with ErrDuplicateIdentity, an UPDATE for an unknown id with ErrUnknownAggregate.
// A DELETE for an unknown id is ignored.
func (h *SessionHolder) EventAdded(e *domain.Event) error {
	_, err := h.add(e)
	return err
}

// add is EventAdded returning the snapshot the event produced, nil after a DELETE.
func (h *SessionHolder) add(e *domain.Event) (*domain.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.apply(e)
}

// Replay applies events in order, stopping at the first one that cannot be applied.
func (h *SessionHolder) Replay(events []*domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range events {
		if _, err := h.apply(e); err != nil {
			return fmt.Errorf("replay event %s (seq %d): %w", e.ID, e.Sequence, err)
		}
	}
	return nil
}

func (h *SessionHolder) apply(e *domain.Event) (*domain.Session, error) {
	switch e.Kind {
	case domain.EventCreate:
		if _, ok := h.sessions[e.SessionID]; ok {
			return nil, fmt.Errorf("create %s: %w", e.SessionID, domain.ErrDuplicateIdentity)
		}
		if _, ok := h.retired[e.SessionID]; ok {
			return nil, fmt.Errorf("create deleted session %s: %w", e.SessionID, domain.ErrDuplicateIdentity)
		}
		s, err := domain.SessionFromCreate(e)
		if err != nil {
			return nil, err
		}
		h.sessions[s.ID] = s
		h.created++
		h.order[s.ID] = h.created
		return s, nil
	case domain.EventUpdate:
		current, ok := h.sessions[e.SessionID]
		if !ok {
			return nil, fmt.Errorf("update %s: %w", e.SessionID, domain.ErrUnknownAggregate)
		}
		next, err := current.Apply(e)
		if err != nil {
			return nil, err
		}
		h.sessions[next.ID] = next
		return next, nil
	case domain.EventDelete:
		if _, ok := h.sessions[e.SessionID]; !ok {
			h.logger.Debug("delete of unknown session ignored", "session_id", e.SessionID, "event_id", e.ID)
		}
		delete(h.sessions, e.SessionID)
		delete(h.order, e.SessionID)
		h.retired[e.SessionID] = struct{}{}
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown event kind %q", domain.ErrMalformedPayload, e.Kind)
	}
}

// SessionFromID returns the current snapshot. The result must not be modified.
func (h *SessionHolder) SessionFromID(id string) (*domain.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// IsRetired reports whether id belonged to a deleted session.
func (h *SessionHolder) IsRetired(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.retired[id]
	return ok
}

// AllSessions returns every live session in creation order.
func (h *SessionHolder) AllSessions() []*domain.Session {
	return h.filter(func(*domain.Session) bool { return true })
}

// SessionsByEmail returns the sessions submitted by, or currently listing as a
// speaker, the given address. Case is ignored.
func (h *SessionHolder) SessionsByEmail(email string) []*domain.Session {
	return h.filter(func(s *domain.Session) bool { return s.IsRelatedToEmail(email) })
}

// SessionsByConference returns every live session of one conference.
func (h *SessionHolder) SessionsByConference(conferenceID string) []*domain.Session {
	return h.filter(func(s *domain.Session) bool { return s.ConferenceID == conferenceID })
}

// PublicSessions returns the approved and historic sessions of a conference,
// or of all conferences when conferenceID is empty.
func (h *SessionHolder) PublicSessions(conferenceID string) []*domain.Session {
	return h.filter(func(s *domain.Session) bool {
		return s.IsPublic() && (conferenceID == "" || s.ConferenceID == conferenceID)
	})
}

// Conferences lists the conferences that have live sessions, sorted by id.
func (h *SessionHolder) Conferences() []domain.ConferenceSummary {
	counts := lo.CountValuesBy(h.AllSessions(), func(s *domain.Session) string { return s.ConferenceID })
	out := make([]domain.ConferenceSummary, 0, len(counts))
	for id, n := range counts {
		out = append(out, domain.ConferenceSummary{ID: id, SessionCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *SessionHolder) filter(keep func(*domain.Session) bool) []*domain.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := lo.Filter(lo.Values(h.sessions), func(s *domain.Session, _ int) bool { return keep(s) })
	sort.Slice(out, func(i, j int) bool { return h.order[out[i].ID] < h.order[out[j].ID] })
	return out
}
