package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"sleepingpill/internal/domain"
)

type sessionService struct {
	logger         *slog.Logger
	events         domain.EventRepository
	holder         *SessionHolder
	emailService   domain.EmailService
	strict         bool
	contextTimeout time.Duration

	// writeMu makes append-then-apply a single step, so concurrent commands
	// for the same session are applied in the order they were validated.
	writeMu sync.Mutex
}

// SessionServiceOptions configures NewSessionService.
type SessionServiceOptions struct {
	// StrictConcurrency rejects updates based on a stale last-updated token
	// with ErrStaleUpdate. Otherwise the last writer wins and a warning is logged.
	StrictConcurrency bool
	Timeout           time.Duration
}

// NewSessionService returns the command and query surface over the event log
// and the read model. emailService may be nil.
func NewSessionService(logger *slog.Logger,
	events domain.EventRepository,
	holder *SessionHolder,
	emailService domain.EmailService,
	opts SessionServiceOptions,
) domain.SessionService {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &sessionService{
		logger:         logger,
		events:         events,
		holder:         holder,
		emailService:   emailService,
		strict:         opts.StrictConcurrency,
		contextTimeout: opts.Timeout,
	}
}

func (s *sessionService) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	events, err := s.events.List(ctx)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if err := s.holder.Replay(events); err != nil {
		return err
	}
	s.logger.Info("event log replayed", "events", len(events), "sessions", len(s.holder.AllSessions()))
	return nil
}

func (s *sessionService) CreateSession(ctx context.Context, cmd *domain.CreateNewSession) (*domain.Event, error) {
	ev, _, err := s.CreateSessionSnapshot(ctx, cmd)
	return ev, err
}

func (s *sessionService) CreateSessionSnapshot(ctx context.Context, cmd *domain.CreateNewSession) (*domain.Event, *domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	ev, err := cmd.CreateEvent()
	if err != nil {
		return nil, nil, err
	}
	if _, err := domain.SessionFromCreate(ev); err != nil {
		return nil, nil, err
	}

	s.writeMu.Lock()
	if _, ok := s.holder.SessionFromID(ev.SessionID); ok || s.holder.IsRetired(ev.SessionID) {
		s.writeMu.Unlock()
		return nil, nil, fmt.Errorf("create %s: %w", ev.SessionID, domain.ErrDuplicateIdentity)
	}
	session, err := s.commit(ctx, ev)
	s.writeMu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "session created", "session_id", ev.SessionID, "conference_id", ev.ConferenceID)
	if ev.Payload.PostedByMail != "" {
		s.notify(ctx, func(es domain.EmailService) error {
			return es.SendSubmissionReceived(ctx, &domain.SubmissionReceivedEmailData{
				Email:        ev.Payload.PostedByMail,
				SessionID:    ev.SessionID,
				ConferenceID: ev.ConferenceID,
				Title:        titleOf(ev.Payload.Data),
			})
		})
	}
	return ev, session, nil
}

func (s *sessionService) UpdateSession(ctx context.Context, cmd *domain.UpdateSession) (*domain.Event, error) {
	ev, _, err := s.UpdateSessionSnapshot(ctx, cmd)
	return ev, err
}

func (s *sessionService) UpdateSessionSnapshot(ctx context.Context, cmd *domain.UpdateSession) (*domain.Event, *domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	s.writeMu.Lock()
	current, ok := s.holder.SessionFromID(cmd.SessionID)
	if !ok {
		s.writeMu.Unlock()
		return nil, nil, fmt.Errorf("update %s: %w", cmd.SessionID, domain.ErrUnknownAggregate)
	}
	if cmd.LastUpdated != "" && cmd.LastUpdated != current.LastUpdated {
		if s.strict {
			s.writeMu.Unlock()
			return nil, nil, fmt.Errorf("update %s based on %s, current is %s: %w",
				cmd.SessionID, cmd.LastUpdated, current.LastUpdated, domain.ErrStaleUpdate)
		}
		s.logger.WarnContext(ctx, "update based on stale snapshot, last writer wins",
			"session_id", cmd.SessionID, "seen", cmd.LastUpdated, "current", current.LastUpdated)
	}
	var next *domain.Session
	ev, err := cmd.CreateEvent(current)
	if err == nil {
		_, err = current.Apply(ev)
	}
	if err == nil {
		next, err = s.commit(ctx, ev)
	}
	s.writeMu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	if st := cmd.Status(); st != current.Status && (st == domain.StatusApproved || st == domain.StatusRejected) {
		s.notifyStatusChanged(ctx, next, st)
	}
	return ev, next, nil
}

func (s *sessionService) DeleteSession(ctx context.Context, cmd *domain.DeleteSession) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	ev, err := cmd.CreateEvent()
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	current, ok := s.holder.SessionFromID(cmd.SessionID)
	if !ok {
		return nil, fmt.Errorf("delete %s: %w", cmd.SessionID, domain.ErrUnknownAggregate)
	}
	if current.ConferenceID != cmd.ConferenceID {
		return nil, fmt.Errorf("%w: session %s belongs to conference %s", domain.ErrMalformedPayload, cmd.SessionID, current.ConferenceID)
	}
	if _, err := s.commit(ctx, ev); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "session deleted", "session_id", ev.SessionID)
	return ev, nil
}

// commit appends ev to the log and applies it to the read model, returning the
// resulting snapshot (nil for a DELETE). Callers hold writeMu.
func (s *sessionService) commit(ctx context.Context, ev *domain.Event) (*domain.Session, error) {
	if err := s.events.Append(ctx, ev); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	session, err := s.holder.add(ev)
	if err != nil {
		// The log now holds an event the read model rejected; replay will fail the same way.
		s.logger.ErrorContext(ctx, "stored event could not be applied",
			"event_id", ev.ID, "session_id", ev.SessionID, "err", err)
		return nil, fmt.Errorf("apply event %s: %w", ev.ID, err)
	}
	return session, nil
}

func (s *sessionService) GetSession(ctx context.Context, sessionID string, p domain.Principal) (*domain.Session, error) {
	session, ok := s.holder.SessionFromID(sessionID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !p.CanRead(session) {
		return nil, domain.ErrForbidden
	}
	return session, nil
}

func (s *sessionService) GetPublicSession(ctx context.Context, sessionID string) (domain.SessionUpdate, error) {
	session, ok := s.holder.SessionFromID(sessionID)
	if !ok {
		return domain.SessionUpdate{}, domain.ErrNotFound
	}
	return session.AsPublicSessionJSON()
}

func (s *sessionService) ListSessions(ctx context.Context, conferenceID string) ([]*domain.Session, error) {
	if conferenceID == "" {
		return s.holder.AllSessions(), nil
	}
	return s.holder.SessionsByConference(conferenceID), nil
}

func (s *sessionService) ListPublicSessions(ctx context.Context, conferenceID string) ([]domain.SessionUpdate, error) {
	sessions := s.holder.PublicSessions(conferenceID)
	out := make([]domain.SessionUpdate, 0, len(sessions))
	for _, session := range sessions {
		pub, err := session.AsPublicSessionJSON()
		if err != nil {
			return nil, err
		}
		out = append(out, pub)
	}
	return out, nil
}

func (s *sessionService) ListSessionsByEmail(ctx context.Context, email string) ([]*domain.Session, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrMalformedPayload)
	}
	return s.holder.SessionsByEmail(email), nil
}

func (s *sessionService) ListConferences(ctx context.Context) ([]domain.ConferenceSummary, error) {
	return s.holder.Conferences(), nil
}

func (s *sessionService) History(ctx context.Context, sessionID string) ([]*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	events, err := s.events.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		return nil, domain.ErrNotFound
	}
	return events, nil
}

func (s *sessionService) notifyStatusChanged(ctx context.Context, session *domain.Session, status domain.SessionStatus) {
	recipients := lo.Uniq(lo.FilterMap(append([]string{session.AddedByEmail},
		lo.Map(session.Speakers, func(sp domain.Speaker, _ int) string { return sp.Email })...),
		func(email string, _ int) (string, bool) {
			email = domain.NormalizeEmail(email)
			return email, email != ""
		}))
	for _, to := range recipients {
		s.notify(ctx, func(es domain.EmailService) error {
			return es.SendStatusChanged(ctx, &domain.StatusChangedEmailData{
				Email:        to,
				SessionID:    session.ID,
				ConferenceID: session.ConferenceID,
				Title:        titleOf(session.Data),
				Status:       status,
			})
		})
	}
}

// notify sends mail on a best-effort basis: the event is already stored, so a
// mail failure is logged and never fails the command.
func (s *sessionService) notify(ctx context.Context, send func(domain.EmailService) error) {
	if s.emailService == nil {
		return
	}
	if err := send(s.emailService); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "notification failed", "err", err)
	}
}

// titleOf returns the "title" data field when it holds a string.
func titleOf(data domain.DataObject) string {
	f, ok := data.Value("title")
	if !ok {
		return ""
	}
	title, _ := f.Value.(string)
	return title
}
