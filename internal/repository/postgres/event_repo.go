package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"sleepingpill/internal/domain"
)

// Schema creates the event log table. seq gives the global append order.
const Schema = `
	CREATE TABLE IF NOT EXISTS session_events (
		seq           BIGSERIAL PRIMARY KEY,
		id            UUID        NOT NULL UNIQUE,
		session_id    TEXT        NOT NULL,
		conference_id TEXT        NOT NULL,
		kind          TEXT        NOT NULL,
		payload       JSONB,
		created_at    TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS session_events_session_id_idx ON session_events (session_id, seq);
`

type EventRepository struct {
	DB *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{
		DB: db,
	}
}

// EnsureSchema creates the event log table when it does not exist.
func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, Schema)
	return err
}

func (r *EventRepository) Append(ctx context.Context, e *domain.Event) error {
	// a DELETE stores NULL, not an empty document
	var payload any
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		payload = b
	}
	query := `
		INSERT INTO session_events (id, session_id, conference_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`
	err := r.DB.QueryRowContext(ctx, query, e.ID, e.SessionID, e.ConferenceID, string(e.Kind), payload, e.CreatedAt).Scan(&e.Sequence)
	if err != nil {
		var perr *pq.Error
		if errors.As(err, &perr) && perr.Code == "23505" {
			return fmt.Errorf("event %s: %w", e.ID, domain.ErrDuplicateIdentity)
		}
		return err
	}
	return nil
}

func (r *EventRepository) List(ctx context.Context) ([]*domain.Event, error) {
	query := `
		SELECT seq, id, session_id, conference_id, kind, payload, created_at
		FROM session_events
		ORDER BY seq
	`
	return r.query(ctx, query)
}

func (r *EventRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.Event, error) {
	query := `
		SELECT seq, id, session_id, conference_id, kind, payload, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY seq
	`
	return r.query(ctx, query, sessionID)
}

func (r *EventRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]*domain.Event, 0)
	for rows.Next() {
		e := &domain.Event{}
		var kind string
		var payload []byte
		if err := rows.Scan(&e.Sequence, &e.ID, &e.SessionID, &e.ConferenceID, &kind, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = domain.EventKind(kind)
		if !e.Kind.IsValid() {
			return nil, fmt.Errorf("event %s: %w: unknown kind %q", e.ID, domain.ErrMalformedPayload, kind)
		}
		if len(payload) > 0 {
			e.Payload = &domain.SessionUpdate{}
			if err := json.Unmarshal(payload, e.Payload); err != nil {
				return nil, fmt.Errorf("event %s: %w", e.ID, err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
