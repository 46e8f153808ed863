package domain

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is where a talk is in the review process.
type SessionStatus string

const (
	StatusDraft     SessionStatus = "DRAFT"
	StatusSubmitted SessionStatus = "SUBMITTED"
	StatusApproved  SessionStatus = "APPROVED"
	StatusRejected  SessionStatus = "REJECTED"
	StatusHistoric  SessionStatus = "HISTORIC"
)

// IsValid reports whether s is one of the known statuses.
func (s SessionStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected, StatusHistoric:
		return true
	}
	return false
}

// ParseSessionStatus accepts any letter case.
func ParseSessionStatus(v string) (SessionStatus, error) {
	s := SessionStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: unknown session status %q", ErrMalformedPayload, v)
	}
	return s, nil
}

func (s *SessionStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseSessionStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Session is the aggregate root for one talk submission.
//
// A *Session held by the read model is a snapshot: it is never modified after
// it has been published. Apply returns a new value instead.
// swagger:model Session
type Session struct {
	ID           string        `json:"id"`
	ConferenceID string        `json:"conferenceId"`
	AddedByEmail string        `json:"postedByMail,omitempty"`
	Status       SessionStatus `json:"sessionStatus"`
	LastUpdated  string        `json:"lastUpdated"`
	Data         DataObject    `json:"data"`
	Speakers     []Speaker     `json:"speakers"`
	Comments     []Comment     `json:"comments"`
}

// NewSession returns an empty draft. addedByEmail may be empty when the submitter is unknown.
func NewSession(id, conferenceID, addedByEmail string) *Session {
	return &Session{
		ID:           id,
		ConferenceID: conferenceID,
		AddedByEmail: addedByEmail,
		Status:       StatusDraft,
		Data:         DataObject{},
	}
}

// Equal compares identities only.
func (s *Session) Equal(other *Session) bool {
	return s != nil && other != nil && s.ID == other.ID
}

// IsPublic reports whether the session may be shown to anyone.
func (s *Session) IsPublic() bool {
	return s.Status == StatusApproved || s.Status == StatusHistoric
}

// IsRelatedToEmail reports whether email belongs to the submitter or to one of
// the current speakers. Comparison ignores case.
func (s *Session) IsRelatedToEmail(email string) bool {
	if email == "" {
		return false
	}
	if strings.EqualFold(s.AddedByEmail, email) {
		return true
	}
	return slices.ContainsFunc(s.Speakers, func(sp Speaker) bool { return sp.HasEmail(email) })
}

// DataValue returns the named session data field.
func (s *Session) DataValue(name string) (DataField, bool) {
	return s.Data.Value(name)
}

// AsSingleSessionJSON is the full projection, for the program committee and the
// people the session belongs to.
func (s *Session) AsSingleSessionJSON() SessionUpdate {
	out := SessionUpdate{
		ID:            s.ID,
		ConferenceID:  s.ConferenceID,
		SessionStatus: s.Status,
		LastUpdated:   s.LastUpdated,
		PostedByMail:  s.AddedByEmail,
		Speakers:      make([]SpeakerEntry, 0, len(s.Speakers)),
		Comments:      make([]CommentEntry, 0, len(s.Comments)),
		Data:          s.Data.Clone(),
	}
	for _, sp := range s.Speakers {
		out.Speakers = append(out.Speakers, sp.entry())
	}
	for _, c := range s.Comments {
		out.Comments = append(out.Comments, c.entry())
	}
	return out
}

// AsPublicSessionJSON is the projection served without authentication. It fails
// with ErrNotPublic unless the session is approved or historic, and never
// contains comments, the submitter address or private fields.
func (s *Session) AsPublicSessionJSON() (SessionUpdate, error) {
	if !s.IsPublic() {
		return SessionUpdate{}, fmt.Errorf("session %s: %w", s.ID, ErrNotPublic)
	}
	out := SessionUpdate{
		ID:            s.ID,
		ConferenceID:  s.ConferenceID,
		SessionStatus: s.Status,
		Speakers:      make([]SpeakerEntry, 0, len(s.Speakers)),
		Data:          s.Data.PublicView(),
	}
	for _, sp := range s.Speakers {
		out.Speakers = append(out.Speakers, sp.publicEntry())
	}
	return out, nil
}

// idNamespace seeds the ids derived while folding events, so that replaying the
// same log always yields the same speaker and comment ids.
var idNamespace = uuid.MustParse("6f1c2b7e-8a54-4c1e-9d0b-3f2a7c5e9b11")

func derivedID(seed, kind string, n int) string {
	return uuid.NewSHA1(idNamespace, fmt.Appendf(nil, "%s/%s/%d", seed, kind, n)).String()
}

// LastUpdatedToken formats t as a last-updated token. Tokens sort in time order.
func LastUpdatedToken(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// SessionFromCreate builds the initial state described by a CREATE event.
func SessionFromCreate(e *Event) (*Session, error) {
	if e.Kind != EventCreate {
		return nil, fmt.Errorf("%w: expected %s event, got %s", ErrMalformedPayload, EventCreate, e.Kind)
	}
	if e.SessionID == "" || e.ConferenceID == "" {
		return nil, fmt.Errorf("%w: create event without session or conference id", ErrMalformedPayload)
	}
	var u SessionUpdate
	if e.Payload != nil {
		u = *e.Payload
	}
	return NewSession(e.SessionID, e.ConferenceID, u.PostedByMail).Apply(e)
}

// Apply returns the state after a CREATE or UPDATE event. The receiver is left
// untouched. New speaker and comment ids are derived from the event id, so a
// replay of the same events reproduces them.
func (s *Session) Apply(e *Event) (*Session, error) {
	if e.Kind != EventCreate && e.Kind != EventUpdate {
		return nil, fmt.Errorf("%w: cannot apply %s event", ErrMalformedPayload, e.Kind)
	}
	if e.SessionID != s.ID {
		return nil, fmt.Errorf("%w: event for %s applied to %s", ErrUnknownAggregate, e.SessionID, s.ID)
	}
	var u SessionUpdate
	if e.Payload != nil {
		u = *e.Payload
	}
	return s.addData(u, e.ID, e.CreatedAt), nil
}

// addData merges the data fields, reconciles speakers when the update lists
// them, appends comments and moves the last-updated token.
func (s *Session) addData(u SessionUpdate, seed string, at time.Time) *Session {
	out := *s
	out.Data = s.Data.Merge(u.Data)
	if u.Speakers != nil {
		out.Speakers = reconcileSpeakers(s.Speakers, u.Speakers, func(n int) string {
			return derivedID(seed, "speaker", n)
		})
	}
	if len(u.Comments) > 0 {
		out.Comments = slices.Clone(s.Comments)
		for i, c := range u.Comments {
			id := c.ID
			if id == "" {
				id = derivedID(seed, "comment", i)
			}
			out.Comments = append(out.Comments, commentFromEntry(id, c, at))
		}
	}
	if u.SessionStatus != "" {
		out.Status = u.SessionStatus
	}
	if u.LastUpdated != "" {
		out.LastUpdated = u.LastUpdated
	} else {
		out.LastUpdated = LastUpdatedToken(at)
	}
	return &out
}

// reconcileSpeakers computes the next speaker list from the current one and the
// full next-state array of an update:
//   - a current speaker whose id is listed is kept, in its original position,
//     with the entry merged in;
//   - a current speaker whose id is not listed is dropped;
//   - every entry that matched no current speaker becomes a new speaker with a
//     fresh id, appended in the order of the update.
func reconcileSpeakers(current []Speaker, update []SpeakerEntry, newID func(n int) string) []Speaker {
	next := make([]Speaker, 0, len(update))
	kept := make(map[string]struct{}, len(current))
	for _, sp := range current {
		i := slices.IndexFunc(update, func(e SpeakerEntry) bool { return e.ID != "" && e.ID == sp.ID })
		if i < 0 {
			continue
		}
		kept[sp.ID] = struct{}{}
		next = append(next, sp.apply(update[i]))
	}
	created := 0
	for _, e := range update {
		if _, ok := kept[e.ID]; ok && e.ID != "" {
			continue
		}
		next = append(next, speakerFromEntry(newID(created), e))
		created++
	}
	return next
}

// SessionService is the command and query surface offered to the delivery layer.
type SessionService interface {
	// Load replays the event log into the read model. Called once at startup.
	Load(ctx context.Context) error
	CreateSession(ctx context.Context, cmd *CreateNewSession) (*Event, error)
	UpdateSession(ctx context.Context, cmd *UpdateSession) (*Event, error)
	DeleteSession(ctx context.Context, cmd *DeleteSession) (*Event, error)

	// CreateSessionSnapshot and UpdateSessionSnapshot also return the state the
	// stored event produced. No read check is made on it, so a caller who edits
	// themself off a session still gets the outcome of their own command.
	CreateSessionSnapshot(ctx context.Context, cmd *CreateNewSession) (*Event, *Session, error)
	UpdateSessionSnapshot(ctx context.Context, cmd *UpdateSession) (*Event, *Session, error)

	// GetSession returns the session if the principal may see all of it.
	GetSession(ctx context.Context, sessionID string, p Principal) (*Session, error)
	// GetPublicSession returns the public projection, ErrNotPublic if there is none.
	GetPublicSession(ctx context.Context, sessionID string) (SessionUpdate, error)
	ListSessions(ctx context.Context, conferenceID string) ([]*Session, error)
	ListPublicSessions(ctx context.Context, conferenceID string) ([]SessionUpdate, error)
	ListSessionsByEmail(ctx context.Context, email string) ([]*Session, error)
	ListConferences(ctx context.Context) ([]ConferenceSummary, error)
	History(ctx context.Context, sessionID string) ([]*Event, error)
}

// ConferenceSummary is one conference known from its live sessions.
// swagger:model ConferenceSummary
type ConferenceSummary struct {
	ID           string `json:"id"`
	SessionCount int    `json:"sessionCount"`
}
