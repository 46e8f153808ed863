package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SpeakerData is caller input describing one speaker. Leave ID empty for a new speaker.
type SpeakerData struct {
	ID    string
	Name  *string
	Email *string
	Data  DataObject
}

// SetName sets the name and returns the receiver for chaining.
func (d *SpeakerData) SetName(name string) *SpeakerData {
	d.Name = &name
	return d
}

// SetEmail sets the email and returns the receiver for chaining.
func (d *SpeakerData) SetEmail(email string) *SpeakerData {
	d.Email = &email
	return d
}

// AddData sets one data field and returns the receiver for chaining.
func (d *SpeakerData) AddData(name string, f DataField) *SpeakerData {
	if d.Data == nil {
		d.Data = DataObject{}
	}
	d.Data[name] = f
	return d
}

func (d *SpeakerData) entry() (SpeakerEntry, error) {
	for name := range d.Data {
		if IsReservedSpeakerField(name) {
			return SpeakerEntry{}, fmt.Errorf("%w: speaker data field %q is reserved", ErrMalformedPayload, name)
		}
	}
	data, err := d.Data.Normalized()
	if err != nil {
		return SpeakerEntry{}, err
	}
	e := SpeakerEntry{ID: d.ID, Data: data}
	if d.Name != nil {
		name := *d.Name
		e.Name = &name
	}
	if d.Email != nil {
		email := strings.TrimSpace(*d.Email)
		e.Email = &email
	}
	return e, nil
}

// NewComment is caller input for a comment to append.
type NewComment struct {
	AuthorEmail string
	AuthorName  string
	Text        string
}

func checkDataNames(data DataObject) error {
	for name := range data {
		if IsReservedSessionField(name) {
			return fmt.Errorf("%w: data field %q is reserved", ErrMalformedPayload, name)
		}
	}
	return nil
}

func newEvent(kind EventKind, sessionID, conferenceID string, payload *SessionUpdate, now func() time.Time) *Event {
	if now == nil {
		now = time.Now
	}
	at := now().UTC()
	if payload != nil {
		payload.LastUpdated = LastUpdatedToken(at)
	}
	return &Event{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		ConferenceID: conferenceID,
		Kind:         kind,
		Payload:      payload,
		CreatedAt:    at,
	}
}

// CreateNewSession submits a new talk. The session id is fixed when the command
// is built so callers can refer to it before the event is stored.
type CreateNewSession struct {
	ConferenceID string
	PostedByMail string
	Status       SessionStatus
	Speakers     []*SpeakerData
	Data         DataObject

	sessionID string
	now       func() time.Time
}

// NewCreateNewSession returns a command with a fresh session id.
func NewCreateNewSession(conferenceID string) *CreateNewSession {
	return &CreateNewSession{
		ConferenceID: conferenceID,
		Data:         DataObject{},
		sessionID:    uuid.NewString(),
		now:          time.Now,
	}
}

// SessionID is the id the created session will have.
func (c *CreateNewSession) SessionID() string {
	return c.sessionID
}

// WithClock replaces the clock used to stamp the event.
func (c *CreateNewSession) WithClock(now func() time.Time) *CreateNewSession {
	c.now = now
	return c
}

func (c *CreateNewSession) AddSpeaker(d *SpeakerData) *CreateNewSession {
	c.Speakers = append(c.Speakers, d)
	return c
}

func (c *CreateNewSession) AddData(name string, f DataField) *CreateNewSession {
	if c.Data == nil {
		c.Data = DataObject{}
	}
	c.Data[name] = f
	return c
}

// CreateEvent validates the command and returns the CREATE event. The payload
// holds every initial speaker and data field.
func (c *CreateNewSession) CreateEvent() (*Event, error) {
	if strings.TrimSpace(c.ConferenceID) == "" {
		return nil, fmt.Errorf("%w: conference id is required", ErrMalformedPayload)
	}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	if err := checkDataNames(c.Data); err != nil {
		return nil, err
	}
	data, err := c.Data.Normalized()
	if err != nil {
		return nil, err
	}
	status := c.Status
	if status == "" {
		status = StatusDraft
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown session status %q", ErrMalformedPayload, status)
	}
	payload := &SessionUpdate{
		ConferenceID:  c.ConferenceID,
		SessionStatus: status,
		PostedByMail:  strings.TrimSpace(c.PostedByMail),
		Speakers:      make([]SpeakerEntry, 0, len(c.Speakers)),
		Data:          data,
	}
	for _, sd := range c.Speakers {
		e, err := sd.entry()
		if err != nil {
			return nil, err
		}
		// every speaker of a new session is new
		e.ID = ""
		payload.Speakers = append(payload.Speakers, e)
	}
	return newEvent(EventCreate, c.sessionID, c.ConferenceID, payload, c.now), nil
}

// UpdateSession changes an existing session. Only what the caller sets ends up
// in the event: untouched fields, speakers and comments are left out.
//
// Speakers follow next-state semantics. Once any speaker is added to the
// command, the event's speaker array replaces the session's speaker list, so
// every speaker that should stay must be re-listed by id (with no other fields
// if nothing about them changes). Use ClearSpeakers to remove them all.
type UpdateSession struct {
	SessionID    string
	ConferenceID string
	// LastUpdated is the token of the snapshot the caller based the change on.
	LastUpdated string

	speakers      []*SpeakerData
	speakersTouch bool
	comments      []NewComment
	data          DataObject
	status        SessionStatus
	now           func() time.Time
}

func NewUpdateSession(sessionID, conferenceID string) *UpdateSession {
	return &UpdateSession{SessionID: sessionID, ConferenceID: conferenceID, now: time.Now}
}

func (c *UpdateSession) WithClock(now func() time.Time) *UpdateSession {
	c.now = now
	return c
}

func (c *UpdateSession) SetLastUpdated(token string) *UpdateSession {
	c.LastUpdated = token
	return c
}

func (c *UpdateSession) AddSpeakerData(d *SpeakerData) *UpdateSession {
	c.speakers = append(c.speakers, d)
	c.speakersTouch = true
	return c
}

// ClearSpeakers makes the update carry an empty speaker array.
func (c *UpdateSession) ClearSpeakers() *UpdateSession {
	c.speakers = nil
	c.speakersTouch = true
	return c
}

func (c *UpdateSession) AddComments(comments []NewComment) *UpdateSession {
	c.comments = append(c.comments, comments...)
	return c
}

func (c *UpdateSession) AddData(name string, f DataField) *UpdateSession {
	if c.data == nil {
		c.data = DataObject{}
	}
	c.data[name] = f
	return c
}

func (c *UpdateSession) SetStatus(s SessionStatus) *UpdateSession {
	c.status = s
	return c
}

// Status is the requested status change, empty when there is none.
func (c *UpdateSession) Status() SessionStatus {
	return c.status
}

// TouchesSpeakers reports whether the update replaces the speaker list.
func (c *UpdateSession) TouchesSpeakers() bool {
	return c.speakersTouch
}

// CreateEvent validates the command against the snapshot the caller read and
// returns the UPDATE event.
func (c *UpdateSession) CreateEvent(current *Session) (*Event, error) {
	if c.SessionID == "" || c.ConferenceID == "" {
		return nil, fmt.Errorf("%w: session id and conference id are required", ErrMalformedPayload)
	}
	if current == nil || current.ID != c.SessionID {
		return nil, fmt.Errorf("session %s: %w", c.SessionID, ErrUnknownAggregate)
	}
	if current.ConferenceID != c.ConferenceID {
		return nil, fmt.Errorf("%w: session %s belongs to conference %s", ErrMalformedPayload, c.SessionID, current.ConferenceID)
	}
	if err := checkDataNames(c.data); err != nil {
		return nil, err
	}
	if c.status != "" && !c.status.IsValid() {
		return nil, fmt.Errorf("%w: unknown session status %q", ErrMalformedPayload, c.status)
	}
	data, err := c.data.Normalized()
	if err != nil {
		return nil, err
	}
	payload := &SessionUpdate{
		ConferenceID:  c.ConferenceID,
		SessionStatus: c.status,
		Data:          data,
	}
	if len(c.data) == 0 {
		payload.Data = nil
	}
	if c.speakersTouch {
		payload.Speakers = make([]SpeakerEntry, 0, len(c.speakers))
		for _, sd := range c.speakers {
			e, err := sd.entry()
			if err != nil {
				return nil, err
			}
			payload.Speakers = append(payload.Speakers, e)
		}
	}
	now := c.now
	if now == nil {
		now = time.Now
	}
	for _, nc := range c.comments {
		created := now().UTC()
		payload.Comments = append(payload.Comments, CommentEntry{
			ID:          uuid.NewString(),
			AuthorEmail: nc.AuthorEmail,
			AuthorName:  nc.AuthorName,
			Text:        nc.Text,
			CreatedAt:   &created,
		})
	}
	return newEvent(EventUpdate, c.SessionID, c.ConferenceID, payload, now), nil
}

// DeleteSession removes a session. Its id is never handed out again.
type DeleteSession struct {
	ConferenceID string
	SessionID    string
	now          func() time.Time
}

func NewDeleteSession(conferenceID, sessionID string) *DeleteSession {
	return &DeleteSession{ConferenceID: conferenceID, SessionID: sessionID, now: time.Now}
}

// CreateEvent returns the DELETE event. It carries no payload.
func (c *DeleteSession) CreateEvent() (*Event, error) {
	if c.SessionID == "" || c.ConferenceID == "" {
		return nil, fmt.Errorf("%w: session id and conference id are required", ErrMalformedPayload)
	}
	return newEvent(EventDelete, c.SessionID, c.ConferenceID, nil, c.now), nil
}
