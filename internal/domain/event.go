package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EventKind is the closed set of facts recorded about a session.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// IsValid reports whether k is one of the known kinds.
func (k EventKind) IsValid() bool {
	switch k {
	case EventCreate, EventUpdate, EventDelete:
		return true
	}
	return false
}

// Event is an accepted change to one session. Events are never modified after
// creation; the current state of a session is the fold of its events in order.
// swagger:model SessionEvent
type Event struct {
	ID           string         `json:"id"`
	Sequence     int64          `json:"sequence"`
	SessionID    string         `json:"sessionId"`
	ConferenceID string         `json:"conferenceId"`
	Kind         EventKind      `json:"kind"`
	Payload      *SessionUpdate `json:"payload,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Keys of the session payload that are not data fields.
const (
	keyID            = "id"
	keySessionStatus = "sessionStatus"
	keyConferenceID  = "conferenceId"
	keyLastUpdated   = "lastUpdated"
	keyPostedByMail  = "postedByMail"
	keySpeakers      = "speakers"
	keyComments      = "comments"

	keyName  = "name"
	keyEmail = "email"
)

var sessionReserved = map[string]struct{}{
	keyID: {}, keySessionStatus: {}, keyConferenceID: {}, keyLastUpdated: {},
	keyPostedByMail: {}, keySpeakers: {}, keyComments: {},
}

var speakerReserved = map[string]struct{}{
	keyID: {}, keyName: {}, keyEmail: {},
}

// IsReservedSessionField reports whether name collides with a fixed session key.
func IsReservedSessionField(name string) bool {
	_, ok := sessionReserved[name]
	return ok
}

// IsReservedSpeakerField reports whether name collides with a fixed speaker key.
func IsReservedSpeakerField(name string) bool {
	_, ok := speakerReserved[name]
	return ok
}

// SessionUpdate is the partial-session shape carried by CREATE and UPDATE events,
// and the shape both read projections are served in.
//
// Speakers distinguishes a missing array (nil, speakers untouched) from an empty
// one (non-nil, every speaker removed). When present it is the complete next
// speaker list: an existing speaker that is not listed by id is deleted.
type SessionUpdate struct {
	ID            string
	ConferenceID  string
	SessionStatus SessionStatus
	LastUpdated   string
	PostedByMail  string
	Speakers      []SpeakerEntry
	Comments      []CommentEntry
	Data          DataObject
}

// SpeakerEntry is one element of the speakers array. An entry without ID, or with
// an ID no current speaker has, describes a new speaker.
type SpeakerEntry struct {
	ID    string
	Name  *string
	Email *string
	Data  DataObject
}

// CommentEntry is one element of the comments array.
type CommentEntry struct {
	ID          string     `json:"id,omitempty"`
	AuthorEmail string     `json:"authorEmail"`
	AuthorName  string     `json:"authorName"`
	Text        string     `json:"text"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

type idValue struct {
	Value string `json:"value"`
}

// MarshalJSON flattens data fields next to the fixed keys.
func (u SessionUpdate) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(u.Data)+8)
	for name, f := range u.Data {
		obj[name] = f
	}
	if u.ID != "" {
		obj[keyID] = u.ID
	}
	obj[keyConferenceID] = u.ConferenceID
	if u.SessionStatus != "" {
		obj[keySessionStatus] = u.SessionStatus
	}
	if u.LastUpdated != "" {
		obj[keyLastUpdated] = u.LastUpdated
	}
	if u.PostedByMail != "" {
		obj[keyPostedByMail] = u.PostedByMail
	}
	if u.Speakers != nil {
		obj[keySpeakers] = u.Speakers
	}
	if u.Comments != nil {
		obj[keyComments] = u.Comments
	}
	return json.Marshal(obj)
}

// UnmarshalJSON is the inverse of MarshalJSON. Any key that is not a fixed key
// must hold a {"value", "visibility"} object.
func (u *SessionUpdate) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var out SessionUpdate
	fields := []struct {
		key  string
		dest any
	}{
		{keyID, &out.ID},
		{keyConferenceID, &out.ConferenceID},
		{keySessionStatus, &out.SessionStatus},
		{keyLastUpdated, &out.LastUpdated},
		{keyPostedByMail, &out.PostedByMail},
		{keySpeakers, &out.Speakers},
		{keyComments, &out.Comments},
	}
	for _, fld := range fields {
		raw, ok := obj[fld.key]
		if !ok || string(raw) == "null" {
			continue
		}
		if err := json.Unmarshal(raw, fld.dest); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, fld.key, err)
		}
	}
	if raw, ok := obj[keySpeakers]; ok && string(raw) != "null" && out.Speakers == nil {
		out.Speakers = []SpeakerEntry{}
	}
	data, err := decodeDataFields(obj, sessionReserved)
	if err != nil {
		return err
	}
	out.Data = data
	*u = out
	return nil
}

// MarshalJSON writes the id as {"value": id}, which is how clients echo it back.
func (e SpeakerEntry) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Data)+3)
	for name, f := range e.Data {
		obj[name] = f
	}
	if e.ID != "" {
		obj[keyID] = idValue{Value: e.ID}
	}
	if e.Name != nil {
		obj[keyName] = *e.Name
	}
	if e.Email != nil {
		obj[keyEmail] = *e.Email
	}
	return json.Marshal(obj)
}

func (e *SpeakerEntry) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("%w: speaker: %v", ErrMalformedPayload, err)
	}
	var out SpeakerEntry
	if raw, ok := obj[keyID]; ok && string(raw) != "null" {
		var id idValue
		if err := json.Unmarshal(raw, &id); err != nil {
			return fmt.Errorf("%w: speaker id: %v", ErrMalformedPayload, err)
		}
		out.ID = id.Value
	}
	for key, dest := range map[string]**string{keyName: &out.Name, keyEmail: &out.Email} {
		raw, ok := obj[key]
		if !ok || string(raw) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("%w: speaker %s: %v", ErrMalformedPayload, key, err)
		}
		*dest = &s
	}
	data, err := decodeDataFields(obj, speakerReserved)
	if err != nil {
		return err
	}
	out.Data = data
	*e = out
	return nil
}

// EventRepository is the durable, append-only event log.
type EventRepository interface {
	// Append stores e and sets e.Sequence to its position in the log.
	Append(ctx context.Context, e *Event) error
	// List returns every event in append order.
	List(ctx context.Context) ([]*Event, error)
	// ListBySession returns the events of one session in append order.
	ListBySession(ctx context.Context, sessionID string) ([]*Event, error)
}
