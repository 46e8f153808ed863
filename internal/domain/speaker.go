package domain

import (
	"strings"
	"time"
)

// Speaker is a person presenting a session. It only exists inside its session.
// swagger:model Speaker
type Speaker struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Data  DataObject `json:"data"`
}

// HasEmail compares case-insensitively.
func (s Speaker) HasEmail(email string) bool {
	return email != "" && strings.EqualFold(s.Email, email)
}

// DataValue returns the named data field.
func (s Speaker) DataValue(name string) (DataField, bool) {
	return s.Data.Value(name)
}

// apply returns a copy of s with the entry's name and email (when given) and
// its data fields merged in. The id never changes.
func (s Speaker) apply(e SpeakerEntry) Speaker {
	out := s
	if e.Name != nil {
		out.Name = *e.Name
	}
	if e.Email != nil {
		out.Email = *e.Email
	}
	out.Data = s.Data.Merge(e.Data)
	return out
}

func speakerFromEntry(id string, e SpeakerEntry) Speaker {
	sp := Speaker{ID: id, Data: DataObject{}.Merge(e.Data)}
	if e.Name != nil {
		sp.Name = *e.Name
	}
	if e.Email != nil {
		sp.Email = *e.Email
	}
	return sp
}

// entry is the full projection of the speaker.
func (s Speaker) entry() SpeakerEntry {
	name, email := s.Name, s.Email
	return SpeakerEntry{ID: s.ID, Name: &name, Email: &email, Data: s.Data.Clone()}
}

// publicEntry leaves out the email address and every private data field.
func (s Speaker) publicEntry() SpeakerEntry {
	name := s.Name
	return SpeakerEntry{ID: s.ID, Name: &name, Data: s.Data.PublicView()}
}

// Comment is a note left on a session, typically by the program committee.
// Comments are never edited or removed.
// swagger:model Comment
type Comment struct {
	ID          string    `json:"id"`
	AuthorEmail string    `json:"authorEmail"`
	AuthorName  string    `json:"authorName"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
}

func commentFromEntry(id string, e CommentEntry, now time.Time) Comment {
	c := Comment{
		ID:          id,
		AuthorEmail: e.AuthorEmail,
		AuthorName:  e.AuthorName,
		Text:        e.Text,
		CreatedAt:   now,
	}
	if e.CreatedAt != nil {
		c.CreatedAt = *e.CreatedAt
	}
	return c
}

func (c Comment) entry() CommentEntry {
	created := c.CreatedAt
	return CommentEntry{
		ID:          c.ID,
		AuthorEmail: c.AuthorEmail,
		AuthorName:  c.AuthorName,
		Text:        c.Text,
		CreatedAt:   &created,
	}
}
