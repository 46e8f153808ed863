package controllers

import (
	"github.com/samber/lo"

	"sleepingpill/internal/delivery/http/helpers"
	"sleepingpill/internal/domain"
)

// SessionRequest is the request body for creating and updating a session. It has
// the same shape as the session projection: fixed keys (sessionStatus,
// lastUpdated, speakers, comments...) with every other key a data field
// {"value": ..., "visibility": "public"|"private"}.
type SessionRequest struct {
	domain.SessionUpdate
}

type sessionRules struct {
	ConferenceID string         `json:"conferenceId" validate:"max=100"`
	PostedByMail string         `json:"postedByMail" validate:"omitempty,email"`
	Speakers     []speakerRules `json:"speakers" validate:"dive"`
	Comments     []commentRules `json:"comments" validate:"dive"`
}

type speakerRules struct {
	Name  string `json:"name" validate:"max=200"`
	Email string `json:"email" validate:"omitempty,email"`
}

type commentRules struct {
	Text string `json:"text" validate:"required,max=5000"`
}

// Validate implements Validator.
func (s SessionRequest) Validate() []string {
	return helpers.ValidateStruct(sessionRules{
		ConferenceID: s.ConferenceID,
		PostedByMail: s.PostedByMail,
		Speakers: lo.Map(s.Speakers, func(e domain.SpeakerEntry, _ int) speakerRules {
			return speakerRules{Name: lo.FromPtr(e.Name), Email: lo.FromPtr(e.Email)}
		}),
		Comments: lo.Map(s.Comments, func(e domain.CommentEntry, _ int) commentRules {
			return commentRules{Text: e.Text}
		}),
	})
}

// speakerData turns a speaker of the request body into command input.
func speakerData(e domain.SpeakerEntry) *domain.SpeakerData {
	d := &domain.SpeakerData{ID: e.ID, Data: e.Data}
	if e.Name != nil {
		d.SetName(*e.Name)
	}
	if e.Email != nil {
		d.SetEmail(*e.Email)
	}
	return d
}

// LoginRequest is the request body for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Validate implements Validator.
func (l LoginRequest) Validate() []string {
	return helpers.ValidateStruct(l)
}

// LoginResponse is the response body for POST /auth/login
type LoginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

// SessionListResponse is a page of session projections.
type SessionListResponse struct {
	Sessions   []domain.SessionUpdate `json:"sessions"`
	Pagination helpers.PaginationMeta `json:"pagination"`
}

// DeleteSessionResponse is the response body for DELETE /data/session/{sessionID}.
type DeleteSessionResponse struct {
	Status  string `json:"status"`
	EventID string `json:"eventId"`
}

// submitterStatuses are the statuses a speaker may set on their own session.
var submitterStatuses = []domain.SessionStatus{domain.StatusDraft, domain.StatusSubmitted}
