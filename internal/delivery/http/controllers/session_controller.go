package controllers

import (
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/samber/lo"

	"sleepingpill/internal/delivery/http/helpers"
	"sleepingpill/internal/delivery/http/middleware"
	"sleepingpill/internal/domain"
)

type SessionController struct {
	Logger  *slog.Logger
	Service domain.SessionService
}

func NewSessionController(logger *slog.Logger, svc domain.SessionService) *SessionController {
	return &SessionController{
		Logger:  logger,
		Service: svc,
	}
}

// ListConferences godoc
// @Summary List conferences
// @Description Conferences that have at least one live session, with their session count. Program committee only.
// @Tags conferences
// @Produce json
// @Security BearerAuth
// @Success 200 {object} helpers.APIResponse "data contains the conferences"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Router /data/conference [get]
func (c *SessionController) ListConferences(w http.ResponseWriter, r *http.Request) {
	conferences, err := c.Service.ListConferences(r.Context())
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, conferences)
}

// ListConferenceSessions godoc
// @Summary List the sessions of a conference
// @Description Full projections of every live session, in submission order. Without page or page_size everything is returned. Program committee only.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param conferenceID path string true "Conference ID"
// @Param page query int false "Page (1-based)"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} helpers.APIResponse "data contains sessions and pagination"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Router /data/conference/{conferenceID}/session [get]
func (c *SessionController) ListConferenceSessions(w http.ResponseWriter, r *http.Request) {
	conferenceID := r.PathValue("conferenceID")
	if conferenceID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing conferenceID")
		return
	}
	sessions, err := c.Service.ListSessions(r.Context(), conferenceID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	c.writeSessionPage(w, r, sessions)
}

// ListMySessions godoc
// @Summary List the caller's sessions
// @Description Sessions the caller submitted or is listed as a speaker on. Committee members may ask for another address with ?email=.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param email query string false "Address to look up (committee only)"
// @Success 200 {object} helpers.APIResponse "data contains sessions and pagination"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Router /data/submitter/session [get]
func (c *SessionController) ListMySessions(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	email := p.Email
	if other := strings.TrimSpace(r.URL.Query().Get("email")); other != "" && !strings.EqualFold(other, p.Email) {
		if !p.IsAdmin() {
			helpers.WriteJSONError(w, http.StatusForbidden, helpers.ErrCodeForbidden, "only the program committee may look up other addresses")
			return
		}
		email = other
	}
	sessions, err := c.Service.ListSessionsByEmail(r.Context(), email)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	c.writeSessionPage(w, r, sessions)
}

func (c *SessionController) writeSessionPage(w http.ResponseWriter, r *http.Request, sessions []*domain.Session) {
	params := helpers.ParsePagination(r)
	page, total := domain.Paginate(sessions, params)
	helpers.WriteJSONSuccess(w, http.StatusOK, SessionListResponse{
		Sessions:   lo.Map(page, func(s *domain.Session, _ int) domain.SessionUpdate { return s.AsSingleSessionJSON() }),
		Pagination: helpers.NewPaginationMeta(params.Page, params.PageSize, total),
	})
}

// CreateSession godoc
// @Summary Submit a session
// @Description Creates a session in the conference. The caller becomes the submitter (committee members may set postedByMail). Speakers are always new; speaker ids in the body are ignored. Speakers may only set status DRAFT or SUBMITTED.
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param conferenceID path string true "Conference ID"
// @Param body body controllers.SessionRequest true "Session with flattened data fields"
// @Success 201 {object} helpers.APIResponse "data contains the created session"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /data/conference/{conferenceID}/session [post]
func (c *SessionController) CreateSession(w http.ResponseWriter, r *http.Request) {
	conferenceID := r.PathValue("conferenceID")
	if conferenceID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing conferenceID")
		return
	}
	var req SessionRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	switch {
	case req.ID != "":
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "id is assigned by the server")
		return
	case req.ConferenceID != "" && req.ConferenceID != conferenceID:
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "conferenceId does not match the path")
		return
	case len(req.Comments) > 0:
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "comments can only be added to an existing session")
		return
	case req.PostedByMail != "" && !p.IsAdmin() && !strings.EqualFold(req.PostedByMail, p.Email):
		helpers.WriteJSONError(w, http.StatusForbidden, helpers.ErrCodeForbidden, "postedByMail must be the caller's address")
		return
	}
	if !statusAllowed(p, domain.StatusDraft, req.SessionStatus) {
		helpers.WriteJSONError(w, http.StatusForbidden, helpers.ErrCodeForbidden, "only the program committee may set status "+string(req.SessionStatus))
		return
	}

	cmd := domain.NewCreateNewSession(conferenceID)
	cmd.PostedByMail = lo.CoalesceOrEmpty(req.PostedByMail, p.Email)
	cmd.Status = req.SessionStatus
	for _, sp := range req.Speakers {
		cmd.AddSpeaker(speakerData(sp))
	}
	for _, name := range slices.Sorted(maps.Keys(req.Data)) {
		cmd.AddData(name, req.Data[name])
	}

	_, session, err := c.Service.CreateSessionSnapshot(r.Context(), cmd)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, session.AsSingleSessionJSON())
}

// GetSession godoc
// @Summary Get a session
// @Description Full projection including private fields and comments. The committee, the submitter and the session's speakers may read it.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionID path string true "Session ID"
// @Success 200 {object} helpers.APIResponse "data contains the session"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /data/session/{sessionID} [get]
func (c *SessionController) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing sessionID")
		return
	}
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	session, err := c.Service.GetSession(r.Context(), sessionID, p)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, session.AsSingleSessionJSON())
}

// UpdateSession godoc
// @Summary Update a session
// @Description Changes only what the body contains. Data fields are merged. A speakers array is the complete next speaker list: list existing speakers by {"id":{"value":...}} to keep them, omit them to remove them, add entries without id for new speakers, or send [] to remove all. Comments are appended with the caller as author. Send lastUpdated from the version you edited; with strict concurrency a stale value is rejected with 409.
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sessionID path string true "Session ID"
// @Param body body controllers.SessionRequest true "Changed fields"
// @Success 200 {object} helpers.APIResponse "data contains the updated session"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /data/session/{sessionID} [put]
func (c *SessionController) UpdateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing sessionID")
		return
	}
	var req SessionRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	current, err := c.Service.GetSession(r.Context(), sessionID, p)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	switch {
	case req.ID != "" && req.ID != sessionID:
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "id does not match the path")
		return
	case req.PostedByMail != "" && req.PostedByMail != current.AddedByEmail:
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "postedByMail cannot be changed")
		return
	}
	if !statusAllowed(p, current.Status, req.SessionStatus) {
		helpers.WriteJSONError(w, http.StatusForbidden, helpers.ErrCodeForbidden, "only the program committee may set status "+string(req.SessionStatus))
		return
	}

	cmd := domain.NewUpdateSession(sessionID, lo.CoalesceOrEmpty(req.ConferenceID, current.ConferenceID)).
		SetLastUpdated(req.LastUpdated)
	if req.SessionStatus != "" && req.SessionStatus != current.Status {
		cmd.SetStatus(req.SessionStatus)
	}
	if req.Speakers != nil {
		cmd.ClearSpeakers()
		for _, sp := range req.Speakers {
			cmd.AddSpeakerData(speakerData(sp))
		}
	}
	cmd.AddComments(lo.Map(req.Comments, func(e domain.CommentEntry, _ int) domain.NewComment {
		return domain.NewComment{AuthorEmail: p.Email, AuthorName: e.AuthorName, Text: e.Text}
	}))
	for _, name := range slices.Sorted(maps.Keys(req.Data)) {
		cmd.AddData(name, req.Data[name])
	}

	// The caller may have removed themself as a speaker; the response is the
	// outcome of their own update and is not checked again.
	_, session, err := c.Service.UpdateSessionSnapshot(r.Context(), cmd)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, session.AsSingleSessionJSON())
}

// DeleteSession godoc
// @Summary Delete a session
// @Description Removes the session. Its id is never reused. Program committee only.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionID path string true "Session ID"
// @Success 200 {object} helpers.APIResponse "data.status: deleted"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /data/session/{sessionID} [delete]
func (c *SessionController) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing sessionID")
		return
	}
	p, _ := middleware.PrincipalFromContext(r.Context())
	current, err := c.Service.GetSession(r.Context(), sessionID, p)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	ev, err := c.Service.DeleteSession(r.Context(), domain.NewDeleteSession(current.ConferenceID, sessionID))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, DeleteSessionResponse{Status: "deleted", EventID: ev.ID})
}

// History godoc
// @Summary Session history
// @Description Every event recorded for the session, oldest first. Program committee only.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionID path string true "Session ID"
// @Success 200 {object} helpers.APIResponse "data contains the events"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /data/session/{sessionID}/history [get]
func (c *SessionController) History(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing sessionID")
		return
	}
	events, err := c.Service.History(r.Context(), sessionID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, events)
}

// statusAllowed reports whether p may move a session from one status to another.
// Speakers may only move between DRAFT and SUBMITTED; an empty target is no change.
func statusAllowed(p domain.Principal, from, to domain.SessionStatus) bool {
	if to == "" || to == from || p.IsAdmin() {
		return true
	}
	return lo.Contains(submitterStatuses, from) && lo.Contains(submitterStatuses, to)
}
