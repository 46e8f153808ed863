package controllers

import (
	"log/slog"
	"net/http"

	"sleepingpill/internal/delivery/http/helpers"
	"sleepingpill/internal/domain"
)

// PublicController serves the anonymous program: approved and historic sessions
// without private fields, comments or email addresses.
type PublicController struct {
	Logger  *slog.Logger
	Service domain.SessionService
}

func NewPublicController(logger *slog.Logger, svc domain.SessionService) *PublicController {
	return &PublicController{
		Logger:  logger,
		Service: svc,
	}
}

// ListSessions godoc
// @Summary Public program of a conference
// @Description Public projections of the approved and historic sessions. Without page or page_size everything is returned.
// @Tags public
// @Produce json
// @Param conferenceID path string true "Conference ID"
// @Param page query int false "Page (1-based)"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} helpers.APIResponse "data contains sessions and pagination"
// @Router /public/conference/{conferenceID}/session [get]
func (c *PublicController) ListSessions(w http.ResponseWriter, r *http.Request) {
	conferenceID := r.PathValue("conferenceID")
	if conferenceID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing conferenceID")
		return
	}
	sessions, err := c.Service.ListPublicSessions(r.Context(), conferenceID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	params := helpers.ParsePagination(r)
	page, total := domain.Paginate(sessions, params)
	helpers.WriteJSONSuccess(w, http.StatusOK, SessionListResponse{
		Sessions:   page,
		Pagination: helpers.NewPaginationMeta(params.Page, params.PageSize, total),
	})
}

// GetSession godoc
// @Summary Public view of a session
// @Tags public
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} helpers.APIResponse "data contains the public session"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not approved)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /public/session/{sessionID} [get]
func (c *PublicController) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing sessionID")
		return
	}
	session, err := c.Service.GetPublicSession(r.Context(), sessionID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, session)
}
