package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepingpill/internal/delivery/http/helpers"
	"sleepingpill/internal/delivery/http/middleware"
	"sleepingpill/internal/domain"
	"sleepingpill/internal/repository/memory"
	"sleepingpill/internal/services"
)

// testLogger is a no-op logger for controller tests so we don't assert on log output.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

var (
	committee = domain.Principal{Email: "pk@javazone.no", Roles: []string{domain.RoleAdmin}}
	darth     = domain.Principal{Email: "darth@deathstar.com"}
	stranger  = domain.Principal{Email: "han@falcon.com"}
)

func newSessionService(strict bool) domain.SessionService {
	return services.NewSessionService(testLogger, memory.NewEventRepository(), services.NewSessionHolder(nil), nil,
		services.SessionServiceOptions{StrictConcurrency: strict})
}

type call struct {
	method     string
	target     string
	body       string
	principal  *domain.Principal
	pathValues map[string]string
}

// serve runs one request against handler and decodes the response envelope.
// data is the envelope's data re-decoded as a JSON object or array.
func serve(t *testing.T, handler http.HandlerFunc, c call) (*httptest.ResponseRecorder, helpers.APIResponse, any) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = bytes.NewBufferString(c.body)
	}
	req := httptest.NewRequest(c.method, c.target, body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.pathValues {
		req.SetPathValue(k, v)
	}
	if c.principal != nil {
		req = req.WithContext(middleware.SetPrincipal(req.Context(), *c.principal))
	}
	rr := httptest.NewRecorder()

	handler(rr, req)

	var envelope helpers.APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope), "response must be valid JSON envelope: %s", rr.Body.String())
	var data any
	if envelope.Data != nil {
		raw, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &data))
	}
	return rr, envelope, data
}

func object(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	require.True(t, ok, "expected a JSON object, got %T", v)
	return m
}

func speakerIDs(t *testing.T, session map[string]any) []string {
	t.Helper()
	list, _ := session["speakers"].([]any)
	ids := make([]string, 0, len(list))
	for _, sp := range list {
		id := object(t, object(t, sp)["id"])
		ids = append(ids, id["value"].(string))
	}
	return ids
}

const darthSession = `{
	"title": {"value": "The dark side", "visibility": "public"},
	"outline": {"value": "breathing exercises"},
	"speakers": [{"name": "Darth Vader", "email": "darth@deathstar.com", "bio": {"value": "Sith lord", "visibility": "public"}}]
}`

func createDarthSession(t *testing.T, ctrl *SessionController) map[string]any {
	t.Helper()
	rr, _, data := serve(t, ctrl.CreateSession, call{
		method: http.MethodPost, target: "/data/conference/javazone/session", body: darthSession,
		principal: &darth, pathValues: map[string]string{"conferenceID": "javazone"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return object(t, data)
}

func TestSessionController_CreateSession(t *testing.T) {
	ctrl := NewSessionController(testLogger, newSessionService(false))
	session := createDarthSession(t, ctrl)

	assert.NotEmpty(t, session["id"])
	assert.Equal(t, "javazone", session["conferenceId"])
	assert.Equal(t, "DRAFT", session["sessionStatus"])
	assert.Equal(t, "darth@deathstar.com", session["postedByMail"])
	assert.NotEmpty(t, session["lastUpdated"])
	assert.Equal(t, map[string]any{"value": "breathing exercises", "visibility": "private"}, session["outline"])
	require.Len(t, speakerIDs(t, session), 1)
	speaker := object(t, session["speakers"].([]any)[0])
	assert.Equal(t, "Darth Vader", speaker["name"])
	assert.Equal(t, map[string]any{"value": "Sith lord", "visibility": "public"}, speaker["bio"])
}

func TestSessionController_CreateSession_Errors(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		principal      *domain.Principal
		wantStatus     int
		wantBodySubstr string
	}{
		{name: "no principal", body: `{}`, wantStatus: http.StatusUnauthorized, wantBodySubstr: "unauthorized"},
		{name: "invalid json", body: `{invalid`, principal: &darth, wantStatus: http.StatusBadRequest, wantBodySubstr: "invalid"},
		{name: "data field is not an object", body: `{"title":"plain"}`, principal: &darth, wantStatus: http.StatusBadRequest, wantBodySubstr: "title"},
		{name: "unknown visibility", body: `{"title":{"value":"x","visibility":"secret"}}`, principal: &darth, wantStatus: http.StatusBadRequest, wantBodySubstr: "visibility"},
		{name: "bad speaker email", body: `{"speakers":[{"email":"nope"}]}`, principal: &darth, wantStatus: http.StatusBadRequest, wantBodySubstr: "email"},
		{name: "client chosen id", body: `{"id":"mine"}`, principal: &darth, wantStatus: http.StatusBadRequest, wantBodySubstr: "assigned by the server"},
		{name: "other conference", body: `{"conferenceId":"other"}`, principal: &darth, wantStatus: http.StatusBadRequest, wantBodySubstr: "does not match"},
		{name: "comments on create", body: `{"comments":[{"text":"hi"}]}`, principal: &darth, wantStatus: http.StatusBadRequest, wantBodySubstr: "existing session"},
		{name: "speaker approves own talk", body: `{"sessionStatus":"APPROVED"}`, principal: &darth, wantStatus: http.StatusForbidden, wantBodySubstr: "APPROVED"},
		{name: "unknown status", body: `{"sessionStatus":"MAYBE"}`, principal: &darth, wantStatus: http.StatusBadRequest, wantBodySubstr: "MAYBE"},
		{name: "submitting for someone else", body: `{"postedByMail":"luke@endor.com"}`, principal: &darth, wantStatus: http.StatusForbidden, wantBodySubstr: "postedByMail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := NewSessionController(testLogger, newSessionService(false))
			rr, envelope, _ := serve(t, ctrl.CreateSession, call{
				method: http.MethodPost, target: "/data/conference/javazone/session", body: tt.body,
				principal: tt.principal, pathValues: map[string]string{"conferenceID": "javazone"},
			})
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			require.NotNil(t, envelope.Error, "error response must have error set")
			assert.Contains(t, envelope.Error.Message, tt.wantBodySubstr, "error message")
		})
	}
}

func TestSessionController_CreateSession_CommitteeOnBehalf(t *testing.T) {
	ctrl := NewSessionController(testLogger, newSessionService(false))
	rr, _, data := serve(t, ctrl.CreateSession, call{
		method: http.MethodPost, target: "/data/conference/javazone/session",
		body:      `{"postedByMail":"luke@endor.com","sessionStatus":"submitted"}`,
		principal: &committee, pathValues: map[string]string{"conferenceID": "javazone"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	session := object(t, data)
	assert.Equal(t, "luke@endor.com", session["postedByMail"])
	assert.Equal(t, "SUBMITTED", session["sessionStatus"])
}

func TestSessionController_UpdateSpeakers(t *testing.T) {
	ctrl := NewSessionController(testLogger, newSessionService(false))
	session := createDarthSession(t, ctrl)
	id := session["id"].(string)
	darthID := speakerIDs(t, session)[0]
	put := func(body string, p *domain.Principal) (*httptest.ResponseRecorder, map[string]any) {
		rr, _, data := serve(t, ctrl.UpdateSession, call{
			method: http.MethodPut, target: "/data/session/" + id, body: body,
			principal: p, pathValues: map[string]string{"sessionID": id},
		})
		if rr.Code != http.StatusOK {
			return rr, nil
		}
		return rr, object(t, data)
	}

	rr, updated := put(`{"speakers":[{"id":{"value":"`+darthID+`"}},{"name":"Luke Skywalker","email":"luke@endor.com"}]}`, &darth)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	ids := speakerIDs(t, updated)
	require.Len(t, ids, 2)
	assert.Equal(t, darthID, ids[0])

	// luke can now edit the session too
	luke := domain.Principal{Email: "luke@endor.com"}
	rr, updated = put(`{"title":{"value":"The light side","visibility":"public"}}`, &luke)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "The light side", object(t, updated["title"])["value"])
	assert.Len(t, speakerIDs(t, updated), 2, "an update without speakers keeps them")

	rr, updated = put(`{"speakers":[{"id":{"value":"`+darthID+`"}}]}`, &darth)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []string{darthID}, speakerIDs(t, updated))

	rr, _ = put(`{"title":{"value":"mine now"}}`, &luke)
	assert.Equal(t, http.StatusForbidden, rr.Code, "removed speakers lose access")

	rr, updated = put(`{"speakers":[]}`, &committee)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Empty(t, speakerIDs(t, updated))
}

func TestSessionController_UpdateSession_SpeakerLeaves(t *testing.T) {
	ctrl := NewSessionController(testLogger, newSessionService(false))
	session := createDarthSession(t, ctrl)
	id := session["id"].(string)
	darthID := speakerIDs(t, session)[0]
	luke := domain.Principal{Email: "luke@endor.com"}
	update := func(body string, p *domain.Principal) (*httptest.ResponseRecorder, any) {
		rr, _, data := serve(t, ctrl.UpdateSession, call{
			method: http.MethodPut, target: "/data/session/" + id, body: body,
			principal: p, pathValues: map[string]string{"sessionID": id},
		})
		return rr, data
	}

	rr, _ := update(`{"speakers":[{"id":{"value":"`+darthID+`"}},{"name":"Luke Skywalker","email":"luke@endor.com"}]}`, &darth)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// luke leaves the talk; the stored update is reported as stored
	rr, data := update(`{"speakers":[{"id":{"value":"`+darthID+`"}}]}`, &luke)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []string{darthID}, speakerIDs(t, object(t, data)))

	rr, _, _ = serve(t, ctrl.GetSession, call{method: http.MethodGet, target: "/data/session/" + id,
		principal: &luke, pathValues: map[string]string{"sessionID": id}})
	assert.Equal(t, http.StatusForbidden, rr.Code, "later reads are checked again")
	rr, _, data = serve(t, ctrl.GetSession, call{method: http.MethodGet, target: "/data/session/" + id,
		principal: &darth, pathValues: map[string]string{"sessionID": id}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{darthID}, speakerIDs(t, object(t, data)))
}

func TestSessionController_UpdateSession_Rules(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		principal  *domain.Principal
		sessionID  string
		wantStatus int
		check      func(t *testing.T, session map[string]any)
	}{
		{name: "stranger", body: `{}`, principal: &stranger, wantStatus: http.StatusForbidden},
		{name: "unknown session", body: `{}`, principal: &committee, sessionID: "missing", wantStatus: http.StatusNotFound},
		{name: "speaker submits", body: `{"sessionStatus":"SUBMITTED"}`, principal: &darth, wantStatus: http.StatusOK,
			check: func(t *testing.T, s map[string]any) { assert.Equal(t, "SUBMITTED", s["sessionStatus"]) }},
		{name: "speaker approves", body: `{"sessionStatus":"APPROVED"}`, principal: &darth, wantStatus: http.StatusForbidden},
		{name: "committee approves", body: `{"sessionStatus":"APPROVED"}`, principal: &committee, wantStatus: http.StatusOK,
			check: func(t *testing.T, s map[string]any) { assert.Equal(t, "APPROVED", s["sessionStatus"]) }},
		{name: "changing submitter", body: `{"postedByMail":"luke@endor.com"}`, principal: &committee, wantStatus: http.StatusBadRequest},
		{name: "moving conference", body: `{"conferenceId":"other"}`, principal: &committee, wantStatus: http.StatusBadRequest},
		{name: "reserved speaker field", body: `{"speakers":[{"name":"x","id":"plain"}]}`, principal: &darth, wantStatus: http.StatusBadRequest},
		{name: "comment", body: `{"comments":[{"authorName":"PK","text":"Please add an outline"}]}`, principal: &committee, wantStatus: http.StatusOK,
			check: func(t *testing.T, s map[string]any) {
				comments := s["comments"].([]any)
				require.Len(t, comments, 1)
				c := object(t, comments[0])
				assert.NotEmpty(t, c["id"])
				assert.Equal(t, committee.Email, c["authorEmail"])
				assert.Equal(t, "Please add an outline", c["text"])
			}},
		{name: "empty comment", body: `{"comments":[{"text":""}]}`, principal: &committee, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := NewSessionController(testLogger, newSessionService(false))
			id := createDarthSession(t, ctrl)["id"].(string)
			if tt.sessionID != "" {
				id = tt.sessionID
			}
			rr, envelope, data := serve(t, ctrl.UpdateSession, call{
				method: http.MethodPut, target: "/data/session/" + id, body: tt.body,
				principal: tt.principal, pathValues: map[string]string{"sessionID": id},
			})
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantStatus != http.StatusOK {
				require.NotNil(t, envelope.Error)
				return
			}
			if tt.check != nil {
				tt.check(t, object(t, data))
			}
		})
	}
}

func TestSessionController_UpdateSession_StaleToken(t *testing.T) {
	for _, strict := range []bool{false, true} {
		ctrl := NewSessionController(testLogger, newSessionService(strict))
		session := createDarthSession(t, ctrl)
		id := session["id"].(string)
		stale := `{"lastUpdated":"` + session["lastUpdated"].(string) + `","abstract":{"value":"v"}}`
		update := call{method: http.MethodPut, target: "/data/session/" + id, body: stale,
			principal: &darth, pathValues: map[string]string{"sessionID": id}}

		rr, _, _ := serve(t, ctrl.UpdateSession, update)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr, envelope, _ := serve(t, ctrl.UpdateSession, update)
		if !strict {
			assert.Equal(t, http.StatusOK, rr.Code, "last writer wins")
			continue
		}
		assert.Equal(t, http.StatusConflict, rr.Code)
		require.NotNil(t, envelope.Error)
		assert.Equal(t, helpers.ErrCodeConflict, envelope.Error.Code)
	}
}

func TestSessionController_GetDeleteHistory(t *testing.T) {
	ctrl := NewSessionController(testLogger, newSessionService(false))
	id := createDarthSession(t, ctrl)["id"].(string)
	byID := map[string]string{"sessionID": id}

	rr, _, _ := serve(t, ctrl.GetSession, call{method: http.MethodGet, target: "/data/session/" + id, principal: &stranger, pathValues: byID})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr, _, data := serve(t, ctrl.GetSession, call{method: http.MethodGet, target: "/data/session/" + id, principal: &darth, pathValues: byID})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, id, object(t, data)["id"])

	rr, _, data = serve(t, ctrl.History, call{method: http.MethodGet, target: "/data/session/" + id + "/history", principal: &committee, pathValues: byID})
	require.Equal(t, http.StatusOK, rr.Code)
	events := data.([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "create", object(t, events[0])["kind"])

	rr, _, data = serve(t, ctrl.DeleteSession, call{method: http.MethodDelete, target: "/data/session/" + id, principal: &committee, pathValues: byID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "deleted", object(t, data)["status"])

	rr, _, _ = serve(t, ctrl.GetSession, call{method: http.MethodGet, target: "/data/session/" + id, principal: &committee, pathValues: byID})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr, _, _ = serve(t, ctrl.DeleteSession, call{method: http.MethodDelete, target: "/data/session/" + id, principal: &committee, pathValues: byID})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _, data = serve(t, ctrl.History, call{method: http.MethodGet, target: "/data/session/" + id + "/history", principal: &committee, pathValues: byID})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, data.([]any), 2, "history outlives the session")
}

func TestSessionController_Listings(t *testing.T) {
	ctrl := NewSessionController(testLogger, newSessionService(false))
	for range 3 {
		createDarthSession(t, ctrl)
	}

	rr, _, data := serve(t, ctrl.ListConferences, call{method: http.MethodGet, target: "/data/conference", principal: &committee})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{map[string]any{"id": "javazone", "sessionCount": float64(3)}}, data)

	rr, _, data = serve(t, ctrl.ListConferenceSessions, call{method: http.MethodGet, target: "/data/conference/javazone/session?page=2&page_size=2",
		principal: &committee, pathValues: map[string]string{"conferenceID": "javazone"}})
	require.Equal(t, http.StatusOK, rr.Code)
	page := object(t, data)
	assert.Len(t, page["sessions"], 1)
	assert.Equal(t, map[string]any{"page": float64(2), "page_size": float64(2), "total": float64(3), "total_pages": float64(2)}, page["pagination"])

	rr, _, data = serve(t, ctrl.ListMySessions, call{method: http.MethodGet, target: "/data/submitter/session", principal: &darth})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, object(t, data)["sessions"], 3)

	rr, _, data = serve(t, ctrl.ListMySessions, call{method: http.MethodGet, target: "/data/submitter/session?email=darth@deathstar.com", principal: &committee})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, object(t, data)["sessions"], 3)

	rr, _, _ = serve(t, ctrl.ListMySessions, call{method: http.MethodGet, target: "/data/submitter/session?email=darth@deathstar.com", principal: &stranger})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, _, _ = serve(t, ctrl.ListMySessions, call{method: http.MethodGet, target: "/data/submitter/session"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPublicController(t *testing.T) {
	svc := newSessionService(false)
	sessions := NewSessionController(testLogger, svc)
	public := NewPublicController(testLogger, svc)
	id := createDarthSession(t, sessions)["id"].(string)
	byID := map[string]string{"sessionID": id}

	rr, _, _ := serve(t, public.GetSession, call{method: http.MethodGet, target: "/public/session/" + id, pathValues: byID})
	assert.Equal(t, http.StatusForbidden, rr.Code, "drafts are not public")
	rr, _, _ = serve(t, public.GetSession, call{method: http.MethodGet, target: "/public/session/missing", pathValues: map[string]string{"sessionID": "missing"}})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _, _ = serve(t, sessions.UpdateSession, call{method: http.MethodPut, target: "/data/session/" + id,
		body: `{"sessionStatus":"APPROVED","comments":[{"text":"welcome"}]}`, principal: &committee, pathValues: byID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr, _, data := serve(t, public.GetSession, call{method: http.MethodGet, target: "/public/session/" + id, pathValues: byID})
	require.Equal(t, http.StatusOK, rr.Code)
	session := object(t, data)
	assert.Equal(t, "The dark side", object(t, session["title"])["value"])
	assert.NotContains(t, session, "outline")
	assert.NotContains(t, session, "comments")
	assert.NotContains(t, session, "postedByMail")
	speaker := object(t, session["speakers"].([]any)[0])
	assert.NotContains(t, speaker, "email")
	assert.Equal(t, "Darth Vader", speaker["name"])

	rr, _, data = serve(t, public.ListSessions, call{method: http.MethodGet, target: "/public/conference/javazone/session",
		pathValues: map[string]string{"conferenceID": "javazone"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, object(t, data)["sessions"], 1)
}

// fakeAuthService implements domain.AuthService for handler tests.
type fakeAuthService struct {
	token string
	err   error
}

func (f *fakeAuthService) Login(ctx context.Context, email, password string) (string, error) {
	return f.token, f.err
}

func TestAuthController_Login(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svc        *fakeAuthService
		wantStatus int
		wantToken  string
	}{
		{name: "success", body: `{"email":"pk@javazone.no","password":"secret"}`, svc: &fakeAuthService{token: "jwt"}, wantStatus: http.StatusOK, wantToken: "jwt"},
		{name: "bad email", body: `{"email":"pk","password":"secret"}`, svc: &fakeAuthService{}, wantStatus: http.StatusBadRequest},
		{name: "missing password", body: `{"email":"pk@javazone.no"}`, svc: &fakeAuthService{}, wantStatus: http.StatusBadRequest},
		{name: "wrong password", body: `{"email":"pk@javazone.no","password":"x"}`, svc: &fakeAuthService{err: domain.ErrInvalidCredentials}, wantStatus: http.StatusUnauthorized},
		{name: "service error", body: `{"email":"pk@javazone.no","password":"x"}`, svc: &fakeAuthService{err: errors.New("boom")}, wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := NewAuthController(testLogger, tt.svc)
			rr, envelope, data := serve(t, ctrl.Login, call{method: http.MethodPost, target: "/auth/login", body: tt.body})
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantToken == "" {
				require.NotNil(t, envelope.Error)
				return
			}
			assert.Equal(t, map[string]any{"token": tt.wantToken, "token_type": "Bearer"}, data)
		})
	}
}
