package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepingpill/internal/adapters/auth"
	"sleepingpill/internal/delivery/http/controllers"
	"sleepingpill/internal/delivery/http/helpers"
	"sleepingpill/internal/domain"
	"sleepingpill/internal/repository/memory"
	"sleepingpill/internal/services"
)

const testSecret = "router-test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := services.NewSessionService(logger, memory.NewEventRepository(), services.NewSessionHolder(logger), nil, services.SessionServiceOptions{})
	hasher := auth.NewBcryptHasher(4)
	hash, err := hasher.Hash("committee-password")
	require.NoError(t, err)
	authSvc := services.NewAuthService([]services.CommitteeMember{{Email: "pk@javazone.no", PasswordHash: hash}},
		hasher, auth.NewJWTIssuer(testSecret), time.Hour)

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Logger:             logger,
		TokenVerifier:      auth.NewJWTVerifier(testSecret),
		SessionController:  controllers.NewSessionController(logger, svc),
		PublicController:   controllers.NewPublicController(logger, svc),
		AuthController:     controllers.NewAuthController(logger, authSvc),
		CORSAllowedOrigins: []string{"https://cfp.javazone.no"},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token, body string) (int, helpers.APIResponse) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var envelope helpers.APIResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&envelope))
	return res.StatusCode, envelope
}

func TestRouter_EndToEnd(t *testing.T) {
	srv := newTestServer(t)

	status, envelope := do(t, srv, http.MethodPost, "/auth/login", "", `{"email":"pk@javazone.no","password":"committee-password"}`)
	require.Equal(t, http.StatusOK, status)
	adminToken := envelope.Data.(map[string]any)["token"].(string)

	speakerToken, err := auth.NewJWTIssuer(testSecret).Issue(domain.Principal{Email: "darth@deathstar.com"}, time.Hour)
	require.NoError(t, err)

	status, _ = do(t, srv, http.MethodPost, "/data/conference/javazone/session", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, envelope = do(t, srv, http.MethodPost, "/data/conference/javazone/session", speakerToken,
		`{"title":{"value":"The dark side","visibility":"public"},"speakers":[{"name":"Darth","email":"darth@deathstar.com"}]}`)
	require.Equal(t, http.StatusCreated, status)
	id := envelope.Data.(map[string]any)["id"].(string)

	status, _ = do(t, srv, http.MethodGet, "/data/conference", speakerToken, "")
	assert.Equal(t, http.StatusForbidden, status, "conference listing is for the committee")
	status, _ = do(t, srv, http.MethodGet, "/data/conference", adminToken, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, srv, http.MethodGet, "/public/session/"+id, "", "")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = do(t, srv, http.MethodPut, "/data/session/"+id, adminToken, `{"sessionStatus":"APPROVED"}`)
	require.Equal(t, http.StatusOK, status)

	status, envelope = do(t, srv, http.MethodGet, "/public/session/"+id, "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "APPROVED", envelope.Data.(map[string]any)["sessionStatus"])
	status, _ = do(t, srv, http.MethodGet, "/public/session/"+id, "not-a-jwt", "")
	assert.Equal(t, http.StatusOK, status, "public routes ignore the Authorization header")

	status, _ = do(t, srv, http.MethodGet, "/data/session/"+id+"/history", speakerToken, "")
	assert.Equal(t, http.StatusForbidden, status)
	status, envelope = do(t, srv, http.MethodGet, "/data/session/"+id+"/history", adminToken, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, envelope.Data, 2)

	status, _ = do(t, srv, http.MethodDelete, "/data/session/"+id, adminToken, "")
	require.Equal(t, http.StatusOK, status)
	status, _ = do(t, srv, http.MethodGet, "/public/session/"+id, "", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_CORSAndRequestID(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/data/session/abc", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://cfp.javazone.no")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "https://cfp.javazone.no", res.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))
}
