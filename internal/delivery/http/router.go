package http

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "sleepingpill/docs"
	"sleepingpill/internal/delivery/http/controllers"
	"sleepingpill/internal/delivery/http/middleware"
	"sleepingpill/internal/domain"
)

// RouterConfig holds what NewRouter needs to wire the routes.
type RouterConfig struct {
	Logger             *slog.Logger
	TokenVerifier      domain.TokenVerifier
	SessionController  *controllers.SessionController
	PublicController   *controllers.PublicController
	AuthController     *controllers.AuthController
	CORSAllowedOrigins []string
}

// NewRouter initializes the HTTP router with all application routes, wrapped in
// CORS and request logging.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	requireAuth := middleware.RequireAuth(cfg.TokenVerifier, cfg.Logger)
	requireAdmin := middleware.RequireAdmin(cfg.TokenVerifier, cfg.Logger)

	// Program committee and speakers
	s := cfg.SessionController
	mux.HandleFunc("GET /data/conference", requireAdmin(s.ListConferences))
	mux.HandleFunc("GET /data/conference/{conferenceID}/session", requireAdmin(s.ListConferenceSessions))
	mux.HandleFunc("POST /data/conference/{conferenceID}/session", requireAuth(s.CreateSession))
	mux.HandleFunc("GET /data/session/{sessionID}", requireAuth(s.GetSession))
	mux.HandleFunc("PUT /data/session/{sessionID}", requireAuth(s.UpdateSession))
	mux.HandleFunc("DELETE /data/session/{sessionID}", requireAdmin(s.DeleteSession))
	mux.HandleFunc("GET /data/session/{sessionID}/history", requireAdmin(s.History))
	mux.HandleFunc("GET /data/submitter/session", requireAuth(s.ListMySessions))

	// Public program, no authentication
	p := cfg.PublicController
	mux.HandleFunc("GET /public/conference/{conferenceID}/session", p.ListSessions)
	mux.HandleFunc("GET /public/session/{sessionID}", p.GetSession)

	// Auth
	mux.HandleFunc("POST /auth/login", cfg.AuthController.Login)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return middleware.LoggingMiddleware(cfg.Logger, middleware.CORS(cfg.CORSAllowedOrigins, mux))
}
