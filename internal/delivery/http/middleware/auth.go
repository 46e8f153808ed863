package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	h "sleepingpill/internal/delivery/http/helpers"
	"sleepingpill/internal/domain"
)

type contextKey string

const principalKey contextKey = "principal"

// SetPrincipal returns a context carrying the authenticated caller. Used by auth middleware.
func SetPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(domain.Principal)
	return p, ok && !p.IsAnonymous()
}

// bearerToken extracts the token of an "Authorization: Bearer" header. present
// is false when no header was sent; a non-empty problem describes a malformed one.
func bearerToken(r *http.Request) (token string, present bool, problem string) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false, ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", true, "invalid authorization format"
	}
	token = strings.TrimSpace(auth[len(prefix):])
	if token == "" {
		return "", true, "missing token"
	}
	return token, true, ""
}

// authenticate verifies the bearer token, if one was sent. It writes a 401 and
// returns false for a malformed or invalid token.
func authenticate(w http.ResponseWriter, r *http.Request, verifier domain.TokenVerifier, logger *slog.Logger) (*http.Request, bool) {
	token, present, problem := bearerToken(r)
	if !present {
		return r, true
	}
	if problem != "" {
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, problem)
		return r, false
	}
	p, err := verifier.Verify(token)
	if err != nil {
		logger.DebugContext(r.Context(), "token rejected", "path", r.URL.Path, "err", err)
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid or expired token")
		return r, false
	}
	return r.WithContext(SetPrincipal(r.Context(), p)), true
}

// RequireAuth returns a wrapper that validates the Bearer token and sets the principal in the request context.
// If the token is missing or invalid, it responds with 401 and does not call next.
func RequireAuth(verifier domain.TokenVerifier, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			r, ok := authenticate(w, r, verifier, logger)
			if !ok {
				return
			}
			if _, ok := PrincipalFromContext(r.Context()); !ok {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "missing authorization header")
				return
			}
			next(w, r)
		}
	}
}

// RequireAdmin is RequireAuth restricted to program committee members; others get 403.
func RequireAdmin(verifier domain.TokenVerifier, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	requireAuth := RequireAuth(verifier, logger)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return requireAuth(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFromContext(r.Context())
			if !p.IsAdmin() {
				h.WriteJSONError(w, http.StatusForbidden, h.ErrCodeForbidden, "program committee only")
				return
			}
			next(w, r)
		})
	}
}
