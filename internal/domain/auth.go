package domain

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"
)

// RoleAdmin marks a member of the program committee.
const RoleAdmin = "admin"

// Principal is the caller identified by a verified token. The zero value is anonymous.
type Principal struct {
	Email string
	Roles []string
}

// IsAnonymous reports whether no one is signed in.
func (p Principal) IsAnonymous() bool {
	return p.Email == ""
}

// IsAdmin reports whether the caller belongs to the program committee.
func (p Principal) IsAdmin() bool {
	return lo.Contains(p.Roles, RoleAdmin)
}

// CanRead reports whether the caller may see the full projection of s.
func (p Principal) CanRead(s *Session) bool {
	return p.IsAdmin() || s.IsRelatedToEmail(p.Email)
}

// NormalizeEmail trims and lower-cases an address for comparisons and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PasswordHasher hashes and verifies passwords. Implementations may use bcrypt, argon2, etc.
type PasswordHasher interface {
	Hash(password string) (hash string, err error)
	Compare(hash, password string) error
}

// TokenIssuer issues tokens (e.g. JWT) for an authenticated principal.
type TokenIssuer interface {
	Issue(p Principal, expiry time.Duration) (string, error)
}

// TokenVerifier verifies a token and returns who it was issued to.
type TokenVerifier interface {
	Verify(token string) (Principal, error)
}

// AuthService signs in program committee members.
type AuthService interface {
	Login(ctx context.Context, email, password string) (token string, err error)
}
