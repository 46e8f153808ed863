package services

import (
	"context"
	"fmt"
	"time"

	"sleepingpill/internal/domain"
)

// CommitteeMember is a program committee account configured at startup.
type CommitteeMember struct {
	Email        string
	PasswordHash string
}

type authService struct {
	members   map[string]string
	hasher    domain.PasswordHasher
	issuer    domain.TokenIssuer
	jwtExpiry time.Duration
}

// NewAuthService creates an AuthService for the configured committee members.
func NewAuthService(members []CommitteeMember, hasher domain.PasswordHasher, issuer domain.TokenIssuer, jwtExpiry time.Duration) domain.AuthService {
	byEmail := make(map[string]string, len(members))
	for _, m := range members {
		if m.Email == "" || m.PasswordHash == "" {
			continue
		}
		byEmail[domain.NormalizeEmail(m.Email)] = m.PasswordHash
	}
	return &authService{
		members:   byEmail,
		hasher:    hasher,
		issuer:    issuer,
		jwtExpiry: jwtExpiry,
	}
}

func (s *authService) Login(ctx context.Context, email, password string) (string, error) {
	email = domain.NormalizeEmail(email)
	hash, ok := s.members[email]
	if !ok {
		return "", domain.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(hash, password); err != nil {
		return "", domain.ErrInvalidCredentials
	}
	token, err := s.issuer.Issue(domain.Principal{Email: email, Roles: []string{domain.RoleAdmin}}, s.jwtExpiry)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}
