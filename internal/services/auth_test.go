package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepingpill/internal/domain"
)

// fakePasswordHasher implements domain.PasswordHasher for tests.
type fakePasswordHasher struct{}

func (fakePasswordHasher) Hash(password string) (string, error) { return "hash-" + password, nil }
func (fakePasswordHasher) Compare(hash, password string) error {
	if hash != "hash-"+password {
		return errors.New("mismatch")
	}
	return nil
}

// fakeTokenIssuer implements domain.TokenIssuer for tests.
type fakeTokenIssuer struct {
	issued []domain.Principal
	err    error
}

func (f *fakeTokenIssuer) Issue(p domain.Principal, expiry time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.issued = append(f.issued, p)
	return "token-" + p.Email, nil
}

func TestAuthService_Login(t *testing.T) {
	issuer := &fakeTokenIssuer{}
	svc := NewAuthService([]CommitteeMember{
		{Email: "PK@Example.com", PasswordHash: "hash-secret"},
		{Email: "nohash@example.com"},
	}, fakePasswordHasher{}, issuer, time.Hour)

	token, err := svc.Login(context.Background(), " pk@example.com ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "token-pk@example.com", token)
	require.Len(t, issuer.issued, 1)
	assert.True(t, issuer.issued[0].IsAdmin())

	_, err = svc.Login(context.Background(), "pk@example.com", "wrong")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Login(context.Background(), "nohash@example.com", "")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Login(context.Background(), "stranger@example.com", "secret")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthService_LoginIssuerFails(t *testing.T) {
	svc := NewAuthService([]CommitteeMember{{Email: "pk@example.com", PasswordHash: "hash-secret"}},
		fakePasswordHasher{}, &fakeTokenIssuer{err: errors.New("no key")}, time.Hour)
	_, err := svc.Login(context.Background(), "pk@example.com", "secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
}
