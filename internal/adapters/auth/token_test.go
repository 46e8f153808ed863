package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepingpill/internal/domain"
)

func TestJWTIssuer_Issue(t *testing.T) {
	secret := "test-secret"
	issuer := NewJWTIssuer(secret)

	token, err := issuer.Issue(domain.Principal{Email: "pk@example.com", Roles: []string{domain.RoleAdmin}}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	claims, ok := parsed.Claims.(*jwtClaims)
	require.True(t, ok)
	assert.Equal(t, "pk@example.com", claims.Subject)
	assert.Equal(t, "pk@example.com", claims.Email)
	assert.Equal(t, []string{domain.RoleAdmin}, claims.Roles)
}

func TestJWTVerifier_Verify(t *testing.T) {
	issuer := NewJWTIssuer("secret")
	verifier := NewJWTVerifier("secret")

	t.Run("round trip", func(t *testing.T) {
		token, err := issuer.Issue(domain.Principal{Email: "Darth@DeathStar.com"}, time.Hour)
		require.NoError(t, err)

		p, err := verifier.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "darth@deathstar.com", p.Email)
		assert.False(t, p.IsAdmin())
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewJWTIssuer("other").Issue(domain.Principal{Email: "a@b.c"}, time.Hour)
		require.NoError(t, err)

		_, err = verifier.Verify(token)
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := issuer.Issue(domain.Principal{Email: "a@b.c"}, -time.Minute)
		require.NoError(t, err)

		_, err = verifier.Verify(token)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := verifier.Verify("not-a-token")
		require.Error(t, err)
	})
}
