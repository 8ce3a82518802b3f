package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestTokenIssueAndVerify(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret)
	require.NoError(t, err)

	token, err := issuer.Issue("user-123", "a@b.com")
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	claims, ok := issuer.Verify(token)
	require.True(t, ok)
	require.Equal(t, "user-123", claims.UserID)
	require.Equal(t, "a@b.com", claims.Email)
	require.NotNil(t, claims.ExpiresAt)
	require.Equal(t, claims.IssuedAt.Add(DefaultTokenTTL), claims.ExpiresAt.Time)
}

func TestTokenRequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer(nil)
	require.Error(t, err)
}

func TestTokenVerifyRejectsTampering(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret)
	require.NoError(t, err)
	token, err := issuer.Issue("user-123", "a@b.com")
	require.NoError(t, err)

	segments := strings.Split(token, ".")
	payload := []byte(segments[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := segments[0] + "." + string(payload) + "." + segments[2]
	_, ok := issuer.Verify(tampered)
	require.False(t, ok)
}

func TestTokenVerifyRejectsWrongSecret(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret)
	require.NoError(t, err)
	other, err := NewTokenIssuer([]byte("other-secret"))
	require.NoError(t, err)

	token, err := issuer.Issue("user-123", "a@b.com")
	require.NoError(t, err)
	_, ok := other.Verify(token)
	require.False(t, ok)
}

func TestTokenVerifyMalformed(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret)
	require.NoError(t, err)
	for _, token := range []string{"", "not-a-token", "a.b", "a.b.c", "..."} {
		_, ok := issuer.Verify(token)
		require.False(t, ok, "token %q should not verify", token)
	}
}

func TestTokenExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	clock := issued
	issuer, err := NewTokenIssuer(testSecret, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	token, err := issuer.Issue("user-123", "a@b.com")
	require.NoError(t, err)

	// A token expiring exactly now is still valid; one second past is not.
	clock = issued.Add(DefaultTokenTTL)
	_, ok := issuer.Verify(token)
	require.True(t, ok)

	clock = issued.Add(DefaultTokenTTL + time.Second)
	_, ok = issuer.Verify(token)
	require.False(t, ok)
}
