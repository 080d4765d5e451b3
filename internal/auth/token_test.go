// ABOUTME: Unit tests for access token issue and verification
// ABOUTME: Tests claims, tampering, wrong secrets, and expiry under a fake clock

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenTestSecret = []byte("token-service-test-secret-32by!!")

// fakeClock is a settable time source for expiry tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTokenService(t *testing.T, clock *fakeClock) *TokenService {
	t.Helper()
	svc, err := NewTokenService(tokenTestSecret, "HS256", WithClock(clock.Now))
	require.NoError(t, err)
	return svc
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	svc := newTestTokenService(t, clock)

	token, err := svc.Issue("42", "farmer", "9876543210", 0)
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "farmer", claims.Role)
	assert.Equal(t, "9876543210", claims.Phone)
	assert.Equal(t, clock.t.Add(DefaultTokenTTL), claims.ExpiresAt)
}

func TestTokenService_SubSecondIssueKeepsFullLifetime(t *testing.T) {
	issued := time.Unix(1_700_000_000, 700*int64(time.Millisecond))
	clock := &fakeClock{t: issued}
	svc := newTestTokenService(t, clock)
	ttl := 10 * time.Minute

	token, err := svc.Issue("7", "farmer", "9876543210", ttl)
	require.NoError(t, err)

	clock.t = issued.Add(ttl - 400*time.Millisecond)
	_, err = svc.Verify(token)
	assert.NoError(t, err)

	clock.t = issued.Add(ttl + time.Second)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestCeilSecond(t *testing.T) {
	whole := time.Unix(1_700_000_000, 0)
	assert.Equal(t, whole, ceilSecond(whole))
	assert.Equal(t, whole.Add(time.Second), ceilSecond(whole.Add(time.Nanosecond)))
	assert.Equal(t, whole.Add(time.Second), ceilSecond(whole.Add(999*time.Millisecond)))
}

func TestTokenService_ExpiryIsDistinguishable(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	svc := newTestTokenService(t, clock)
	ttl := 10 * time.Minute

	token, err := svc.Issue("7", "farmer", "9876543210", ttl)
	require.NoError(t, err)

	for _, step := range []time.Duration{0, time.Minute, 5 * time.Minute, ttl - time.Second} {
		clock.t = time.Unix(1_700_000_000, 0).Add(step)
		_, err := svc.Verify(token)
		assert.NoError(t, err, "at +%s", step)
	}

	for _, step := range []time.Duration{ttl + time.Second, ttl + time.Hour} {
		clock.t = time.Unix(1_700_000_000, 0).Add(step)
		_, err := svc.Verify(token)
		assert.True(t, errors.Is(err, ErrExpiredToken), "at +%s got %v", step, err)
		assert.False(t, errors.Is(err, ErrInvalidToken), "expired must not read as invalid")
	}
}

func TestTokenService_InvalidTokens(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestTokenService(t, clock)

	other, err := NewTokenService([]byte("a-different-secret-of-32-bytes!!"), "HS256", WithClock(clock.Now))
	require.NoError(t, err)
	foreign, err := other.Issue("1", "admin", "9999999999", time.Hour)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "1",
		"exp": clock.t.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "farmer",
		"exp":  clock.t.Add(time.Hour).Unix(),
	}).SignedString(tokenTestSecret)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
	}).SignedString(tokenTestSecret)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage token", "not-a-jwt-token"},
		{"malformed JWT", "header.payload.signature"},
		{"wrong secret", foreign},
		{"alg none", noneToken},
		{"missing sub", noSub},
		{"missing exp", noExp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
			assert.False(t, errors.Is(err, ErrExpiredToken))
		})
	}
}

func TestTokenService_TamperAnyCharacter(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	svc := newTestTokenService(t, clock)

	token, err := svc.Issue("42", "farmer", "9876543210", time.Hour)
	require.NoError(t, err)

	for i := range token {
		if token[i] == '.' {
			continue
		}
		replacement := byte('A')
		if token[i] == 'A' {
			replacement = 'B'
		}
		tampered := token[:i] + string(replacement) + token[i+1:]

		_, err := svc.Verify(tampered)
		require.Error(t, err, "tampering index %d must fail", i)
		assert.True(t, errors.Is(err, ErrInvalidToken), "index %d: got %v", i, err)
	}
}

func TestTokenService_ExpiredTamperedIsStillInvalid(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	svc := newTestTokenService(t, clock)

	token, err := svc.Issue("42", "farmer", "9876543210", time.Minute)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	parts := strings.Split(token, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	_, err = svc.Verify(strings.Join(parts, "."))
	assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
}

func TestTokenService_ReloginDoesNotInvalidate(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	svc := newTestTokenService(t, clock)

	first, err := svc.Issue("42", "farmer", "9876543210", 0)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := svc.Issue("42", "farmer", "9876543210", 0)
	require.NoError(t, err)

	_, err = svc.Verify(first)
	assert.NoError(t, err)
	_, err = svc.Verify(second)
	assert.NoError(t, err)
}

func TestNewTokenService_Validation(t *testing.T) {
	_, err := NewTokenService(nil, "HS256")
	assert.Error(t, err)

	_, err = NewTokenService(tokenTestSecret, "RS256")
	assert.Error(t, err)

	svc, err := NewTokenService(tokenTestSecret, "", WithDefaultTTL(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, svc.TTL())

	_, err = svc.Issue("", "farmer", "1", 0)
	assert.True(t, errors.Is(err, ErrMissingClaim))
}

func TestTokenService_AlgorithmMismatch(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	hs512, err := NewTokenService(tokenTestSecret, "HS512", WithClock(clock.Now))
	require.NoError(t, err)
	hs256 := newTestTokenService(t, clock)

	token, err := hs512.Issue("42", "farmer", "1", time.Hour)
	require.NoError(t, err)

	_, err = hs256.Verify(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
	_, err = hs512.Verify(token)
	assert.NoError(t, err)
}
