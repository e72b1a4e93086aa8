package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pneumax/pneumax-api/internal/application/auth"
	"github.com/pneumax/pneumax-api/internal/domain/users"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

var testUser = &users.User{ID: "u-1", Email: "ada@example.com"}

func newService(t *testing.T, secret string, ttl time.Duration, clock *fakeClock) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService([]byte(secret), ttl, clock)
	require.NoError(t, err)
	return svc
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	svc := newService(t, "s3cret", time.Hour, clock)

	token, err := svc.Issue(testUser)
	require.NoError(t, err)

	id, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.Equal(t, users.ID("u-1"), id.UserID)
}

func TestTokenService_Expiry(t *testing.T) {
	issuedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := &fakeClock{now: issuedAt}
	svc := newService(t, "s3cret", time.Hour, clock)

	token, err := svc.Issue(testUser)
	require.NoError(t, err)

	tests := []struct {
		name  string
		at    time.Time
		valid bool
	}{
		{"immediately", issuedAt, true},
		{"59 minutes", issuedAt.Add(59 * time.Minute), true},
		{"exactly at expiry", issuedAt.Add(time.Hour), false},
		{"61 minutes", issuedAt.Add(61 * time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.now = tt.at
			_, err := svc.Validate(token)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, auth.ErrInvalidToken)
			}
		})
	}
}

func TestTokenService_DefaultTTL(t *testing.T) {
	svc := newService(t, "s3cret", 0, &fakeClock{now: time.Now()})

	assert.Equal(t, 24*time.Hour, svc.TTL())
}

func TestTokenService_RejectsTampering(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	svc := newService(t, "s3cret", time.Hour, clock)
	other := newService(t, "another-secret", time.Hour, clock)

	token, err := svc.Issue(testUser)
	require.NoError(t, err)
	foreign, err := other.Issue(testUser)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"email":  "ada@example.com",
		"userId": "u-1",
		"exp":    clock.now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email":  "ada@example.com",
		"userId": "u-1",
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noEmail, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": "u-1",
		"exp":    clock.now.Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":         "",
		"garbage":       "not-a-token",
		"tampered":      tampered,
		"foreign key":   foreign,
		"alg none":      noneToken,
		"missing exp":   noExp,
		"missing email": noEmail,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Validate(tok)
			assert.Equal(t, auth.ErrInvalidToken, err)
		})
	}
}

func TestTokenService_ExpiredAndTamperedLookTheSame(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	svc := newService(t, "s3cret", time.Hour, clock)
	token, err := svc.Issue(testUser)
	require.NoError(t, err)

	_, tamperedErr := svc.Validate(token + "x")
	clock.now = clock.now.Add(2 * time.Hour)
	_, expiredErr := svc.Validate(token)

	assert.Equal(t, tamperedErr, expiredErr)
}

func TestNewTokenService_EmptySecret(t *testing.T) {
	_, err := auth.NewTokenService(nil, time.Hour, nil)
	assert.Error(t, err)
}

func TestTokenService_IssueRequiresIdentity(t *testing.T) {
	svc := newService(t, "s3cret", time.Hour, &fakeClock{now: time.Now()})

	_, err := svc.Issue(&users.User{Email: "x@example.com"})
	assert.Error(t, err)
}
