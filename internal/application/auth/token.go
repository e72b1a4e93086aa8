package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pneumax/pneumax-api/internal/application"
	"github.com/pneumax/pneumax-api/internal/domain/users"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// ErrInvalidToken is returned for every validation failure. Callers cannot
// tell a tampered token from an expired one.
var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 session tokens. Tokens are
// self-contained; there is no revocation list.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  application.Clock
}

func NewTokenService(secret []byte, ttl time.Duration, clock application.Clock) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &TokenService{secret: secret, ttl: ttl, clock: clock}, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for u that expires after the configured TTL.
func (s *TokenService) Issue(u *users.User) (string, error) {
	if u == nil || u.Email == "" || u.ID == "" {
		return "", errors.New("cannot issue token without email and user id")
	}
	now := s.clock.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email:  u.Email,
		UserID: string(u.ID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, algorithm, required claims and expiry
// (a token is invalid at or after exp).
func (s *TokenService) Validate(token string) (users.Identity, error) {
	if token == "" {
		return users.Identity{}, ErrInvalidToken
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return users.Identity{}, ErrInvalidToken
	}
	if c.Email == "" || c.UserID == "" {
		return users.Identity{}, ErrInvalidToken
	}
	return users.Identity{Email: c.Email, UserID: users.ID(c.UserID)}, nil
}
