package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/pneumax/pneumax-api/internal/application"
	"github.com/pneumax/pneumax-api/internal/domain/users"
)

// TokenIssuer issues and validates session tokens.
type TokenIssuer interface {
	Issue(u *users.User) (string, error)
	Validate(token string) (users.Identity, error)
}

// Service implements registration, login and profile lookup.
type Service struct {
	Users   users.Repository
	Tokens  TokenIssuer
	Clock   application.Clock
	Log     logrus.FieldLogger
	Timeout time.Duration
	// HashCost defaults to bcrypt.DefaultCost.
	HashCost int

	dummyOnce sync.Once
	dummyHash []byte
}

// compareHash is swapped in tests.
var compareHash = bcrypt.CompareHashAndPassword

type RegisterCommand struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type LoginResult struct {
	Token string
	User  *users.User
}

// Register creates an active account and returns its ID.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (users.ID, error) {
	email := normalizeEmail(cmd.Email)
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"email", email},
		{"password", cmd.Password},
		{"firstName", strings.TrimSpace(cmd.FirstName)},
		{"lastName", strings.TrimSpace(cmd.LastName)},
	} {
		if f.val == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return "", application.Fail(application.ErrValidation, "missing required fields: "+strings.Join(missing, ", "), nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", application.Fail(application.ErrValidation, "invalid email address", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.cost())
	if err != nil {
		// bcrypt rejects passwords longer than 72 bytes
		return "", application.Fail(application.ErrValidation, "password is not acceptable", err)
	}

	u := &users.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(cmd.FirstName),
		LastName:     strings.TrimSpace(cmd.LastName),
		CreatedAt:    s.now(),
		IsActive:     true,
	}

	id, err := application.Bounded(ctx, s.Timeout, func(ctx context.Context) (users.ID, error) {
		return s.Users.Create(ctx, u)
	})
	switch {
	case errors.Is(err, users.ErrEmailTaken):
		return "", application.Fail(application.ErrConflict, "User already exists", err)
	case err != nil:
		return "", storageFailure("create user", err)
	}

	s.logger().WithField("user_id", id).Info("user registered")
	return id, nil
}

// Login verifies credentials and issues a session token. Unknown users,
// wrong passwords and inactive accounts all yield the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, application.Fail(application.ErrValidation, "email and password are required", nil)
	}

	u, err := s.findUser(ctx, email)
	switch {
	case errors.Is(err, users.ErrNotFound):
		// same bcrypt work as a real account so timing does not reveal the email
		_ = compareHash(s.dummy(), []byte(password))
		return nil, invalidCredentials(err)
	case err != nil:
		return nil, storageFailure("find user", err)
	}

	if err := compareHash([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, invalidCredentials(err)
	}
	if !u.IsActive {
		return nil, invalidCredentials(errors.New("account inactive"))
	}

	token, err := s.Tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &LoginResult{Token: token, User: u}, nil
}

// Profile returns the account behind token.
func (s *Service) Profile(ctx context.Context, token string) (*users.User, error) {
	who, err := s.Tokens.Validate(token)
	if err != nil {
		return nil, application.Fail(application.ErrUnauthorized, "Token is invalid", err)
	}

	u, err := s.findUser(ctx, who.Email)
	switch {
	case errors.Is(err, users.ErrNotFound):
		return nil, application.Fail(application.ErrNotFound, "User not found", err)
	case err != nil:
		return nil, storageFailure("find user", err)
	}
	return u, nil
}

func invalidCredentials(cause error) error {
	return application.Fail(application.ErrUnauthorized, "Invalid credentials", cause)
}

func storageFailure(op string, err error) error {
	return application.CallFailure(application.ErrStorage, op, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) findUser(ctx context.Context, email string) (*users.User, error) {
	return application.Bounded(ctx, s.Timeout, func(ctx context.Context) (*users.User, error) {
		return s.Users.FindByEmail(ctx, email)
	})
}

// dummy returns a hash at the configured cost, compared against for unknown accounts.
func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		// fails only on an out-of-range cost, which Register rejects as well
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("pneumax-no-such-account"), s.cost())
	})
	return s.dummyHash
}

func (s *Service) cost() int {
	if s.HashCost == 0 {
		return bcrypt.DefaultCost
	}
	return s.HashCost
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func (s *Service) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
