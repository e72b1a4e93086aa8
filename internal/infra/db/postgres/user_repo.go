package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	domain "github.com/pneumax/pneumax-api/internal/domain/users"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `
SELECT id, email, password_hash, first_name, last_name, created_at, is_active
FROM pneumax_users
WHERE email=$1
LIMIT 1;
`
	var u domain.User
	err := r.db.QueryRowContext(ctx, q, strings.ToLower(email)).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// Create inserts u; a duplicate email yields ErrEmailTaken
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (domain.ID, error) {
	const q = `
INSERT INTO pneumax_users
  (id, email, password_hash, first_name, last_name, created_at, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7);
`
	if u.ID == "" {
		u.ID = domain.ID(uuid.NewString())
	}
	_, err := r.db.ExecContext(ctx, q,
		u.ID, strings.ToLower(u.Email), u.PasswordHash, u.FirstName, u.LastName, u.CreatedAt, u.IsActive,
	)
	if isDuplicate(err) {
		return "", domain.ErrEmailTaken
	}
	if err != nil {
		return "", err
	}
	return u.ID, nil
}
