package users

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Repository port for accounts. FindByEmail returns ErrNotFound when absent,
// Create returns ErrEmailTaken on a duplicate email.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) (ID, error)
}
