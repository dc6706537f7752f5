package user

import (
	"context"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/fault"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = fault.New(fault.KindNotFound, "user not found")

// User is a registered account.
type User struct {
	ID    string
	Email string
	Name  string
	Role  auth.Role
}

// Repository defines read operations for accounts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
