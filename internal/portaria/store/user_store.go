package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

type UserRecord struct {
	ID           string
	Login        string
	PasswordHash string
	FirstName    string
	LastName     string
	JobTitle     string
	Role         types.Role
	PhotoURL     string
	CreatedAt    time.Time
}

type UserStore interface {
	// CreateUser returns ErrUserExists when the login is taken.
	CreateUser(ctx context.Context, rec UserRecord) (UserRecord, error)
	FindByID(ctx context.Context, id string) (UserRecord, error)
	FindByLogin(ctx context.Context, login string) (UserRecord, error)
}
