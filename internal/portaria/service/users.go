package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidLogin       = errors.New("login is required")
	ErrWeakPassword       = errors.New("password must have at least 6 characters")
)

const minPasswordLength = 6

var vendorTitleTerms = []string{"vendas", "vendedor", "vendedora", "comercial", "representante"}

// RoleForJobTitle derives the account role from a free-text job title.
func RoleForJobTitle(title string) types.Role {
	t := strings.ToLower(strings.TrimSpace(title))
	switch {
	case t == "porteiro":
		return types.RolePorter
	case strings.Contains(t, "admin"):
		// also matches "administrador"
		return types.RoleAdmin
	}
	for _, term := range vendorTitleTerms {
		if strings.Contains(t, term) {
			return types.RoleVendor
		}
	}
	return types.RoleStaff
}

type UserService struct {
	users store.UserStore
	opts  options
}

func NewUserService(users store.UserStore, opts ...Option) *UserService {
	return &UserService{users: users, opts: buildOptions("users", opts)}
}

func (s *UserService) Create(ctx context.Context, req types.CreateUserRequest) (store.UserRecord, error) {
	if len(req.Password) < minPasswordLength {
		return store.UserRecord{}, ErrWeakPassword
	}
	return s.create(ctx, req)
}

func (s *UserService) create(ctx context.Context, req types.CreateUserRequest) (store.UserRecord, error) {
	login := strings.ToLower(strings.TrimSpace(req.Login))
	if login == "" {
		return store.UserRecord{}, ErrInvalidLogin
	}
	if strings.TrimSpace(req.FirstName) == "" {
		return store.UserRecord{}, ErrInvalidSubjectName
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("hash password: %w", err)
	}

	rec, err := s.users.CreateUser(ctx, store.UserRecord{
		Login:        login,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		JobTitle:     strings.TrimSpace(req.JobTitle),
		Role:         RoleForJobTitle(req.JobTitle),
		PhotoURL:     strings.TrimSpace(req.PhotoURL),
		CreatedAt:    s.opts.now(),
	})
	if err != nil {
		return store.UserRecord{}, err
	}
	s.opts.logger.InfoContext(ctx, "user created", "user_id", rec.ID, "role", rec.Role)
	return rec, nil
}

// EnsureUser creates the account described by req unless its login is
// already taken, and reports whether it did. It is meant for operator
// supplied bootstrap accounts, so the password length rule is not applied.
func (s *UserService) EnsureUser(ctx context.Context, req types.CreateUserRequest) (bool, error) {
	if strings.TrimSpace(req.Password) == "" {
		return false, ErrWeakPassword
	}

	req.Login = strings.ToLower(strings.TrimSpace(req.Login))
	if req.Login == "" {
		return false, ErrInvalidLogin
	}

	_, err := s.users.FindByLogin(ctx, req.Login)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return false, fmt.Errorf("find %q: %w", req.Login, err)
	}

	_, err = s.create(ctx, req)
	if errors.Is(err, store.ErrUserExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureAdmin makes sure an admin account with login exists.
func (s *UserService) EnsureAdmin(ctx context.Context, login, password string) (bool, error) {
	return s.EnsureUser(ctx, types.CreateUserRequest{
		Login:     login,
		Password:  password,
		FirstName: "Admin",
		JobTitle:  "Administrador",
	})
}

// Authenticate returns the account for login when password matches.
// Unknown logins and wrong passwords both yield ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, login, password string) (store.UserRecord, error) {
	rec, err := s.users.FindByLogin(ctx, login)
	if errors.Is(err, store.ErrUserNotFound) {
		return store.UserRecord{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.UserRecord{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return store.UserRecord{}, ErrInvalidCredentials
	}
	return rec, nil
}

func (s *UserService) Get(ctx context.Context, id string) (store.UserRecord, error) {
	return s.users.FindByID(ctx, id)
}

// UserView strips credentials from rec.
func UserView(rec store.UserRecord) types.User {
	return types.User{
		ID:        rec.ID,
		Login:     rec.Login,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		JobTitle:  rec.JobTitle,
		Role:      rec.Role,
		PhotoURL:  rec.PhotoURL,
	}
}
