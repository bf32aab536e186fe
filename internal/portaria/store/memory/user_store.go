package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
)

type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]store.UserRecord
	byLogin map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]store.UserRecord),
		byLogin: make(map[string]string),
	}
}

func (s *UserStore) CreateUser(_ context.Context, rec store.UserRecord) (store.UserRecord, error) {
	login := strings.ToLower(strings.TrimSpace(rec.Login))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byLogin[login]; taken {
		return store.UserRecord{}, store.ErrUserExists
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Login = login
	s.byID[rec.ID] = rec
	s.byLogin[login] = rec.ID
	return rec, nil
}

func (s *UserStore) FindByID(_ context.Context, id string) (store.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return store.UserRecord{}, store.ErrUserNotFound
	}
	return rec, nil
}

func (s *UserStore) FindByLogin(_ context.Context, login string) (store.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byLogin[strings.ToLower(strings.TrimSpace(login))]
	if !ok {
		return store.UserRecord{}, store.ErrUserNotFound
	}
	return s.byID[id], nil
}
