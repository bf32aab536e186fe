package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
)

type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateUser(ctx context.Context, rec store.UserRecord) (store.UserRecord, error) {
	rec.Login = strings.ToLower(strings.TrimSpace(rec.Login))
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	m := userModel{
		ID:           rec.ID,
		Login:        rec.Login,
		PasswordHash: rec.PasswordHash,
		FirstName:    rec.FirstName,
		LastName:     rec.LastName,
		JobTitle:     rec.JobTitle,
		Role:         string(rec.Role),
		CreatedAtMs:  rec.CreatedAt.UTC().UnixMilli(),
	}
	if rec.PhotoURL != "" {
		photo := rec.PhotoURL
		m.PhotoURL = &photo
	}

	tx := s.db.WithContext(ctx).Where("login = ?", m.Login).FirstOrCreate(&m)
	if tx.Error != nil {
		return store.UserRecord{}, fmt.Errorf("CreateUser: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return store.UserRecord{}, store.ErrUserExists
	}
	return rec, nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (store.UserRecord, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *UserStore) FindByLogin(ctx context.Context, login string) (store.UserRecord, error) {
	return s.findOne(ctx, "login = ?", strings.ToLower(strings.TrimSpace(login)))
}

func (s *UserStore) findOne(ctx context.Context, cond string, arg string) (store.UserRecord, error) {
	var m userModel
	err := s.db.WithContext(ctx).Where(cond, arg).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.UserRecord{}, store.ErrUserNotFound
	}
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("find user: %w", err)
	}
	return m.record(), nil
}
