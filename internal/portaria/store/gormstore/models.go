package gormstore

import (
	"time"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/token"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

// Times are stored as unix milliseconds to match the SQLite schema.

type userModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	Login        string `gorm:"uniqueIndex;not null;size:128"`
	PasswordHash string `gorm:"not null"`
	FirstName    string `gorm:"not null"`
	LastName     string `gorm:"not null;default:''"`
	JobTitle     string `gorm:"not null;default:''"`
	Role         string `gorm:"not null;size:16"`
	PhotoURL     *string
	CreatedAtMs  int64 `gorm:"not null"`
}

func (userModel) TableName() string { return "users" }

type tokenModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	OwnerID     string `gorm:"not null;size:36;index:idx_access_tokens_owner_kind"`
	Secret      string `gorm:"not null"`
	Digest      string `gorm:"not null;size:64;index:idx_access_tokens_digest_kind"`
	Payload     string `gorm:"not null"`
	Kind        string `gorm:"not null;size:16;index:idx_access_tokens_digest_kind;index:idx_access_tokens_owner_kind"`
	ExpiresAtMs int64  `gorm:"not null;index"`
	IsUsed      bool   `gorm:"not null;default:false"`
	UsedAtMs    *int64
	UsedBy      *string
	CreatedAtMs int64 `gorm:"not null"`
}

func (tokenModel) TableName() string { return "access_tokens" }

type auditModel struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	OwnerID      *string
	ScannerID    string `gorm:"not null;default:''"`
	Action       string `gorm:"not null"`
	Success      bool   `gorm:"not null"`
	Payload      string `gorm:"not null;default:''"`
	ErrorMessage *string
	CreatedAtMs  int64 `gorm:"not null;index"`
}

func (auditModel) TableName() string { return "access_logs" }

func tokenToModel(rec store.TokenRecord) tokenModel {
	m := tokenModel{
		ID:          rec.ID,
		OwnerID:     rec.OwnerID,
		Secret:      rec.Secret,
		Digest:      rec.Digest,
		Payload:     rec.Payload,
		Kind:        string(rec.Kind),
		ExpiresAtMs: rec.ExpiresAt.UTC().UnixMilli(),
		IsUsed:      rec.IsUsed,
		CreatedAtMs: rec.CreatedAt.UTC().UnixMilli(),
	}
	if rec.UsedAt != nil {
		ms := rec.UsedAt.UTC().UnixMilli()
		m.UsedAtMs = &ms
	}
	if rec.UsedBy != "" {
		by := rec.UsedBy
		m.UsedBy = &by
	}
	return m
}

func (m tokenModel) record() store.TokenRecord {
	rec := store.TokenRecord{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Secret:    m.Secret,
		Digest:    m.Digest,
		Payload:   m.Payload,
		Kind:      token.Kind(m.Kind),
		ExpiresAt: time.UnixMilli(m.ExpiresAtMs).UTC(),
		IsUsed:    m.IsUsed,
		CreatedAt: time.UnixMilli(m.CreatedAtMs).UTC(),
	}
	if m.UsedAtMs != nil {
		t := time.UnixMilli(*m.UsedAtMs).UTC()
		rec.UsedAt = &t
	}
	if m.UsedBy != nil {
		rec.UsedBy = *m.UsedBy
	}
	return rec
}

func (m userModel) record() store.UserRecord {
	rec := store.UserRecord{
		ID:           m.ID,
		Login:        m.Login,
		PasswordHash: m.PasswordHash,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		JobTitle:     m.JobTitle,
		Role:         types.Role(m.Role),
		CreatedAt:    time.UnixMilli(m.CreatedAtMs).UTC(),
	}
	if m.PhotoURL != nil {
		rec.PhotoURL = *m.PhotoURL
	}
	return rec
}
