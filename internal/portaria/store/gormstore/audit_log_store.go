package gormstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

type AuditLogStore struct {
	db *gorm.DB
}

func NewAuditLogStore(db *gorm.DB) *AuditLogStore {
	return &AuditLogStore{db: db}
}

func (s *AuditLogStore) RecordEntry(ctx context.Context, e store.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	m := auditModel{
		OwnerID:     e.OwnerID,
		ScannerID:   e.ScannerID,
		Action:      e.Action,
		Success:     e.Success,
		Payload:     e.Payload,
		CreatedAtMs: e.CreatedAt.UTC().UnixMilli(),
	}
	if e.ErrorMessage != "" {
		msg := e.ErrorMessage
		m.ErrorMessage = &msg
	}

	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("RecordEntry insert: %w", err)
	}
	return nil
}

func (s *AuditLogStore) CountSince(ctx context.Context, since time.Time) (store.AuditCounts, error) {
	sinceMs := since.UTC().UnixMilli()
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&auditModel{}).Where("created_at_ms >= ?", sinceMs)
	}

	var c store.AuditCounts
	if err := base().Count(&c.Total).Error; err != nil {
		return store.AuditCounts{}, fmt.Errorf("CountSince total: %w", err)
	}
	if err := base().Where("success = ?", true).Count(&c.Granted).Error; err != nil {
		return store.AuditCounts{}, fmt.Errorf("CountSince granted: %w", err)
	}
	if err := base().Where("success = ? AND action = ?", true, types.ActionAccessGranted).
		Count(&c.GrantedSelf).Error; err != nil {
		return store.AuditCounts{}, fmt.Errorf("CountSince granted self: %w", err)
	}
	return c, nil
}
