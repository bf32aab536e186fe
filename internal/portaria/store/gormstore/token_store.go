package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/token"
)

type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) InsertToken(ctx context.Context, rec store.TokenRecord) (store.TokenRecord, error) {
	rec = withDefaults(rec)
	m := tokenToModel(rec)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return store.TokenRecord{}, fmt.Errorf("insert token: %w", err)
	}
	return rec, nil
}

func (s *TokenStore) ReplaceSelfToken(ctx context.Context, rec store.TokenRecord) (store.TokenRecord, error) {
	rec = withDefaults(rec)
	rec.Kind = token.KindSelf
	m := tokenToModel(rec)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ? AND kind = ?", rec.OwnerID, string(token.KindSelf)).
			Delete(&tokenModel{}).Error; err != nil {
			return fmt.Errorf("ReplaceSelfToken delete: %w", err)
		}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("ReplaceSelfToken insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.TokenRecord{}, err
	}
	return rec, nil
}

func (s *TokenStore) ConsumeToken(ctx context.Context, req store.ConsumeRequest) (store.TokenRecord, error) {
	nowMs := req.Now.UTC().UnixMilli()

	var out store.TokenRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("digest = ? AND kind = ? AND is_used = ?", req.Digest, string(req.Kind), false)
		if req.CheckExpiry {
			q = q.Where("expires_at_ms > ?", nowMs)
		}

		var m tokenModel
		err := q.Order("created_at_ms DESC").First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			out, err = classifyMiss(tx, req)
			return err
		}
		if err != nil {
			return fmt.Errorf("ConsumeToken select: %w", err)
		}

		// The is_used guard makes a concurrent consumer lose the race
		// instead of double-granting.
		res := tx.Model(&tokenModel{}).
			Where("id = ? AND is_used = ?", m.ID, false).
			Updates(map[string]any{"is_used": true, "used_at_ms": nowMs, "used_by": req.UsedBy})
		if res.Error != nil {
			return fmt.Errorf("ConsumeToken update: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			out = store.TokenRecord{ID: m.ID, OwnerID: m.OwnerID}
			return store.ErrTokenUsed
		}

		m.IsUsed = true
		m.UsedAtMs = &nowMs
		by := req.UsedBy
		m.UsedBy = &by
		out = m.record()
		return nil
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, store.ErrTokenUsed), errors.Is(err, store.ErrTokenExpired):
		return out, err
	default:
		return store.TokenRecord{}, err
	}
}

// classifyMiss reads the newest row for the digest to explain an empty
// select. The returned record only has ID and OwnerID set.
func classifyMiss(tx *gorm.DB, req store.ConsumeRequest) (store.TokenRecord, error) {
	var m tokenModel
	err := tx.Where("digest = ? AND kind = ?", req.Digest, string(req.Kind)).
		Order("created_at_ms DESC").First(&m).Error

	miss := store.TokenRecord{ID: m.ID, OwnerID: m.OwnerID}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.TokenRecord{}, store.ErrTokenNotFound
	case err != nil:
		return store.TokenRecord{}, fmt.Errorf("ConsumeToken classify: %w", err)
	case m.IsUsed:
		return miss, store.ErrTokenUsed
	case req.CheckExpiry && m.ExpiresAtMs <= req.Now.UTC().UnixMilli():
		return miss, store.ErrTokenExpired
	default:
		return store.TokenRecord{}, store.ErrTokenNotFound
	}
}

func (s *TokenStore) ActiveSelfToken(ctx context.Context, ownerID string, now time.Time) (store.TokenRecord, error) {
	var m tokenModel
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND kind = ? AND is_used = ? AND expires_at_ms > ?",
			ownerID, string(token.KindSelf), false, now.UTC().UnixMilli()).
		Order("created_at_ms DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.TokenRecord{}, store.ErrTokenNotFound
	}
	if err != nil {
		return store.TokenRecord{}, fmt.Errorf("ActiveSelfToken query: %w", err)
	}
	return m.record(), nil
}

func (s *TokenStore) CountActiveTokens(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&tokenModel{}).
		Where("is_used = ? AND expires_at_ms > ?", false, now.UTC().UnixMilli()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("CountActiveTokens query: %w", err)
	}
	return n, nil
}

func (s *TokenStore) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at_ms < ?", cutoff.UTC().UnixMilli()).
		Delete(&tokenModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("PruneExpired delete: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func withDefaults(rec store.TokenRecord) store.TokenRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return rec
}
