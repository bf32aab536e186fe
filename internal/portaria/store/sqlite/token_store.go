package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/BrandonDHaskell/Portaria/server/internal/db"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/token"
)

const tokenColumns = `id, owner_id, secret, digest, payload, kind, expires_at_ms,
  is_used, used_at_ms, used_by, created_at_ms`

type TokenStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewTokenStore(db *sql.DB, writer *dbpkg.Worker) *TokenStore {
	return &TokenStore{db: db, writer: writer}
}

func (s *TokenStore) InsertToken(ctx context.Context, rec store.TokenRecord) (store.TokenRecord, error) {
	rec = withDefaults(rec)
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return insertToken(ctx, tx, rec)
	})
	if err != nil {
		return store.TokenRecord{}, err
	}
	return rec, nil
}

func (s *TokenStore) ReplaceSelfToken(ctx context.Context, rec store.TokenRecord) (store.TokenRecord, error) {
	rec = withDefaults(rec)
	rec.Kind = token.KindSelf

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM access_tokens WHERE owner_id = ? AND kind = ?;
`, rec.OwnerID, string(token.KindSelf)); err != nil {
			return fmt.Errorf("ReplaceSelfToken delete: %w", err)
		}
		return insertToken(ctx, tx, rec)
	})
	if err != nil {
		return store.TokenRecord{}, err
	}
	return rec, nil
}

func (s *TokenStore) ConsumeToken(ctx context.Context, req store.ConsumeRequest) (store.TokenRecord, error) {
	nowMs := req.Now.UTC().UnixMilli()

	// Expiry is only enforced when asked; -1 disables the comparison.
	notAfterMs := int64(-1)
	if req.CheckExpiry {
		notAfterMs = nowMs
	}

	var out store.TokenRecord
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
UPDATE access_tokens
SET is_used = 1, used_at_ms = ?, used_by = ?
WHERE id = (
  SELECT id FROM access_tokens
  WHERE digest = ? AND kind = ? AND is_used = 0
    AND (? < 0 OR expires_at_ms > ?)
  ORDER BY created_at_ms DESC
  LIMIT 1
)
RETURNING `+tokenColumns+`;
`, nowMs, req.UsedBy, req.Digest, string(req.Kind), notAfterMs, notAfterMs)

		rec, err := scanToken(row)
		if err == nil {
			out = rec
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("ConsumeToken update: %w", err)
		}
		out, err = classifyMiss(ctx, tx, req)
		return err
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

// classifyMiss explains why the conditional update matched nothing. It runs
// in the same transaction, so the answer is consistent with the update.
// The returned record only has ID and OwnerID set.
func classifyMiss(ctx context.Context, tx *sql.Tx, req store.ConsumeRequest) (store.TokenRecord, error) {
	var (
		miss      store.TokenRecord
		isUsed    int
		expiresMs int64
	)
	err := tx.QueryRowContext(ctx, `
SELECT id, owner_id, is_used, expires_at_ms FROM access_tokens
WHERE digest = ? AND kind = ?
ORDER BY created_at_ms DESC
LIMIT 1;
`, req.Digest, string(req.Kind)).Scan(&miss.ID, &miss.OwnerID, &isUsed, &expiresMs)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return store.TokenRecord{}, store.ErrTokenNotFound
	case err != nil:
		return store.TokenRecord{}, fmt.Errorf("ConsumeToken classify: %w", err)
	case isUsed == 1:
		return miss, store.ErrTokenUsed
	case req.CheckExpiry && expiresMs <= req.Now.UTC().UnixMilli():
		return miss, store.ErrTokenExpired
	default:
		return store.TokenRecord{}, store.ErrTokenNotFound
	}
}

func (s *TokenStore) ActiveSelfToken(ctx context.Context, ownerID string, now time.Time) (store.TokenRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+tokenColumns+`
FROM access_tokens
WHERE owner_id = ? AND kind = ? AND is_used = 0 AND expires_at_ms > ?
ORDER BY created_at_ms DESC
LIMIT 1;
`, ownerID, string(token.KindSelf), now.UTC().UnixMilli())

	rec, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.TokenRecord{}, store.ErrTokenNotFound
	}
	if err != nil {
		return store.TokenRecord{}, fmt.Errorf("ActiveSelfToken query: %w", err)
	}
	return rec, nil
}

func (s *TokenStore) CountActiveTokens(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM access_tokens WHERE is_used = 0 AND expires_at_ms > ?;
`, now.UTC().UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountActiveTokens query: %w", err)
	}
	return n, nil
}

func (s *TokenStore) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM access_tokens WHERE expires_at_ms < ?;
`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("PruneExpired delete: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
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

func insertToken(ctx context.Context, tx *sql.Tx, rec store.TokenRecord) error {
	var usedAtMs any
	if rec.UsedAt != nil {
		usedAtMs = rec.UsedAt.UTC().UnixMilli()
	}
	var usedBy any
	if rec.UsedBy != "" {
		usedBy = rec.UsedBy
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO access_tokens(`+tokenColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		rec.ID, rec.OwnerID, rec.Secret, rec.Digest, rec.Payload, string(rec.Kind),
		rec.ExpiresAt.UTC().UnixMilli(), boolToInt(rec.IsUsed), usedAtMs, usedBy,
		rec.CreatedAt.UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (store.TokenRecord, error) {
	var (
		rec       store.TokenRecord
		kind      string
		expiresMs int64
		isUsed    int
		usedAtMs  sql.NullInt64
		usedBy    sql.NullString
		createdMs int64
	)
	if err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.Secret, &rec.Digest, &rec.Payload, &kind,
		&expiresMs, &isUsed, &usedAtMs, &usedBy, &createdMs,
	); err != nil {
		return store.TokenRecord{}, err
	}

	rec.Kind = token.Kind(kind)
	rec.ExpiresAt = time.UnixMilli(expiresMs).UTC()
	rec.IsUsed = isUsed == 1
	if usedAtMs.Valid {
		t := time.UnixMilli(usedAtMs.Int64).UTC()
		rec.UsedAt = &t
	}
	rec.UsedBy = usedBy.String
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
