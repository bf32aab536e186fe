package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portaria/server/internal/db"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

type AuditLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAuditLogStore(db *sql.DB, writer *dbpkg.Worker) *AuditLogStore {
	return &AuditLogStore{db: db, writer: writer}
}

func (s *AuditLogStore) RecordEntry(ctx context.Context, e store.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var ownerID any
	if e.OwnerID != nil {
		ownerID = *e.OwnerID
	}

	var errMsg any
	if e.ErrorMessage != "" {
		errMsg = e.ErrorMessage
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_logs(
  owner_id, scanner_id, action, success, payload, error_message, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?);
`,
			ownerID, e.ScannerID, e.Action, boolToInt(e.Success), e.Payload, errMsg,
			e.CreatedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordEntry insert: %w", err)
		}
		return nil
	})
}

func (s *AuditLogStore) CountSince(ctx context.Context, since time.Time) (store.AuditCounts, error) {
	var c store.AuditCounts
	err := s.db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COALESCE(SUM(success), 0),
  COALESCE(SUM(CASE WHEN success = 1 AND action = ? THEN 1 ELSE 0 END), 0)
FROM access_logs
WHERE created_at_ms >= ?;
`, types.ActionAccessGranted, since.UTC().UnixMilli()).Scan(&c.Total, &c.Granted, &c.GrantedSelf)
	if err != nil {
		return store.AuditCounts{}, fmt.Errorf("CountSince query: %w", err)
	}
	return c, nil
}
