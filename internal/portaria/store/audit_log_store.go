package store

import (
	"context"
	"time"
)

// AuditEntry records one validation attempt. OwnerID is nil unless the
// scanned token belonged to a staff account.
type AuditEntry struct {
	OwnerID      *string
	ScannerID    string
	Action       string
	Success      bool
	Payload      string
	ErrorMessage string
	CreatedAt    time.Time
}

// AuditCounts aggregates audit rows over a time window.
type AuditCounts struct {
	Total   int64
	Granted int64 // every successful row, master and guests included

	// GrantedSelf counts staff self-token grants (action access_granted).
	GrantedSelf int64
}

// AuditLogStore persists validation attempts as an append-only log.
type AuditLogStore interface {
	RecordEntry(ctx context.Context, e AuditEntry) error
	CountSince(ctx context.Context, since time.Time) (AuditCounts, error)
}
