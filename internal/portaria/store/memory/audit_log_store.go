package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

// AuditLogStore is an in-memory append-only log of validation attempts.
// It is intended for use in tests and dev environments.
type AuditLogStore struct {
	mu      sync.Mutex
	entries []store.AuditEntry
}

func NewAuditLogStore() *AuditLogStore {
	return &AuditLogStore{}
}

func (s *AuditLogStore) RecordEntry(_ context.Context, e store.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *AuditLogStore) CountSince(_ context.Context, since time.Time) (store.AuditCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c store.AuditCounts
	for _, e := range s.entries {
		if e.CreatedAt.Before(since) {
			continue
		}
		c.Total++
		if e.Success {
			c.Granted++
			if e.Action == types.ActionAccessGranted {
				c.GrantedSelf++
			}
		}
	}
	return c, nil
}

// Entries returns a copy of all recorded entries.  Test-only helper.
func (s *AuditLogStore) Entries() []store.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
