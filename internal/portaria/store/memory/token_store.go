package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/token"
)

// TokenStore keeps issued tokens in a map. A single mutex makes
// ConsumeToken atomic. Intended for tests and dev environments.
type TokenStore struct {
	mu   sync.RWMutex
	data map[string]store.TokenRecord
}

func NewTokenStore() *TokenStore {
	return &TokenStore{
		data: make(map[string]store.TokenRecord),
	}
}

func (s *TokenStore) InsertToken(_ context.Context, rec store.TokenRecord) (store.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(rec), nil
}

func (s *TokenStore) ReplaceSelfToken(_ context.Context, rec store.TokenRecord) (store.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.data {
		if r.OwnerID == rec.OwnerID && r.Kind == token.KindSelf {
			delete(s.data, id)
		}
	}
	return s.insertLocked(rec), nil
}

func (s *TokenStore) insertLocked(rec store.TokenRecord) store.TokenRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.data[rec.ID] = rec
	return rec
}

func (s *TokenStore) ConsumeToken(_ context.Context, req store.ConsumeRequest) (store.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		newest, eligible store.TokenRecord
		seen, ok         bool
	)
	for _, r := range s.data {
		if r.Digest != req.Digest || r.Kind != req.Kind {
			continue
		}
		if !seen || r.CreatedAt.After(newest.CreatedAt) {
			newest, seen = r, true
		}
		if r.IsUsed || (req.CheckExpiry && !r.ExpiresAt.After(req.Now)) {
			continue
		}
		if !ok || r.CreatedAt.After(eligible.CreatedAt) {
			eligible, ok = r, true
		}
	}

	if !ok {
		switch {
		case !seen:
			return store.TokenRecord{}, store.ErrTokenNotFound
		case newest.IsUsed:
			return missed(newest), store.ErrTokenUsed
		default:
			return missed(newest), store.ErrTokenExpired
		}
	}

	usedAt := req.Now.UTC()
	eligible.IsUsed = true
	eligible.UsedAt = &usedAt
	eligible.UsedBy = req.UsedBy
	s.data[eligible.ID] = eligible
	return eligible, nil
}

func missed(r store.TokenRecord) store.TokenRecord {
	return store.TokenRecord{ID: r.ID, OwnerID: r.OwnerID}
}

func (s *TokenStore) ActiveSelfToken(_ context.Context, ownerID string, now time.Time) (store.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []store.TokenRecord
	for _, r := range s.data {
		if r.OwnerID == ownerID && r.Kind == token.KindSelf && !r.IsUsed && r.ExpiresAt.After(now) {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return store.TokenRecord{}, store.ErrTokenNotFound
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.After(active[j].CreatedAt) })
	return active[0], nil
}

func (s *TokenStore) CountActiveTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.data {
		if !r.IsUsed && r.ExpiresAt.After(now) {
			n++
		}
	}
	return n, nil
}

func (s *TokenStore) PruneExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, r := range s.data {
		if r.ExpiresAt.Before(cutoff) {
			delete(s.data, id)
			deleted++
		}
	}
	return deleted, nil
}

// Tokens returns a copy of every stored row. Test-only helper.
func (s *TokenStore) Tokens() []store.TokenRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.TokenRecord, 0, len(s.data))
	for _, r := range s.data {
		out = append(out, r)
	}
	return out
}
