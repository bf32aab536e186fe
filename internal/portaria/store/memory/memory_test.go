package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store/memory"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/token"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func rec(owner, digest string, kind token.Kind, expires time.Time, created time.Time) store.TokenRecord {
	return store.TokenRecord{
		OwnerID: owner, Digest: digest, Kind: kind, Secret: "s", Payload: "{}",
		ExpiresAt: expires, CreatedAt: created,
	}
}

// ── TokenStore ───────────────────────────────────────────────────────────────

func TestTokenStore_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.NewTokenStore()

	inserted, err := s.InsertToken(ctx, rec("u1", "d1", token.KindVisitor, t0.Add(time.Minute), t0))
	require.NoError(t, err)
	require.NotEmpty(t, inserted.ID)

	req := store.ConsumeRequest{Digest: "d1", Kind: token.KindVisitor, UsedBy: "porter", Now: t0, CheckExpiry: true}
	got, err := s.ConsumeToken(ctx, req)
	require.NoError(t, err)
	assert.True(t, got.IsUsed)
	assert.Equal(t, "porter", got.UsedBy)
	require.NotNil(t, got.UsedAt)

	miss, err := s.ConsumeToken(ctx, req)
	assert.ErrorIs(t, err, store.ErrTokenUsed)
	assert.Equal(t, inserted.ID, miss.ID)
	assert.Equal(t, "u1", miss.OwnerID)
}

func TestTokenStore_ConsumeMisses(t *testing.T) {
	ctx := context.Background()
	s := memory.NewTokenStore()
	_, err := s.InsertToken(ctx, rec("u1", "d1", token.KindClient, t0.Add(-time.Second), t0.Add(-time.Hour)))
	require.NoError(t, err)

	miss, err := s.ConsumeToken(ctx, store.ConsumeRequest{Digest: "nope", Kind: token.KindClient, Now: t0})
	assert.ErrorIs(t, err, store.ErrTokenNotFound)
	assert.Empty(t, miss.OwnerID)

	_, err = s.ConsumeToken(ctx, store.ConsumeRequest{Digest: "d1", Kind: token.KindVisitor, Now: t0})
	assert.ErrorIs(t, err, store.ErrTokenNotFound, "kind must match")

	_, err = s.ConsumeToken(ctx, store.ConsumeRequest{Digest: "d1", Kind: token.KindClient, Now: t0, CheckExpiry: true})
	assert.ErrorIs(t, err, store.ErrTokenExpired)

	_, err = s.ConsumeToken(ctx, store.ConsumeRequest{Digest: "d1", Kind: token.KindClient, Now: t0})
	assert.NoError(t, err, "client tokens ignore the stored expiry")
}

func TestTokenStore_ConcurrentConsumeGrantsOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.NewTokenStore()
	_, err := s.InsertToken(ctx, rec("u1", "d1", token.KindSelf, t0.Add(time.Minute), t0))
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumeToken(ctx, store.ConsumeRequest{Digest: "d1", Kind: token.KindSelf, Now: t0, CheckExpiry: true})
			if err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, granted)
}

func TestTokenStore_ReplaceSelfAndActive(t *testing.T) {
	ctx := context.Background()
	s := memory.NewTokenStore()

	_, err := s.ReplaceSelfToken(ctx, rec("u1", "old", token.KindSelf, t0.Add(time.Minute), t0))
	require.NoError(t, err)
	_, err = s.InsertToken(ctx, rec("u1", "v", token.KindVisitor, t0.Add(time.Minute), t0))
	require.NoError(t, err)
	fresh, err := s.ReplaceSelfToken(ctx, rec("u1", "new", token.KindSelf, t0.Add(time.Minute), t0.Add(time.Second)))
	require.NoError(t, err)

	assert.Len(t, s.Tokens(), 2, "visitor row survives the rotation")

	active, err := s.ActiveSelfToken(ctx, "u1", t0)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, active.ID)

	_, err = s.ActiveSelfToken(ctx, "u1", t0.Add(time.Hour))
	assert.ErrorIs(t, err, store.ErrTokenNotFound)
}

func TestTokenStore_CountAndPrune(t *testing.T) {
	ctx := context.Background()
	s := memory.NewTokenStore()
	_, _ = s.InsertToken(ctx, rec("u1", "a", token.KindVisitor, t0.Add(time.Minute), t0))
	_, _ = s.InsertToken(ctx, rec("u1", "b", token.KindVisitor, t0.Add(-time.Minute), t0))
	_, _ = s.InsertToken(ctx, rec("u1", "c", token.KindVisitor, t0.Add(-48*time.Hour), t0))

	n, err := s.CountActiveTokens(ctx, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	deleted, err := s.PruneExpired(ctx, t0.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.Len(t, s.Tokens(), 2)
}

// ── AuditLogStore ────────────────────────────────────────────────────────────

func TestAuditLogStore_CountSince(t *testing.T) {
	ctx := context.Background()
	s := memory.NewAuditLogStore()

	require.NoError(t, s.RecordEntry(ctx, store.AuditEntry{Action: types.ActionAccessGranted, Success: true, CreatedAt: t0}))
	require.NoError(t, s.RecordEntry(ctx, store.AuditEntry{Action: types.ActionAccessDenied, CreatedAt: t0.Add(time.Minute)}))
	require.NoError(t, s.RecordEntry(ctx, store.AuditEntry{Action: types.ActionAccessGranted, Success: true, CreatedAt: t0.Add(-time.Hour)}))
	require.NoError(t, s.RecordEntry(ctx, store.AuditEntry{Action: types.ActionClientAccessGranted, Success: true, CreatedAt: t0.Add(time.Second)}))

	c, err := s.CountSince(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, store.AuditCounts{Total: 3, Granted: 2, GrantedSelf: 1}, c)
	assert.Len(t, s.Entries(), 4)
}

// ── UserStore ────────────────────────────────────────────────────────────────

func TestUserStore_LoginIsCaseInsensitiveAndUnique(t *testing.T) {
	ctx := context.Background()
	s := memory.NewUserStore()

	u, err := s.CreateUser(ctx, store.UserRecord{Login: " Ana ", FirstName: "Ana", Role: types.RoleStaff})
	require.NoError(t, err)
	assert.Equal(t, "ana", u.Login)

	_, err = s.CreateUser(ctx, store.UserRecord{Login: "ANA", FirstName: "Outra"})
	assert.ErrorIs(t, err, store.ErrUserExists)

	got, err := s.FindByLogin(ctx, "aNa")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.FirstName)

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}
