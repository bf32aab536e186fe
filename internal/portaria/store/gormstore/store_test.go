package gormstore_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store/gormstore"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/token"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

// openTestDB runs the GORM stores against a per-test in-memory SQLite
// database; production points the same code at PostgreSQL.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:gorm_%s?mode=memory&cache=shared", name)

	db, err := gormstore.OpenDialector(context.Background(), sqlite.Open(dsn))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// ── Tokens ───────────────────────────────────────────────────────────────────

func TestTokenStore_ConsumeLifecycle(t *testing.T) {
	ts := gormstore.NewTokenStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	issued, err := ts.InsertToken(ctx, store.TokenRecord{
		OwnerID: "u1", Secret: "s", Digest: "d1", Payload: "{}",
		Kind: token.KindVisitor, ExpiresAt: now.Add(30 * time.Second),
	})
	require.NoError(t, err)

	req := store.ConsumeRequest{Digest: "d1", Kind: token.KindVisitor, UsedBy: "porter", Now: now, CheckExpiry: true}
	got, err := ts.ConsumeToken(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
	assert.True(t, got.IsUsed)
	assert.Equal(t, "porter", got.UsedBy)

	miss, err := ts.ConsumeToken(ctx, req)
	assert.ErrorIs(t, err, store.ErrTokenUsed)
	assert.Equal(t, issued.ID, miss.ID)
	assert.Equal(t, "u1", miss.OwnerID)

	_, err = ts.ConsumeToken(ctx, store.ConsumeRequest{Digest: "d1", Kind: token.KindClient, Now: now})
	assert.ErrorIs(t, err, store.ErrTokenNotFound)
}

func TestTokenStore_ConcurrentConsumeGrantsOnce(t *testing.T) {
	ts := gormstore.NewTokenStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := ts.InsertToken(ctx, store.TokenRecord{
		OwnerID: "u1", Secret: "s", Digest: "race", Payload: "{}",
		Kind: token.KindSelf, ExpiresAt: now.Add(time.Minute),
	})
	require.NoError(t, err)

	const scanners = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		used    int
	)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ts.ConsumeToken(ctx, store.ConsumeRequest{
				Digest: "race", Kind: token.KindSelf, UsedBy: fmt.Sprintf("porter-%d", i),
				Now: now, CheckExpiry: true,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, store.ErrTokenUsed):
				used++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	assert.Equal(t, scanners-1, used)
}

func TestTokenStore_ConsumeExpired(t *testing.T) {
	ts := gormstore.NewTokenStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := ts.InsertToken(ctx, store.TokenRecord{
		OwnerID: "u1", Secret: "s", Digest: "old", Payload: "{}",
		Kind: token.KindSelf, ExpiresAt: now.Add(-time.Second),
	})
	require.NoError(t, err)

	_, err = ts.ConsumeToken(ctx, store.ConsumeRequest{Digest: "old", Kind: token.KindSelf, Now: now, CheckExpiry: true})
	assert.ErrorIs(t, err, store.ErrTokenExpired)
}

func TestTokenStore_ReplaceActiveCountPrune(t *testing.T) {
	ts := gormstore.NewTokenStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	rec := store.TokenRecord{OwnerID: "u1", Secret: "s1", Digest: "a", Payload: "{}", ExpiresAt: now.Add(time.Minute)}
	_, err := ts.ReplaceSelfToken(ctx, rec)
	require.NoError(t, err)

	rec.Digest, rec.Secret = "b", "s2"
	second, err := ts.ReplaceSelfToken(ctx, rec)
	require.NoError(t, err)

	active, err := ts.ActiveSelfToken(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	_, err = ts.ConsumeToken(ctx, store.ConsumeRequest{Digest: "a", Kind: token.KindSelf, Now: now, CheckExpiry: true})
	assert.ErrorIs(t, err, store.ErrTokenNotFound, "rotated token is gone")

	_, err = ts.InsertToken(ctx, store.TokenRecord{
		OwnerID: "u1", Secret: "s3", Digest: "c", Payload: "{}",
		Kind: token.KindVisitor, ExpiresAt: now.Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	n, err := ts.CountActiveTokens(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	deleted, err := ts.PruneExpired(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

// ── Audit log ────────────────────────────────────────────────────────────────

func TestAuditLogStore_CountSince(t *testing.T) {
	as := gormstore.NewAuditLogStore(openTestDB(t))
	ctx := context.Background()
	midnight := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

	for _, e := range []store.AuditEntry{
		{Action: types.ActionAccessGranted, Success: true, CreatedAt: midnight.Add(-time.Second)},
		{Action: types.ActionAccessGranted, Success: true, CreatedAt: midnight.Add(time.Minute)},
		{Action: types.ActionAccessDenied, ErrorMessage: "QR code expired", CreatedAt: midnight.Add(time.Hour)},
		{Action: types.ActionMasterAccessGranted, Success: true, CreatedAt: midnight.Add(2 * time.Hour)},
	} {
		require.NoError(t, as.RecordEntry(ctx, e))
	}

	c, err := as.CountSince(ctx, midnight)
	require.NoError(t, err)
	assert.Equal(t, store.AuditCounts{Total: 3, Granted: 2, GrantedSelf: 1}, c)
}

// ── Users ────────────────────────────────────────────────────────────────────

func TestUserStore_CreateFindDuplicate(t *testing.T) {
	us := gormstore.NewUserStore(openTestDB(t))
	ctx := context.Background()

	created, err := us.CreateUser(ctx, store.UserRecord{
		Login: "Maria", PasswordHash: "h", FirstName: "Maria", Role: types.RoleVendor,
	})
	require.NoError(t, err)

	got, err := us.FindByLogin(ctx, "maria")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, types.RoleVendor, got.Role)

	_, err = us.CreateUser(ctx, store.UserRecord{Login: "MARIA", PasswordHash: "h", FirstName: "Other"})
	assert.ErrorIs(t, err, store.ErrUserExists)

	_, err = us.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}
