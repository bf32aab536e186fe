package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/service"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store/memory"
)

// fakeClock is a settable time source shared by every service in a test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingTokenStore counts every call that reaches the wrapped store.
type countingTokenStore struct {
	store.TokenStore
	calls atomic.Int64
}

func (s *countingTokenStore) ConsumeToken(ctx context.Context, req store.ConsumeRequest) (store.TokenRecord, error) {
	s.calls.Add(1)
	return s.TokenStore.ConsumeToken(ctx, req)
}

func (s *countingTokenStore) ActiveSelfToken(ctx context.Context, ownerID string, now time.Time) (store.TokenRecord, error) {
	s.calls.Add(1)
	return s.TokenStore.ActiveSelfToken(ctx, ownerID, now)
}

func (s *countingTokenStore) CountActiveTokens(ctx context.Context, now time.Time) (int64, error) {
	s.calls.Add(1)
	return s.TokenStore.CountActiveTokens(ctx, now)
}

// brokenTokenStore fails every consume with an internal error.
type brokenTokenStore struct {
	store.TokenStore
}

func (brokenTokenStore) ConsumeToken(context.Context, store.ConsumeRequest) (store.TokenRecord, error) {
	return store.TokenRecord{}, errors.New("disk I/O error")
}

// brokenAuditStore fails every write.
type brokenAuditStore struct {
	store.AuditLogStore
}

func (brokenAuditStore) RecordEntry(context.Context, store.AuditEntry) error {
	return errors.New("audit table locked")
}

type testEnv struct {
	clock     *fakeClock
	tokens    *countingTokenStore
	mem       *memory.TokenStore
	audit     *memory.AuditLogStore
	users     *memory.UserStore
	issuer    *service.Issuer
	validator *service.Validator
	stats     *service.StatsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newFakeClock()
	mem := memory.NewTokenStore()
	tokens := &countingTokenStore{TokenStore: mem}
	audit := memory.NewAuditLogStore()
	users := memory.NewUserStore()

	opts := []service.Option{service.WithClock(clock.Now), service.WithLocation(time.UTC)}

	return &testEnv{
		clock:     clock,
		tokens:    tokens,
		mem:       mem,
		audit:     audit,
		users:     users,
		issuer:    service.NewIssuer(tokens, opts...),
		validator: service.NewValidator(tokens, users, audit, opts...),
		stats:     service.NewStatsService(tokens, audit, nil, opts...),
	}
}

// seedStaff stores an account and returns its id.
func (e *testEnv) seedStaff(t *testing.T, first, last, title string) string {
	t.Helper()
	rec, err := e.users.CreateUser(context.Background(), store.UserRecord{
		Login:        first + "." + last,
		PasswordHash: "x",
		FirstName:    first,
		LastName:     last,
		JobTitle:     title,
		Role:         service.RoleForJobTitle(title),
		PhotoURL:     "https://example.com/" + first + ".png",
	})
	require.NoError(t, err)
	return rec.ID
}

func (e *testEnv) lastAudit(t *testing.T) store.AuditEntry {
	t.Helper()
	entries := e.audit.Entries()
	require.NotEmpty(t, entries, "expected an audit entry")
	return entries[len(entries)-1]
}
