package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/service"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store/memory"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/token"
)

func TestTokenPruner_DisabledWhenRetentionZero(t *testing.T) {
	pruner := service.NewTokenPruner(memory.NewTokenStore(), service.PrunerConfig{
		RetentionDays: 0,
		IntervalHours: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pruner.Start(ctx)
	// Stop should return immediately.
	pruner.Stop()
}

func TestTokenPruner_PrunesOnStart(t *testing.T) {
	ms := memory.NewTokenStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, r := range []store.TokenRecord{
		{OwnerID: "u1", Digest: "old", Kind: token.KindVisitor, ExpiresAt: now.AddDate(0, 0, -40)},
		{OwnerID: "u1", Digest: "recent", Kind: token.KindVisitor, ExpiresAt: now.AddDate(0, 0, -1)},
		{OwnerID: "u1", Digest: "live", Kind: token.KindClient, ExpiresAt: now.AddDate(1, 0, 0)},
	} {
		_, err := ms.InsertToken(ctx, r)
		require.NoError(t, err)
	}

	pruner := service.NewTokenPruner(ms, service.PrunerConfig{RetentionDays: 30, IntervalHours: 1})
	pruner.Start(ctx)

	assert.Eventually(t, func() bool { return len(ms.Tokens()) == 2 }, time.Second, 10*time.Millisecond)
	pruner.Stop()

	for _, r := range ms.Tokens() {
		assert.NotEqual(t, "old", r.Digest)
	}
}

func TestTokenPruner_StopIsIdempotent(t *testing.T) {
	pruner := service.NewTokenPruner(memory.NewTokenStore(), service.PrunerConfig{
		RetentionDays: 30,
		IntervalHours: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Start(ctx)

	cancel()
	// Multiple stops should not panic.
	pruner.Stop()
	pruner.Stop()
}
