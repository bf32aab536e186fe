package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

// FallbackSuccessRate is reported on days without a single scan.
const FallbackSuccessRate = 95

// StatsCache holds a recently computed snapshot. Implementations must treat
// a miss as (zero, false, nil).
type StatsCache interface {
	Get(ctx context.Context) (types.TokenStats, bool, error)
	Set(ctx context.Context, stats types.TokenStats) error
}

type StatsService struct {
	tokens store.TokenStore
	audit  store.AuditLogStore
	cache  StatsCache
	opts   options
}

// NewStatsService builds the dashboard stats query. cache may be nil.
func NewStatsService(tokens store.TokenStore, audit store.AuditLogStore, cache StatsCache, opts ...Option) *StatsService {
	return &StatsService{
		tokens: tokens,
		audit:  audit,
		cache:  cache,
		opts:   buildOptions("stats", opts),
	}
}

func (s *StatsService) TokenStats(ctx context.Context) (types.TokenStats, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.opts.logger.WarnContext(ctx, "stats cache read failed", "err", err)
		} else if ok {
			return cached, nil
		}
	}

	now := s.opts.now()

	active, err := s.tokens.CountActiveTokens(ctx, now)
	if err != nil {
		return types.TokenStats{}, fmt.Errorf("count active tokens: %w", err)
	}

	counts, err := s.audit.CountSince(ctx, startOfDay(now, s.opts.loc))
	if err != nil {
		return types.TokenStats{}, fmt.Errorf("count today's scans: %w", err)
	}

	stats := types.TokenStats{
		ActiveTokens: active,
		TodayScans:   counts.GrantedSelf,
		SuccessRate:  successRate(counts),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, stats); err != nil {
			s.opts.logger.WarnContext(ctx, "stats cache write failed", "err", err)
		}
	}
	return stats, nil
}

type invalidator interface {
	Invalidate(ctx context.Context) error
}

// Invalidate drops a cached snapshot after a scan changed the counts. It is
// a no-op for caches that only expire.
func (s *StatsService) Invalidate(ctx context.Context) {
	inv, ok := s.cache.(invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx); err != nil {
		s.opts.logger.WarnContext(ctx, "stats cache invalidate failed", "err", err)
	}
}

// successRate is the share of today's attempts that were granted, any kind.
func successRate(c store.AuditCounts) int {
	if c.Total == 0 {
		return FallbackSuccessRate
	}
	return int(math.Round(100 * float64(c.Granted) / float64(c.Total)))
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
