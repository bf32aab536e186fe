package service

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
)

// TokenPruner periodically deletes tokens that expired more than the
// retention period ago. Used rows go with them; the audit log keeps the
// history. A retention of 0 disables pruning entirely.
type TokenPruner struct {
	store     store.TokenStore
	retention time.Duration
	interval  time.Duration
	opts      options
	cancel    context.CancelFunc
	done      chan struct{}
}

// PrunerConfig holds the parameters for NewTokenPruner.
type PrunerConfig struct {
	// RetentionDays is how long expired tokens are kept.
	// 0 means keep everything (pruner will not start).
	RetentionDays int

	// IntervalHours is how often the pruner runs.  Defaults to 6.
	IntervalHours int
}

// NewTokenPruner creates a pruner but does not start it.
func NewTokenPruner(s store.TokenStore, cfg PrunerConfig, opts ...Option) *TokenPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	return &TokenPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		opts:      buildOptions("token_pruner", opts),
		done:      make(chan struct{}),
	}
}

// Start runs an immediate prune, then repeats on the configured interval
// until ctx is cancelled or Stop is called.
func (p *TokenPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.opts.logger.Info("token pruner disabled (retention=0)")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.opts.logger.Info("token pruner started",
		"retention_days", int(p.retention.Hours()/24),
		"interval_hours", int(p.interval.Hours()))
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *TokenPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *TokenPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *TokenPruner) prune(ctx context.Context) {
	cutoff := p.opts.now().Add(-p.retention)
	deleted, err := p.store.PruneExpired(ctx, cutoff)
	if err != nil {
		p.opts.logger.Error("token prune failed", "err", err)
		return
	}
	if deleted > 0 {
		p.opts.logger.Info("token prune",
			"deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
}
