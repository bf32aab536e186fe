package service

import (
	"log/slog"
	"time"

	"github.com/BrandonDHaskell/Portaria/server/internal/logging"
)

var (
	// DefaultSelfTokenDuration applies when a self token is requested
	// without a lifetime.
	DefaultSelfTokenDuration = 30 * time.Second

	ClientTokenLifetime  = 365 * 24 * time.Hour
	VisitorTokenLifetime = 30 * time.Second
)

type options struct {
	now    func() time.Time
	loc    *time.Location
	logger *slog.Logger
}

// Option configures the services in this package.
type Option func(*options)

// WithClock replaces time.Now. Tests use it to pin expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the zone whose midnight starts "today" for stats.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(svc string, opts []Option) options {
	o := options{
		now:    func() time.Time { return time.Now().UTC() },
		loc:    time.Local,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("svc", svc)
	return o
}
