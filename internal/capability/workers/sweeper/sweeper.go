// Package sweeper periodically reclaims expired grants. Expiry is primarily
// lazy (checked on validate); the sweep removes grants nobody touches so the
// table does not grow without bound.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// GrantSweeper exposes the expiry sweep on the capability service.
type GrantSweeper interface {
	RemoveExpired(ctx context.Context) (int, error)
}

// Sweeper periodically removes expired grants.
type Sweeper struct {
	grants   GrantSweeper
	interval time.Duration
	logger   *slog.Logger
}

// Option configures the Sweeper.
type Option func(*Sweeper)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithLogger overrides the logger used for sweep errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a Sweeper with the required service and options applied.
func New(grants GrantSweeper, opts ...Option) (*Sweeper, error) {
	if grants == nil {
		return nil, fmt.Errorf("grant sweeper target is required")
	}
	s := &Sweeper{
		grants:   grants,
		interval: time.Minute,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start runs the sweep periodically until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "grant sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep and returns the number of grants removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	removed, err := s.grants.RemoveExpired(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "expired grants swept", "removed", removed)
	}
	return removed, nil
}
