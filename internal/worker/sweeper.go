package worker

import (
	"context"
	"log/slog"
	"time"

	"vortex.app/relay/common/logger"
)

// ExpiredDeleter removes store rows whose TTL has passed.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper deletes expired rows on an interval. Reads already hide expired
// rows, so sweeping only reclaims space.
type Sweeper struct {
	store    ExpiredDeleter
	interval time.Duration
	now      func() time.Time

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewSweeper(store ExpiredDeleter, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		interval:  interval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.worker.sweeper"})
	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			slog.InfoContext(ctx, "sweeper stopping")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

// SweepOnce deletes everything that expired before now and returns the count.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	deleted, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		slog.ErrorContext(ctx, "sweep failed", "error", err)
		return 0
	}
	if deleted > 0 {
		slog.InfoContext(ctx, "expired rows deleted", "count", deleted)
	}
	return deleted
}
