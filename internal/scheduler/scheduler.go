package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"feedsync/internal/domain"
	"feedsync/internal/service"
)

// Refresher runs one refresh cycle for a feed.
type Refresher interface {
	Refresh(ctx context.Context, feedID int64, force bool) (*domain.RefreshResult, error)
}

// FeedLister reports which feeds are due for a refresh.
type FeedLister interface {
	ListDue(ctx context.Context, before time.Time) ([]domain.Feed, error)
}

type Scheduler struct {
	refresher Refresher
	feeds     FeedLister
	interval  time.Duration
	workers   int
	logger    *slog.Logger
}

func NewScheduler(refresher Refresher, feeds FeedLister, interval time.Duration, workers int, logger *slog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		refresher: refresher,
		feeds:     feeds,
		interval:  interval,
		workers:   workers,
		logger:    logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "workers", s.workers)

	s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// runPass refreshes every feed not fetched within the interval, spreading
// the work over a bounded pool.
func (s *Scheduler) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	due, err := s.feeds.ListDue(passCtx, time.Now().Add(-s.interval))
	if err != nil {
		s.logger.Error("list due feeds failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Debug("refreshing due feeds", "count", len(due))

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for _, feed := range due {
		select {
		case <-passCtx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(feedID int64) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := s.refresher.Refresh(passCtx, feedID, false); err != nil {
				if errors.Is(err, service.ErrRefreshInProgress) {
					// Someone else holds the lease; skip, never queue.
					return
				}
				s.logger.Error("refresh failed", "feed_id", feedID, "error", err)
			}
		}(feed.ID)
	}

	wg.Wait()
}
