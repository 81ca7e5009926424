package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedsync/internal/domain"
	"feedsync/internal/fetcher"
	"feedsync/internal/lock"
)

// ErrRefreshInProgress is returned when another refresh already holds the
// feed's lease. The caller is expected to drop the attempt, not queue it.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// RefreshService drives one feed through a full refresh cycle: fetch,
// parse, reconcile stories, update unread counters, publish events.
type RefreshService struct {
	fetcher    Fetcher
	parser     Parser
	reconciler Reconciler
	ledger     Ledger
	feeds      FeedStore
	leases     LeaseManager
	publisher  Publisher
	logger     *slog.Logger

	mu     sync.Mutex
	states map[int64]domain.RefreshState
}

func NewRefreshService(
	fetcher Fetcher,
	parser Parser,
	reconciler Reconciler,
	ledger Ledger,
	feeds FeedStore,
	leases LeaseManager,
	publisher Publisher,
	logger *slog.Logger,
) *RefreshService {
	return &RefreshService{
		fetcher:    fetcher,
		parser:     parser,
		reconciler: reconciler,
		ledger:     ledger,
		feeds:      feeds,
		leases:     leases,
		publisher:  publisher,
		logger:     logger.With("component", "refresh"),
		states:     make(map[int64]domain.RefreshState),
	}
}

// State reports the feed's current position in the refresh cycle. Feeds
// with no refresh underway are idle.
func (s *RefreshService) State(feedID int64) domain.RefreshState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[feedID]; ok {
		return state
	}
	return domain.StateIdle
}

func (s *RefreshService) setState(feedID int64, state domain.RefreshState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == domain.StateIdle {
		delete(s.states, feedID)
		return
	}
	s.states[feedID] = state
}

// Refresh runs one refresh cycle for the feed. With force set, HTTP cache
// validators are not sent, so upstream cannot answer 304.
func (s *RefreshService) Refresh(ctx context.Context, feedID int64, force bool) (*domain.RefreshResult, error) {
	release, err := s.leases.Acquire(feedID)
	if err != nil {
		if errors.Is(err, lock.ErrAlreadyHeld) {
			s.logger.Debug("refresh already running", "feed_id", feedID)
			return nil, ErrRefreshInProgress
		}
		return nil, fmt.Errorf("acquire refresh lease: %w", err)
	}
	defer release()

	result, err := s.refresh(ctx, feedID, force)
	if err != nil {
		// The failure itself lives on the feed row; the state machine
		// passes through ERROR and settles back on idle.
		s.setState(feedID, domain.StateError)
	}
	s.setState(feedID, domain.StateIdle)
	return result, err
}

func (s *RefreshService) refresh(ctx context.Context, feedID int64, force bool) (*domain.RefreshResult, error) {
	startTime := time.Now()

	feed, err := s.feeds.GetByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}

	s.logger.Info("starting refresh",
		"feed_id", feedID,
		"feed_address", feed.Address,
		"force", force,
	)

	s.setState(feedID, domain.StateFetching)
	etag, lastModified := feed.ETag, feed.LastModified
	if force {
		etag, lastModified = "", ""
	}

	fetched, err := s.fetcher.Fetch(ctx, feed.Address, etag, lastModified)
	if err != nil {
		s.recordFetchError(ctx, feed, err)
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	result := &domain.RefreshResult{FeedID: feedID}

	if fetched.NotModified {
		result.NotModified = true
		result.Duration = time.Since(startTime)
		if err := s.feeds.UpdateFetchState(ctx, feedID, fetched.ETag, fetched.LastModified, nil); err != nil {
			return result, fmt.Errorf("record fetch state: %w", err)
		}
		s.logger.Info("feed not modified", "feed_id", feedID)
		return result, nil
	}

	s.setState(feedID, domain.StateParsing)
	parsed, parseErr := s.parser.Parse(fetched.Body)
	if parseErr != nil && len(parsed.Entries) == 0 {
		s.recordFetchError(ctx, feed, parseErr)
		return nil, fmt.Errorf("parse feed: %w", parseErr)
	}
	if parseErr != nil {
		// Salvaged a partial document; refresh continues with what parsed.
		s.logger.Warn("parsed feed partially",
			"feed_id", feedID,
			"entries", len(parsed.Entries),
			"error", parseErr,
		)
	}
	result.EntriesParsed = len(parsed.Entries)

	if err := s.feeds.UpdateMeta(ctx, feedID, parsed.Title, parsed.Link); err != nil {
		s.logger.Warn("update feed metadata failed", "feed_id", feedID, "error", err)
	}

	s.setState(feedID, domain.StateReconciling)
	delta, err := s.reconciler.Reconcile(ctx, feedID, parsed.Entries)
	if err != nil {
		return nil, fmt.Errorf("reconcile stories: %w", err)
	}
	result.StoriesAdded = len(delta.NewStories)
	result.StoriesUpdated = len(delta.UpdatedStories)
	result.StoriesUnchanged = delta.Unchanged
	result.WriteErrors = delta.WriteErrors

	result.Published = s.publishStories(ctx, delta)

	s.setState(feedID, domain.StateUpdatingCounts)
	subscribers, err := s.ledger.ApplyDelta(ctx, feedID, delta)
	if err != nil {
		s.logger.Error("apply unread delta failed", "feed_id", feedID, "error", err)
		s.flagRecalc(ctx, feedID)
	}
	result.SubscribersUpdated = subscribers

	if delta.WriteErrors > 0 {
		// Counters may have drifted from the partially written story set.
		s.flagRecalc(ctx, feedID)
	}

	if err := s.feeds.UpdateFetchState(ctx, feedID, fetched.ETag, fetched.LastModified, nil); err != nil {
		return result, fmt.Errorf("record fetch state: %w", err)
	}

	result.Duration = time.Since(startTime)

	s.logger.Info("refresh completed",
		"feed_id", feedID,
		"entries", result.EntriesParsed,
		"added", result.StoriesAdded,
		"updated", result.StoriesUpdated,
		"unchanged", result.StoriesUnchanged,
		"write_errors", result.WriteErrors,
		"subscribers", result.SubscribersUpdated,
		"published", result.Published,
		"duration", result.Duration,
	)

	return result, nil
}

// recordFetchError stores the failure on the feed row so operators can see
// why a feed stopped producing stories. Cache validators are kept as-is.
func (s *RefreshService) recordFetchError(ctx context.Context, feed *domain.Feed, cause error) {
	message := cause.Error()
	var fe *fetcher.Error
	if errors.As(cause, &fe) {
		message = fe.Message
	}
	if err := s.feeds.UpdateFetchState(ctx, feed.ID, feed.ETag, feed.LastModified, &message); err != nil {
		s.logger.Error("record fetch error failed", "feed_id", feed.ID, "error", err)
	}
}

func (s *RefreshService) publishStories(ctx context.Context, delta *domain.StoryDelta) int {
	if s.publisher == nil {
		return 0
	}
	published := 0
	for i := range delta.NewStories {
		if err := s.publisher.PublishStory(ctx, &delta.NewStories[i], true); err != nil {
			s.logger.Warn("publish story failed",
				"story_hash", delta.NewStories[i].Hash, "error", err)
			continue
		}
		published++
	}
	for i := range delta.UpdatedStories {
		if err := s.publisher.PublishStory(ctx, &delta.UpdatedStories[i], false); err != nil {
			s.logger.Warn("publish story failed",
				"story_hash", delta.UpdatedStories[i].Hash, "error", err)
			continue
		}
		published++
	}
	return published
}

func (s *RefreshService) flagRecalc(ctx context.Context, feedID int64) {
	if err := s.ledger.FlagRecalc(ctx, feedID); err != nil {
		s.logger.Error("flag unread recalc failed", "feed_id", feedID, "error", err)
	}
}
