// Package ledger owns the per-subscription unread counters. It applies
// story-set deltas incrementally, falls back to a full recompute whenever a
// subscription is flagged for recalc, and handles read-state changes.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedsync/internal/domain"
	"feedsync/internal/fingerprint"
)

type StoryStore interface {
	HashesSince(ctx context.Context, feedID int64, since time.Time) ([]string, error)
	HashByGUID(ctx context.Context, feedID int64, guid string) (string, error)
	PublishedAt(ctx context.Context, feedID int64, storyHash string) (time.Time, error)
}

type SubscriptionStore interface {
	ListActiveByFeed(ctx context.Context, feedID int64) ([]domain.Subscription, error)
	Get(ctx context.Context, userID, feedID int64) (*domain.Subscription, error)
	SetUnread(ctx context.Context, userID, feedID int64, unread int, clearRecalc bool) error
	IncrementUnread(ctx context.Context, userID, feedID int64, delta int) error
	FlagRecalcForFeed(ctx context.Context, feedID int64) error
}

type ReadMarkerStore interface {
	ReadHashes(ctx context.Context, userID, feedID int64) (map[string]struct{}, error)
	MarkRead(ctx context.Context, userID, feedID int64, storyHash string) (bool, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher emits unread-count change events for downstream consumers. May
// be nil.
type Publisher interface {
	PublishUnread(ctx context.Context, userID, feedID int64, unread int) error
}

type Ledger struct {
	stories    StoryStore
	subs       SubscriptionStore
	markers    ReadMarkerStore
	txManager  TransactionManager
	publisher  Publisher
	unreadDays int
	logger     *slog.Logger
	now        func() time.Time
}

func New(
	stories StoryStore,
	subs SubscriptionStore,
	markers ReadMarkerStore,
	txManager TransactionManager,
	publisher Publisher,
	unreadDays int,
	logger *slog.Logger,
) *Ledger {
	return &Ledger{
		stories:    stories,
		subs:       subs,
		markers:    markers,
		txManager:  txManager,
		publisher:  publisher,
		unreadDays: unreadDays,
		logger:     logger.With("component", "ledger"),
		now:        time.Now,
	}
}

func (l *Ledger) horizon() time.Time {
	return l.now().UTC().AddDate(0, 0, -l.unreadDays)
}

// ApplyDelta updates the unread counter of every active subscriber to the
// feed after a refresh. Subscriptions flagged needs_unread_recalc get a full
// recompute; the rest get the delta applied incrementally. Returns how many
// subscriptions were updated. Per-subscription failures are logged and do
// not block the remaining subscribers.
func (l *Ledger) ApplyDelta(ctx context.Context, feedID int64, delta *domain.StoryDelta) (int, error) {
	subs, err := l.subs.ListActiveByFeed(ctx, feedID)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	cutoff := l.horizon()
	updated := 0

	for _, sub := range subs {
		if sub.NeedsUnreadRecalc {
			if err := l.recompute(ctx, sub.UserID, feedID); err != nil {
				l.logger.Error("unread recompute failed",
					"user_id", sub.UserID, "feed_id", feedID, "error", err)
				continue
			}
			updated++
			continue
		}

		fresh, err := l.countFreshUnread(ctx, sub.UserID, feedID, delta, cutoff)
		if err != nil {
			l.logger.Error("unread delta failed",
				"user_id", sub.UserID, "feed_id", feedID, "error", err)
			continue
		}
		if fresh == 0 {
			continue
		}
		if err := l.subs.IncrementUnread(ctx, sub.UserID, feedID, fresh); err != nil {
			l.logger.Error("unread increment failed",
				"user_id", sub.UserID, "feed_id", feedID, "error", err)
			continue
		}
		updated++
		l.publishUnread(ctx, sub.UserID, feedID)
	}

	return updated, nil
}

// countFreshUnread counts the delta's new stories that fall inside the
// unread horizon and are not already marked read by the user.
func (l *Ledger) countFreshUnread(ctx context.Context, userID, feedID int64, delta *domain.StoryDelta, cutoff time.Time) (int, error) {
	if len(delta.NewStories) == 0 {
		return 0, nil
	}

	read, err := l.markers.ReadHashes(ctx, userID, feedID)
	if err != nil {
		return 0, err
	}

	fresh := 0
	for _, story := range delta.NewStories {
		if story.PublishedAt.Before(cutoff) {
			continue
		}
		if _, ok := read[story.Hash]; ok {
			continue
		}
		fresh++
	}
	return fresh, nil
}

// Recompute rebuilds one subscription's unread counter from scratch: stories
// within the horizon minus the user's read set. Idempotent by construction.
func (l *Ledger) Recompute(ctx context.Context, userID, feedID int64) error {
	return l.recompute(ctx, userID, feedID)
}

func (l *Ledger) recompute(ctx context.Context, userID, feedID int64) error {
	hashes, err := l.stories.HashesSince(ctx, feedID, l.horizon())
	if err != nil {
		return fmt.Errorf("load story hashes: %w", err)
	}
	read, err := l.markers.ReadHashes(ctx, userID, feedID)
	if err != nil {
		return fmt.Errorf("load read markers: %w", err)
	}

	unread := 0
	for _, hash := range hashes {
		if _, ok := read[hash]; !ok {
			unread++
		}
	}

	if err := l.subs.SetUnread(ctx, userID, feedID, unread, true); err != nil {
		return fmt.Errorf("store unread count: %w", err)
	}
	l.publishUnread(ctx, userID, feedID)
	return nil
}

// MarkRead records that the user has read the story identified by key,
// which is either a story hash or a legacy upstream guid, and decrements
// the subscription's unread counter exactly once. Repeated calls for the
// same story are no-ops. Stories outside the unread horizon were never
// counted, so reading one records the marker without moving the counter.
func (l *Ledger) MarkRead(ctx context.Context, userID, feedID int64, key string) error {
	hash := key
	if !fingerprint.BelongsToFeed(key, feedID) {
		resolved, err := l.stories.HashByGUID(ctx, feedID, key)
		if err != nil {
			return fmt.Errorf("resolve story guid: %w", err)
		}
		hash = resolved
	}

	published, err := l.stories.PublishedAt(ctx, feedID, hash)
	if err != nil {
		return fmt.Errorf("resolve story: %w", err)
	}
	countable := !published.Before(l.horizon())

	err = l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		inserted, err := l.markers.MarkRead(txCtx, userID, feedID, hash)
		if err != nil {
			return fmt.Errorf("store read marker: %w", err)
		}
		if !inserted || !countable {
			return nil
		}
		return l.subs.IncrementUnread(txCtx, userID, feedID, -1)
	})
	if err != nil {
		return err
	}

	l.publishUnread(ctx, userID, feedID)
	return nil
}

// FlagRecalc marks every subscription to the feed for a full recompute on
// the next ledger pass. The orchestrator calls this when a refresh may have
// committed partial state.
func (l *Ledger) FlagRecalc(ctx context.Context, feedID int64) error {
	return l.subs.FlagRecalcForFeed(ctx, feedID)
}

func (l *Ledger) publishUnread(ctx context.Context, userID, feedID int64) {
	if l.publisher == nil {
		return
	}
	sub, err := l.subs.Get(ctx, userID, feedID)
	if err != nil {
		l.logger.Debug("skip unread event, subscription lookup failed",
			"user_id", userID, "feed_id", feedID, "error", err)
		return
	}
	if err := l.publisher.PublishUnread(ctx, userID, feedID, sub.UnreadCount); err != nil {
		l.logger.Warn("publish unread event failed",
			"user_id", userID, "feed_id", feedID, "error", err)
	}
}
