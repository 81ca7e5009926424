package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

type SubscriptionStore struct {
	db *sqlx.DB
}

func NewSubscriptionStore(db *sqlx.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, feed_id, unread_count, needs_unread_recalc, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, feed_id) DO UPDATE SET active = EXCLUDED.active`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		sub.UserID, sub.FeedID, sub.UnreadCount, sub.NeedsUnreadRecalc, sub.Active,
	)
	return err
}

func (s *SubscriptionStore) Get(ctx context.Context, userID, feedID int64) (*domain.Subscription, error) {
	query := `
		SELECT user_id, feed_id, unread_count, needs_unread_recalc, active
		FROM subscriptions
		WHERE user_id = $1 AND feed_id = $2`

	var sub domain.Subscription
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &sub, query, userID, feedID); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *SubscriptionStore) ListActiveByFeed(ctx context.Context, feedID int64) ([]domain.Subscription, error) {
	query := `
		SELECT user_id, feed_id, unread_count, needs_unread_recalc, active
		FROM subscriptions
		WHERE feed_id = $1 AND active`

	var subs []domain.Subscription
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &subs, query, feedID); err != nil {
		return nil, err
	}
	return subs, nil
}

// SetUnread overwrites the cached unread counter, optionally clearing the
// recalc flag in the same statement.
func (s *SubscriptionStore) SetUnread(ctx context.Context, userID, feedID int64, unread int, clearRecalc bool) error {
	query := `
		UPDATE subscriptions
		SET unread_count = $3,
		    needs_unread_recalc = CASE WHEN $4 THEN FALSE ELSE needs_unread_recalc END
		WHERE user_id = $1 AND feed_id = $2`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, userID, feedID, unread, clearRecalc)
	return err
}

// IncrementUnread adjusts the cached counter by delta, clamped at zero. The
// single-statement update keeps concurrent adjustments for the same
// (user, feed) pair serialized by the row lock.
func (s *SubscriptionStore) IncrementUnread(ctx context.Context, userID, feedID int64, delta int) error {
	query := `
		UPDATE subscriptions
		SET unread_count = GREATEST(0, unread_count + $3)
		WHERE user_id = $1 AND feed_id = $2`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, userID, feedID, delta)
	return err
}

// FlagRecalcForFeed marks every subscription to the feed as needing a full
// unread recompute. Used when a refresh may have left partial state behind.
func (s *SubscriptionStore) FlagRecalcForFeed(ctx context.Context, feedID int64) error {
	query := `UPDATE subscriptions SET needs_unread_recalc = TRUE WHERE feed_id = $1 AND active`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, feedID)
	return err
}
