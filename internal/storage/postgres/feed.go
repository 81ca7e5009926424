package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

type FeedStore struct {
	db *sqlx.DB
}

func NewFeedStore(db *sqlx.DB) *FeedStore {
	return &FeedStore{db: db}
}

func (s *FeedStore) Create(ctx context.Context, feed *domain.Feed) (int64, error) {
	query := `
		INSERT INTO feeds (feed_address, feed_link, feed_title, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		feed.Address, feed.Link, feed.Title, feed.Active,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *FeedStore) GetByID(ctx context.Context, feedID int64) (*domain.Feed, error) {
	query := `
		SELECT id, feed_address, feed_link, feed_title, etag, last_modified,
		       last_fetch_at, last_fetch_error, active, created_at
		FROM feeds
		WHERE id = $1`

	var feed domain.Feed
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &feed, query, feedID); err != nil {
		return nil, err
	}
	return &feed, nil
}

// ListDue returns active feeds last fetched before the cutoff (or never).
func (s *FeedStore) ListDue(ctx context.Context, before time.Time) ([]domain.Feed, error) {
	query := `
		SELECT id, feed_address, feed_link, feed_title, etag, last_modified,
		       last_fetch_at, last_fetch_error, active, created_at
		FROM feeds
		WHERE active AND (last_fetch_at IS NULL OR last_fetch_at < $1)
		ORDER BY last_fetch_at NULLS FIRST`

	var feeds []domain.Feed
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &feeds, query, before); err != nil {
		return nil, err
	}
	return feeds, nil
}

// UpdateFetchState records the outcome of a fetch attempt: fresh cache
// tokens on success, the failure message otherwise. A nil fetchErr clears
// any previous error.
func (s *FeedStore) UpdateFetchState(ctx context.Context, feedID int64, etag, lastModified string, fetchErr *string) error {
	query := `
		UPDATE feeds
		SET etag = $2, last_modified = $3, last_fetch_at = NOW(), last_fetch_error = $4
		WHERE id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, feedID, etag, lastModified, fetchErr)
	return err
}

// UpdateMeta refreshes the display title and canonical link reported by the
// upstream document. Empty values leave the stored ones alone.
func (s *FeedStore) UpdateMeta(ctx context.Context, feedID int64, title, link string) error {
	query := `
		UPDATE feeds
		SET feed_title = COALESCE(NULLIF($2, ''), feed_title),
		    feed_link = COALESCE(NULLIF($3, ''), feed_link)
		WHERE id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, feedID, title, link)
	return err
}
