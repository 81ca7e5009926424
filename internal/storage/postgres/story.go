package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

type StoryStore struct {
	db *sqlx.DB
}

func NewStoryStore(db *sqlx.DB) *StoryStore {
	return &StoryStore{db: db}
}

const storyColumns = `
	id, story_feed_id, story_hash, story_guid, title, body, link, author,
	published_at, created_at, updated_at`

// MapByFeed returns the feed's stored stories keyed by story hash.
func (s *StoryStore) MapByFeed(ctx context.Context, feedID int64) (map[string]domain.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE story_feed_id = $1`

	var stories []domain.Story
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &stories, query, feedID); err != nil {
		return nil, err
	}

	result := make(map[string]domain.Story, len(stories))
	for _, story := range stories {
		result[story.Hash] = story
	}
	return result, nil
}

func (s *StoryStore) Insert(ctx context.Context, story *domain.Story) error {
	query := `
		INSERT INTO stories (
			story_feed_id, story_hash, story_guid, title, body, link, author, published_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		story.FeedID,
		story.Hash,
		story.GUID,
		story.Title,
		story.Body,
		story.Link,
		story.Author,
		story.PublishedAt,
	).Scan(&story.ID, &story.CreatedAt, &story.UpdatedAt)
}

// Update rewrites a story in place, keyed by (feed, hash) so the hash itself
// can never move.
func (s *StoryStore) Update(ctx context.Context, story *domain.Story) error {
	query := `
		UPDATE stories
		SET story_guid = $3, title = $4, body = $5, link = $6, author = $7,
		    published_at = $8, updated_at = NOW()
		WHERE story_feed_id = $1 AND story_hash = $2`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		story.FeedID,
		story.Hash,
		story.GUID,
		story.Title,
		story.Body,
		story.Link,
		story.Author,
		story.PublishedAt,
	)
	return err
}

// ListByFeed returns the feed's most recent stories, newest first.
func (s *StoryStore) ListByFeed(ctx context.Context, feedID int64, limit int) ([]domain.Story, error) {
	query := `
		SELECT ` + storyColumns + `
		FROM stories
		WHERE story_feed_id = $1
		ORDER BY published_at DESC, id DESC
		LIMIT $2`

	var stories []domain.Story
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &stories, query, feedID, limit); err != nil {
		return nil, err
	}
	return stories, nil
}

// HashesSince returns the hashes of stories published at or after the cutoff.
func (s *StoryStore) HashesSince(ctx context.Context, feedID int64, since time.Time) ([]string, error) {
	query := `SELECT story_hash FROM stories WHERE story_feed_id = $1 AND published_at >= $2`

	var hashes []string
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &hashes, query, feedID, since); err != nil {
		return nil, err
	}
	return hashes, nil
}

// PublishedAt returns the publication timestamp of the story with the given
// hash.
func (s *StoryStore) PublishedAt(ctx context.Context, feedID int64, storyHash string) (time.Time, error) {
	query := `SELECT published_at FROM stories WHERE story_feed_id = $1 AND story_hash = $2`

	var published time.Time
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &published, query, feedID, storyHash); err != nil {
		return time.Time{}, err
	}
	return published, nil
}

// HashByGUID resolves a legacy upstream guid to the story's hash.
func (s *StoryStore) HashByGUID(ctx context.Context, feedID int64, guid string) (string, error) {
	query := `SELECT story_hash FROM stories WHERE story_feed_id = $1 AND story_guid = $2 LIMIT 1`

	var hash string
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &hash, query, feedID, guid); err != nil {
		return "", err
	}
	return hash, nil
}
