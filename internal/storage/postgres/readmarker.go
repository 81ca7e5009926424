package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/lib/pq"
)

type ReadMarkerStore struct {
	db *sqlx.DB
}

func NewReadMarkerStore(db *sqlx.DB) *ReadMarkerStore {
	return &ReadMarkerStore{db: db}
}

// ReadHashes returns the set of story hashes the user has marked read on the
// feed.
func (s *ReadMarkerStore) ReadHashes(ctx context.Context, userID, feedID int64) (map[string]struct{}, error) {
	query := `SELECT story_hash FROM read_markers WHERE user_id = $1 AND feed_id = $2`

	var hashes []string
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &hashes, query, userID, feedID); err != nil {
		return nil, err
	}

	result := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		result[h] = struct{}{}
	}
	return result, nil
}

// CountRead returns how many of the given hashes the user has marked read.
func (s *ReadMarkerStore) CountRead(ctx context.Context, userID, feedID int64, hashes []string) (int, error) {
	if len(hashes) == 0 {
		return 0, nil
	}

	query := `
		SELECT COUNT(*) FROM read_markers
		WHERE user_id = $1 AND feed_id = $2 AND story_hash = ANY($3)`

	var count int
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &count, query, userID, feedID, pq.Array(hashes)); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead records a read marker. The returned bool is false when the marker
// already existed, which makes repeated mark-read calls idempotent.
func (s *ReadMarkerStore) MarkRead(ctx context.Context, userID, feedID int64, storyHash string) (bool, error) {
	query := `
		INSERT INTO read_markers (user_id, feed_id, story_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, feed_id, story_hash) DO NOTHING`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, userID, feedID, storyHash)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
