// Package reconciler merges parsed candidate entries into a feed's stored
// story set, classifying each as new, updated, or unchanged.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedsync/internal/domain"
	"feedsync/internal/fingerprint"
)

// StoryStore is the slice of the document store the reconciler needs.
type StoryStore interface {
	MapByFeed(ctx context.Context, feedID int64) (map[string]domain.Story, error)
	Insert(ctx context.Context, story *domain.Story) error
	Update(ctx context.Context, story *domain.Story) error
}

type Reconciler struct {
	stories StoryStore
	logger  *slog.Logger
	now     func() time.Time
}

func New(stories StoryStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		stories: stories,
		logger:  logger.With("component", "reconciler"),
		now:     time.Now,
	}
}

// Reconcile classifies each candidate against the feed's stored stories.
//
// A candidate whose hash is unknown is inserted. A known hash with
// identical title and body (after whitespace normalization) is left alone.
// A known hash with differing content is rewritten in place, preserving the
// hash so read markers pointing at it stay valid. Stored stories absent
// from the fetch are untouched.
//
// A write failure on one candidate is counted and skipped; the remaining
// candidates still get processed.
func (r *Reconciler) Reconcile(ctx context.Context, feedID int64, entries []domain.CandidateEntry) (*domain.StoryDelta, error) {
	existing, err := r.stories.MapByFeed(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("load stored stories: %w", err)
	}

	delta := &domain.StoryDelta{}
	seen := make(map[string]bool, len(entries))

	for _, entry := range entries {
		hash := fingerprint.StoryHash(feedID, entry)
		if seen[hash] {
			// Upstream repeated the same logical entry within one document.
			delta.Unchanged++
			continue
		}
		seen[hash] = true

		stored, ok := existing[hash]
		if !ok {
			story := r.buildStory(feedID, hash, entry)
			if err := r.stories.Insert(ctx, &story); err != nil {
				delta.WriteErrors++
				r.logger.Error("insert story failed",
					"feed_id", feedID,
					"story_hash", hash,
					"error", err,
				)
				continue
			}
			delta.NewStories = append(delta.NewStories, story)
			continue
		}

		if sameContent(stored, entry) {
			delta.Unchanged++
			continue
		}

		updated := r.buildStory(feedID, hash, entry)
		updated.ID = stored.ID
		updated.CreatedAt = stored.CreatedAt
		if entry.PublishedAt == nil {
			updated.PublishedAt = stored.PublishedAt
		}
		if err := r.stories.Update(ctx, &updated); err != nil {
			delta.WriteErrors++
			r.logger.Error("update story failed",
				"feed_id", feedID,
				"story_hash", hash,
				"error", err,
			)
			continue
		}
		delta.UpdatedStories = append(delta.UpdatedStories, updated)
	}

	r.logger.Debug("reconciled feed",
		"feed_id", feedID,
		"entries", len(entries),
		"new", len(delta.NewStories),
		"updated", len(delta.UpdatedStories),
		"unchanged", delta.Unchanged,
		"write_errors", delta.WriteErrors,
	)

	return delta, nil
}

func (r *Reconciler) buildStory(feedID int64, hash string, entry domain.CandidateEntry) domain.Story {
	story := domain.Story{
		FeedID:      feedID,
		Hash:        hash,
		GUID:        entry.GUID,
		Title:       entry.Title,
		Body:        entry.Body,
		Link:        entry.Link,
		Author:      entry.Author,
		PublishedAt: r.now().UTC(),
	}
	if entry.PublishedAt != nil {
		story.PublishedAt = *entry.PublishedAt
	}
	return story
}

// sameContent reports whether the stored story and the candidate agree on
// title and body, comparing after whitespace normalization so encoding
// noise does not count as an edit.
func sameContent(stored domain.Story, entry domain.CandidateEntry) bool {
	return fingerprint.NormalizeSpace(stored.Title) == fingerprint.NormalizeSpace(entry.Title) &&
		fingerprint.NormalizeSpace(stored.Body) == fingerprint.NormalizeSpace(entry.Body)
}
