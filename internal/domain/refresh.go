package domain

import "time"

// RefreshState is the orchestrator's per-feed pipeline stage.
type RefreshState string

const (
	StateIdle           RefreshState = "idle"
	StateFetching       RefreshState = "fetching"
	StateParsing        RefreshState = "parsing"
	StateReconciling    RefreshState = "reconciling"
	StateUpdatingCounts RefreshState = "updating_counts"
	StateError          RefreshState = "error"
)

// StoryDelta is the reconciler's output for one fetch: the stories it
// inserted, the stories it rewrote in place, and what it left alone.
type StoryDelta struct {
	NewStories     []Story
	UpdatedStories []Story
	Unchanged      int
	WriteErrors    int
}

// RefreshResult summarizes one refresh attempt for the caller.
type RefreshResult struct {
	FeedID             int64         `json:"feed_id"`
	NotModified        bool          `json:"not_modified"`
	EntriesParsed      int           `json:"entries_parsed"`
	StoriesAdded       int           `json:"stories_added"`
	StoriesUpdated     int           `json:"stories_updated"`
	StoriesUnchanged   int           `json:"stories_unchanged"`
	WriteErrors        int           `json:"write_errors"`
	SubscribersUpdated int           `json:"subscribers_updated"`
	Published          int           `json:"published"`
	Duration           time.Duration `json:"duration"`
}
