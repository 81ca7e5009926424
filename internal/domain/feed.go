package domain

import "time"

// Feed is a subscribed syndication source.
type Feed struct {
	ID             int64      `db:"id"`
	Address        string     `db:"feed_address"`
	Link           string     `db:"feed_link"`
	Title          string     `db:"feed_title"`
	ETag           string     `db:"etag"`
	LastModified   string     `db:"last_modified"`
	LastFetchAt    *time.Time `db:"last_fetch_at"`
	LastFetchError *string    `db:"last_fetch_error"`
	Active         bool       `db:"active"`
	CreatedAt      time.Time  `db:"created_at"`
}

// Story is one normalized entry from a feed. Within a feed it is uniquely
// identified by Hash, which survives cosmetic edits to the title or body.
type Story struct {
	ID          int64     `db:"id"`
	FeedID      int64     `db:"story_feed_id"`
	Hash        string    `db:"story_hash"`
	GUID        string    `db:"story_guid"`
	Title       string    `db:"title"`
	Body        string    `db:"body"`
	Link        string    `db:"link"`
	Author      *string   `db:"author"`
	PublishedAt time.Time `db:"published_at"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Enclosure is a media attachment declared on a feed entry.
type Enclosure struct {
	URL    string `json:"url"`
	Type   string `json:"type"`
	Length int64  `json:"length"`
}

// CandidateEntry is a parsed feed entry before reconciliation. Any field but
// Title and Link may be absent.
type CandidateEntry struct {
	GUID        string
	Title       string
	Body        string
	Link        string
	Author      *string
	PublishedAt *time.Time
	Enclosures  []Enclosure
}

// Subscription links a user to a feed and carries the cached unread counter.
// The counter fields are owned by the unread ledger; membership is managed
// elsewhere.
type Subscription struct {
	UserID            int64 `db:"user_id"`
	FeedID            int64 `db:"feed_id"`
	UnreadCount       int   `db:"unread_count"`
	NeedsUnreadRecalc bool  `db:"needs_unread_recalc"`
	Active            bool  `db:"active"`
}
