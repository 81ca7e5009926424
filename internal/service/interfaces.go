package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"feedsync/internal/domain"
	"feedsync/internal/fetcher"
	"feedsync/internal/parser"
)

type Fetcher interface {
	Fetch(ctx context.Context, address, etag, lastModified string) (*fetcher.Result, error)
}

type Parser interface {
	Parse(data []byte) (*parser.Result, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, feedID int64, entries []domain.CandidateEntry) (*domain.StoryDelta, error)
}

type Ledger interface {
	ApplyDelta(ctx context.Context, feedID int64, delta *domain.StoryDelta) (int, error)
	FlagRecalc(ctx context.Context, feedID int64) error
}

type FeedStore interface {
	GetByID(ctx context.Context, feedID int64) (*domain.Feed, error)
	UpdateFetchState(ctx context.Context, feedID int64, etag, lastModified string, fetchErr *string) error
	UpdateMeta(ctx context.Context, feedID int64, title, link string) error
}

// LeaseManager hands out short-lived per-feed refresh leases. Acquire
// returns the release func, or lock.ErrAlreadyHeld while another refresh
// holds the feed.
type LeaseManager interface {
	Acquire(feedID int64) (func(), error)
}

type Publisher interface {
	PublishStory(ctx context.Context, story *domain.Story, isNew bool) error
	Close() error
}
