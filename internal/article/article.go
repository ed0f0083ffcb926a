// Package article stores fetched articles: identity, extracted content,
// and sent state for the digest pipeline.
//
// Store does not:
//   - Fetch articles (internal/fetch does that)
//   - Analyze articles (internal/agents and internal/orchestrator do that)
//   - Decide which articles go in a digest (internal/digest does that)
package article

import (
	"context"
	"time"
)

// Article is a single fetched feed entry. URL is its identity: two
// articles with the same URL are the same article, and upsert is
// idempotent keyed on URL. Publish time, if present, is normalized to UTC.
// Articles are never mutated after analysis except to set SentAt.
type Article struct {
	URL              string
	Title            string
	RawContent       string
	ExtractedContent string
	SourceName       string
	Category         string
	Author           string
	PublishedAt      time.Time // zero if unknown
	FetchedAt        time.Time
	SentAt           time.Time // zero until included in a sent digest

	// Enrichment columns co-stored with the article row when the
	// article-centric legacy path (internal/orchestrator mode selector) is
	// used instead of the information-centric pipeline.
	OverallScore float64
	Summary      string
	Tags         []string
	Analysis     string // serialized per-layer analysis JSON, opaque to this package
}

// Store persists articles and tracks their sent state.
type Store interface {
	// Exists reports whether an article with this URL has already been stored.
	Exists(ctx context.Context, url string) (bool, error)

	// Upsert inserts or updates an article, keyed on URL. Idempotent.
	Upsert(ctx context.Context, a *Article) error

	// GetUnsent returns up to limit articles with a zero SentAt, oldest fetch
	// time first.
	GetUnsent(ctx context.Context, limit int) ([]*Article, error)

	// MarkSent sets SentAt to now for every URL given, atomically.
	MarkSent(ctx context.Context, urls []string, now time.Time) error

	// GetRecentSent returns up to limit articles sent within the last days
	// days, most recently sent first.
	GetRecentSent(ctx context.Context, days int, limit int) ([]*Article, error)

	// Cleanup deletes articles fetched more than retentionDays ago and
	// returns the number of rows removed.
	Cleanup(ctx context.Context, retentionDays int) (int, error)

	// List returns up to limit articles after skipping offset, most recently
	// fetched first. Used by the admin surface's article browser.
	List(ctx context.Context, limit, offset int) ([]*Article, error)

	// Delete removes the article with the given URL, if present.
	Delete(ctx context.Context, url string) error
}
