package infostore

import "context"

// Store is the Information Store contract: content-addressed storage with
// exact-fingerprint and semantic-similarity dedup.
type Store interface {
	Exists(ctx context.Context, fingerprint string) (bool, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*InformationUnit, error)
	Get(ctx context.Context, id string) (*InformationUnit, error)

	// Save upserts by id, bumping UpdatedAt.
	Save(ctx context.Context, unit *InformationUnit) error

	// FindSimilar delegates to the Vector Index over
	// title + " " + summary + " " + first 3 key insights, returning units
	// with similarity >= threshold, best match first, bounded to topK.
	FindSimilar(ctx context.Context, unit *InformationUnit, threshold float64, topK int) ([]*InformationUnit, error)

	// GetUnsent orders by coalesce(event_time, created_at) desc.
	GetUnsent(ctx context.Context, limit int) ([]*InformationUnit, error)

	MarkSent(ctx context.Context, ids []string) error

	// GetRecentSent returns up to limit already-sent units, most recently
	// sent first, for the Curator's history-avoidance window.
	GetRecentSent(ctx context.Context, limit int) ([]*InformationUnit, error)
}
