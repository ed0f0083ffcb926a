// Package vectorindex is a deduplication-quality similarity index, not a
// search engine. The orchestrator treats it as opaque: any backend
// returning {id, score} tuples in descending score, with scores mapped to
// [-1, 1], is acceptable.
package vectorindex

import "context"

// Hit is one similarity search result.
type Hit struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Index is the pluggable vector-index contract.
type Index interface {
	// Add indexes title+content under id, replacing any prior entry for id.
	Add(ctx context.Context, id, title, content string, metadata map[string]string) error

	// Search returns up to topK hits most similar to query, descending by score.
	// filter, if non-nil, restricts candidates to those whose metadata is a superset of it.
	Search(ctx context.Context, query string, topK int, filter map[string]string) ([]Hit, error)

	// Recent returns up to limit most recently added ids, most recent first.
	Recent(ctx context.Context, limit int) ([]string, error)

	// Clear removes every indexed vector.
	Clear(ctx context.Context) error
}
