// Package orchestrator wires the agents package's stateless functions into
// the two entry points this package exposes: analyze_article (the legacy
// article-centric Mode selector) and process_article (the modern
// information-centric pipeline). Neither entry point contains agent logic
// itself; this package only sequences calls, fans analysts out and joins
// them, and persists whatever the agents produce.
package orchestrator

import (
	"log/slog"

	"briefloom/internal/agents"
	"briefloom/internal/article"
	"briefloom/internal/entitystore"
	"briefloom/internal/infostore"
	"briefloom/internal/logging"
	"briefloom/internal/vectorindex"
)

// Orchestrator holds every agent and store the two pipelines depend on.
// Construct one per process; it is safe for concurrent use by multiple
// goroutines processing different articles.
type Orchestrator struct {
	collector *agents.Collector
	librarian *agents.Librarian
	skeptic   *agents.Analyst
	economist *agents.Analyst
	detective *agents.Analyst
	editor    *agents.Editor
	extractor *agents.Extractor
	merger    *agents.Merger

	infoStore   infostore.Store
	entityStore entitystore.Store
	index       vectorindex.Index
	traces      TraceWriter

	concurrency int
	logger      *slog.Logger
}

// Config bundles the collaborators an Orchestrator is built from. EntityStore
// and Traces may be nil: the information-centric pipeline skips the
// knowledge-graph step without one, and a nil TraceWriter makes trace writes
// a no-op.
type Config struct {
	Collector   *agents.Collector
	Librarian   *agents.Librarian
	Skeptic     *agents.Analyst
	Economist   *agents.Analyst
	Detective   *agents.Analyst
	Editor      *agents.Editor
	Extractor   *agents.Extractor
	Merger      *agents.Merger
	InfoStore   infostore.Store
	EntityStore entitystore.Store
	Index       vectorindex.Index
	Traces      TraceWriter
	Concurrency int // across-article concurrency for process_article batches; default 5
	Logger      *slog.Logger
}

func New(cfg Config) *Orchestrator {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Orchestrator{
		collector: cfg.Collector, librarian: cfg.Librarian,
		skeptic: cfg.Skeptic, economist: cfg.Economist, detective: cfg.Detective,
		editor: cfg.Editor, extractor: cfg.Extractor, merger: cfg.Merger,
		infoStore: cfg.InfoStore, entityStore: cfg.EntityStore, index: cfg.Index,
		traces:      cfg.Traces,
		concurrency: concurrency,
		logger:      logging.Default(cfg.Logger).With("component", "orchestrator"),
	}
}

// trivialEnrichedArticle is the fallback used when analyze_article's
// top-level flow hits an unhandled error: an EnrichedArticle derived from
// nothing but the Article itself.
func trivialEnrichedArticle(a article.Article) agents.EnrichedArticle {
	return agents.EnrichedArticle{
		Article:      a,
		Summary:      a.Title,
		OverallScore: 0,
		IsTopPick:    false,
	}
}

func collectEntityMentions(report *agents.CollectorReport) []agents.EntityMention {
	if report == nil {
		return nil
	}
	return report.Entities
}
