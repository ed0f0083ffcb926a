// Package agents implements the stateless analysis functions that turn a
// raw Article into enrichment layers and InformationUnits: Collector,
// Librarian, the three analysts, Editor, Extractor, and Merger. Every
// agent is a pure function of (input, context) to an AgentOutput; none
// holds state across calls beyond the *llm.Gateway and *vectorindex.Index
// it was constructed with.
package agents

import (
	"context"
	"time"

	"briefloom/internal/article"
	"briefloom/internal/entitystore"
	"briefloom/internal/infostore"
	"briefloom/internal/llm"
)

// Chatter is the narrow slice of *llm.Gateway every JSON-emitting agent
// needs. Agents depend on this interface, not the concrete Gateway, so
// tests can supply a stub without a live model endpoint.
type Chatter interface {
	ChatJSON(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (map[string]any, llm.Usage, error)
}

// AgentTrace records one agent invocation for audit and telemetry.
type AgentTrace struct {
	Name        string
	StartedAt   time.Time
	EndedAt     time.Time
	Duration    time.Duration
	TokenUsage  TokenUsage
	InputSummary  string
	OutputSummary string
	Error       string
}

type TokenUsage struct {
	Prompt     int
	Completion int
	Total      int
}

// AgentOutput is the uniform return shape of every agent's process function.
type AgentOutput struct {
	Success bool
	Data    map[string]any
	Trace   AgentTrace
	Error   error
}

// Mode selects how deeply the legacy article-centric pipeline analyzes an
// article.
type Mode string

const (
	ModeQuick    Mode = "QUICK"
	ModeStandard Mode = "STANDARD"
	ModeDeep     Mode = "DEEP"
)

// EntityMention is a lightweight entity reference as emitted by Collector,
// before Extractor resolves it into the full entity hierarchy.
type EntityMention struct {
	Name        string
	Type        string
	Description string
}

// TimelineEvent is one entry in Collector's reconstructed timeline.
type TimelineEvent struct {
	Time   string
	Event  string
	Impact string
}

// CollectorReport is the Collector agent's structured output.
type CollectorReport struct {
	Who         []string
	What        string
	When        string
	Where       string
	Why         string
	How         string
	Entities    []EntityMention
	Timeline    []TimelineEvent
	CoreSummary string
}

// KnowledgeGraphEdge is an inferred relation surfaced by the Librarian.
type KnowledgeGraphEdge struct {
	Source string
	Target string
	Type   string
}

// LibrarianReport is the Librarian agent's structured output.
type LibrarianReport struct {
	HistoricalContext string
	KnowledgeGraph    []KnowledgeGraphEdge
	RelatedArticles   []RelatedArticle
}

// RelatedArticle is one raw vector-index hit surfaced by the Librarian.
type RelatedArticle struct {
	ID    string
	Title string
	Score float64
}

// AnalystReport is the fixed schema shared by Skeptic, Economist, and
// Detective: a named analytical lens plus its findings.
type AnalystReport struct {
	Analyst     string
	Summary     string
	KeyPoints   []string
	Confidence  float64
	RedFlags    []string // populated by Skeptic; empty for the others
}

// EnrichedArticle is the Editor's consolidated view of an article after
// whichever analysis layers ran.
type EnrichedArticle struct {
	Article        article.Article
	Collector      *CollectorReport
	Librarian      *LibrarianReport
	Analysts       map[string]AnalystReport
	OverallScore   float64
	IsTopPick      bool
	Summary        string
	Traces         []AgentTrace
}

// AnalysisContext is the mutable context threaded through one article's
// analysis. It is never persisted; it exists only for the duration of one
// analyze_article or process_article call.
type AnalysisContext struct {
	Article         article.Article
	CleanedContent  string
	Collector       *CollectorReport
	Librarian       *LibrarianReport
	AnalystReports  map[string]AnalystReport
	Mode            Mode
	Traces          []AgentTrace
}

// ExtractedUnit bundles an InformationUnit candidate with the raw
// entity/relation data the Extractor found alongside it, for the
// orchestrator to hand to the Entity Store.
type ExtractedUnit struct {
	Unit      infostore.InformationUnit
	Entities  []entitystore.ExtractedEntity
	Relations []entitystore.ExtractedRelation
}
