package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"briefloom/internal/article"
	"briefloom/internal/llm"
	"briefloom/internal/logging"
	"briefloom/internal/vectorindex"
)

const librarianSystemPrompt = `You are the Librarian agent in a news analysis pipeline.
Given an article and a list of related prior articles found by similarity
search, write:
- historical_context: a short prose paragraph situating this article
  against the related ones (what's new, what's recurring)
- knowledge_graph: a list of {source, target, type} inferred relations
  among the entities mentioned across the article and its related set

Respond with a single JSON object with exactly these two fields. If there
is no meaningful historical context, return an empty string and an empty list.`

// Librarian queries the vector index for related prior articles and asks
// the LLM to situate the current article against them.
type Librarian struct {
	gateway Chatter
	index   vectorindex.Index
	logger  *slog.Logger
}

func NewLibrarian(gateway Chatter, index vectorindex.Index, logger *slog.Logger) *Librarian {
	return &Librarian{gateway: gateway, index: index, logger: logging.Default(logger).With("agent", "librarian")}
}

func (l *Librarian) Name() string { return "librarian" }

// Process queries the vector index with title + first-5-entity-names,
// top_k=5, then asks the LLM to synthesize historical context and an
// inferred knowledge graph. The orchestrator is responsible for writing
// the article into the vector index after analysis completes.
func (l *Librarian) Process(ctx context.Context, a article.Article, entities []EntityMention) AgentOutput {
	trace := AgentTrace{Name: l.Name(), StartedAt: nowUTC()}
	defer func() { trace.EndedAt = nowUTC(); trace.Duration = trace.EndedAt.Sub(trace.StartedAt) }()

	names := make([]string, 0, 5)
	for i, e := range entities {
		if i >= 5 {
			break
		}
		names = append(names, e.Name)
	}
	query := a.Title + " " + strings.Join(names, " ")

	hits, err := l.index.Search(ctx, query, 5, nil)
	if err != nil {
		l.logger.Warn("librarian vector search failed", "error", err, "url", a.URL)
		hits = nil
	}

	related := make([]RelatedArticle, 0, len(hits))
	for _, h := range hits {
		related = append(related, RelatedArticle{ID: h.ID, Title: h.Metadata["title"], Score: h.Score})
	}

	ctx = llm.WithCallContext(ctx, llm.CallContext{AgentName: l.Name()})
	user := fmt.Sprintf("Article title: %s\n\nRelated prior articles:\n%s", a.Title, formatRelated(related))
	messages := llm.BuildMessages(librarianSystemPrompt, user)

	parsed, _, err := l.gateway.ChatJSON(ctx, messages, llm.ChatOptions{Temperature: 0.3})
	if err != nil {
		l.logger.Warn("librarian JSON parse failed, emitting empty context", "error", err, "url", a.URL)
		report := LibrarianReport{RelatedArticles: related}
		trace.Error = err.Error()
		return AgentOutput{Success: true, Data: map[string]any{"report": report}, Trace: trace}
	}

	report := LibrarianReport{
		HistoricalContext: asString(parsed["historical_context"]),
		RelatedArticles:   related,
	}
	if rawEdges, ok := parsed["knowledge_graph"].([]any); ok {
		for _, re := range rawEdges {
			em, ok := re.(map[string]any)
			if !ok {
				continue
			}
			report.KnowledgeGraph = append(report.KnowledgeGraph, KnowledgeGraphEdge{
				Source: asString(em["source"]), Target: asString(em["target"]), Type: asString(em["type"]),
			})
		}
	}

	trace.OutputSummary = report.HistoricalContext
	return AgentOutput{Success: true, Data: map[string]any{"report": report}, Trace: trace}
}

func formatRelated(related []RelatedArticle) string {
	if len(related) == 0 {
		return "(none found)"
	}
	var b strings.Builder
	for _, r := range related {
		fmt.Fprintf(&b, "- %s (similarity %.2f)\n", r.Title, r.Score)
	}
	return b.String()
}
