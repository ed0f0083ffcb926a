package agents

import (
	"log/slog"

	"briefloom/internal/logging"
)

// topPickThreshold mirrors the Curator's value_score >= 8.0 threshold
// for the legacy article-centric EnrichedArticle path.
const topPickThreshold = 8.0

// Editor merges every analysis layer gathered for one article into a
// single EnrichedArticle and computes its overall_score / is_top_pick.
type Editor struct {
	logger *slog.Logger
}

func NewEditor(logger *slog.Logger) *Editor {
	return &Editor{logger: logging.Default(logger).With("agent", "editor")}
}

func (e *Editor) Name() string { return "editor" }

// Process assembles the EnrichedArticle from whatever layers are present
// in ac. Missing layers (QUICK mode has no Librarian or analysts) are
// simply absent; the score heuristic degrades gracefully.
func (e *Editor) Process(ac *AnalysisContext) AgentOutput {
	trace := AgentTrace{Name: e.Name(), StartedAt: nowUTC()}
	defer func() { trace.EndedAt = nowUTC(); trace.Duration = trace.EndedAt.Sub(trace.StartedAt) }()

	enriched := EnrichedArticle{
		Article:   ac.Article,
		Collector: ac.Collector,
		Librarian: ac.Librarian,
		Analysts:  ac.AnalystReports,
	}

	summary := ""
	if ac.Collector != nil {
		summary = ac.Collector.CoreSummary
	}
	if summary == "" {
		summary = ac.Article.Title
	}
	enriched.Summary = summary

	enriched.OverallScore = e.computeOverallScore(ac)
	enriched.IsTopPick = enriched.OverallScore >= topPickThreshold

	trace.OutputSummary = enriched.Summary
	return AgentOutput{Success: true, Data: map[string]any{"enriched": enriched}, Trace: trace}
}

// computeOverallScore heuristically scores an article in [0,10]: a base
// score for having a usable summary at all, plus the mean analyst
// confidence (each already in [0,1]) scaled into the remaining headroom.
// QUICK mode (no analysts) lands squarely on the base score.
func (e *Editor) computeOverallScore(ac *AnalysisContext) float64 {
	base := 4.0
	if ac.Collector == nil || ac.Collector.CoreSummary == "" {
		base = 2.0
	}

	if len(ac.AnalystReports) == 0 {
		return clampScore(base)
	}

	var sumConfidence float64
	for _, report := range ac.AnalystReports {
		sumConfidence += report.Confidence
	}
	avgConfidence := sumConfidence / float64(len(ac.AnalystReports))

	return clampScore(base + avgConfidence*6.0)
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}
