package orchestrator

import (
	"context"

	"briefloom/internal/agents"
	"briefloom/internal/article"
	"golang.org/x/sync/errgroup"
)

// AnalyzeArticle runs the legacy article-centric pipeline: QUICK is
// Collector-only, STANDARD adds the Librarian, DEEP fans the three analysts
// out in parallel before the Editor assembles the result. Any unhandled
// error in the flow falls back to a trivial EnrichedArticle rather than
// propagating; the error is still logged.
func (o *Orchestrator) AnalyzeArticle(ctx context.Context, a article.Article, mode agents.Mode) agents.EnrichedArticle {
	enriched, err := o.runAnalyze(ctx, a, mode)
	if err != nil {
		o.logger.Error("analyze_article failed, falling back to trivial result", "error", err, "url", a.URL)
		enriched = trivialEnrichedArticle(a)
	}

	if o.traces != nil {
		if werr := o.traces.WriteSession(ctx, a.URL, enriched.Traces, enriched); werr != nil {
			o.logger.Warn("failed to write analyze_article trace session", "error", werr, "url", a.URL)
		}
	}

	if o.index != nil {
		meta := map[string]string{"title": a.Title, "url": a.URL}
		if werr := o.index.Add(ctx, a.URL, a.Title, enriched.Summary, meta); werr != nil {
			o.logger.Warn("failed to index article for future librarian searches", "error", werr, "url", a.URL)
		}
	}
	return enriched
}

func (o *Orchestrator) runAnalyze(ctx context.Context, a article.Article, mode agents.Mode) (agents.EnrichedArticle, error) {
	ac := &agents.AnalysisContext{Article: a, Mode: mode}

	if o.collector != nil {
		out := o.collector.Process(ctx, a)
		ac.Traces = append(ac.Traces, out.Trace)
		if report, ok := out.Data["report"].(agents.CollectorReport); ok {
			ac.Collector = &report
		}
		if cleaned, ok := out.Data["cleaned_content"].(string); ok {
			ac.CleanedContent = cleaned
		}
	}

	if mode == agents.ModeStandard || mode == agents.ModeDeep {
		if o.librarian != nil {
			out := o.librarian.Process(ctx, a, collectEntityMentions(ac.Collector))
			ac.Traces = append(ac.Traces, out.Trace)
			if report, ok := out.Data["report"].(agents.LibrarianReport); ok {
				ac.Librarian = &report
			}
		}
	}

	if mode == agents.ModeDeep {
		o.runAnalystsParallel(ctx, a, ac)
	}

	out := o.editor.Process(ac)
	ac.Traces = append(ac.Traces, out.Trace)
	enriched, ok := out.Data["enriched"].(agents.EnrichedArticle)
	if !ok {
		return trivialEnrichedArticle(a), nil
	}
	enriched.Traces = ac.Traces
	return enriched, nil
}

// runAnalystsParallel launches Skeptic, Economist, and Detective
// concurrently and joins them. A failed or unparseable analyst call already
// yields an empty report in its own slot (agents.Analyst.Process never
// returns Success: false), so there is nothing for this fan-out to recover
// from beyond waiting for every goroutine to finish; errgroup is used purely
// for its WaitGroup-plus-context-cancellation convenience, not for error
// propagation.
func (o *Orchestrator) runAnalystsParallel(ctx context.Context, a article.Article, ac *agents.AnalysisContext) {
	contextSummary := summarizeContext(ac)

	type result struct {
		out  agents.AgentOutput
		name string
	}
	results := make(chan result, 3)

	eg, egCtx := errgroup.WithContext(ctx)
	for _, an := range []*agents.Analyst{o.skeptic, o.economist, o.detective} {
		an := an
		if an == nil {
			continue
		}
		eg.Go(func() error {
			out := an.Process(egCtx, a, contextSummary)
			results <- result{out: out, name: an.Name()}
			return nil
		})
	}

	_ = eg.Wait()
	close(results)

	ac.AnalystReports = make(map[string]agents.AnalystReport)
	for r := range results {
		ac.Traces = append(ac.Traces, r.out.Trace)
		if report, ok := r.out.Data["report"].(agents.AnalystReport); ok {
			ac.AnalystReports[r.name] = report
		}
	}
}

func summarizeContext(ac *agents.AnalysisContext) string {
	if ac.Collector == nil {
		return ""
	}
	s := ac.Collector.CoreSummary
	if ac.Librarian != nil && ac.Librarian.HistoricalContext != "" {
		s += "\n" + ac.Librarian.HistoricalContext
	}
	return s
}
