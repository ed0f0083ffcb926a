package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"briefloom/internal/agents"
	"briefloom/internal/article"
	"briefloom/internal/infostore"
	"golang.org/x/sync/errgroup"
)

const (
	semanticSimilarityThreshold = 0.6
	semanticTopK                = 3
)

// ProcessArticle runs the information-centric pipeline: an optional DEEP
// consultant phase, Extraction, and a sequential per-candidate dedup loop
// (exact fingerprint match, then semantic similarity, then novel), writing
// each resulting unit to the Entity Store's knowledge graph along the way.
// Candidates within one article are processed strictly in order, since a
// later candidate may semantically match one just persisted by an earlier
// iteration; callers wanting concurrency call this once per article from
// their own worker pool, bounded by Orchestrator's configured concurrency.
func (o *Orchestrator) ProcessArticle(ctx context.Context, a article.Article, mode agents.Mode) ([]infostore.InformationUnit, error) {
	var analystReports map[string]agents.AnalystReport
	if mode == agents.ModeDeep {
		ac := &agents.AnalysisContext{Article: a, Mode: mode}
		o.runAnalystsParallel(ctx, a, ac)
		analystReports = ac.AnalystReports
	}

	out := o.extractor.Process(ctx, a, analystReports)
	if !out.Success {
		return nil, fmt.Errorf("extractor failed for %s: %w", a.URL, out.Error)
	}
	candidates, _ := out.Data["units"].([]agents.ExtractedUnit)

	results := make([]infostore.InformationUnit, 0, len(candidates))
	for _, candidate := range candidates {
		unit, err := o.processCandidate(ctx, candidate.Unit)
		if err != nil {
			return results, fmt.Errorf("process candidate %s: %w", candidate.Unit.ID, err)
		}
		results = append(results, unit)

		if o.entityStore != nil {
			if _, err := o.entityStore.ProcessExtracted(ctx, unit.ID, candidate.Entities, candidate.Relations, unit.EventTime); err != nil {
				o.logger.Warn("entity store processing failed", "error", err, "unit_id", unit.ID)
			}
		}
		unit.EntityProcessed = true
		if err := o.infoStore.Save(ctx, &unit); err != nil {
			o.logger.Warn("failed to persist entity_processed flag", "error", err, "unit_id", unit.ID)
		} else {
			results[len(results)-1] = unit
		}
	}
	return results, nil
}

// articleResult pairs one article's processing outcome with its source
// article, since ProcessArticles fans out across articles concurrently and
// the caller needs to know which result belongs to which input.
type articleResult struct {
	Article article.Article
	Units   []infostore.InformationUnit
	Err     error
}

// ProcessArticles runs ProcessArticle over every article in arts, up to
// Orchestrator's configured concurrency. Each article's own candidate loop
// stays sequential (required for within-article semantic dedup ordering);
// only the across-article fan-out is parallel, mirroring the fetcher's
// bounded-worker-pool idiom. A single article's failure does not stop the
// others.
func (o *Orchestrator) ProcessArticles(ctx context.Context, arts []article.Article, mode agents.Mode) []articleResult {
	sem := make(chan struct{}, o.concurrency)
	eg, egCtx := errgroup.WithContext(ctx)

	results := make([]articleResult, len(arts))
	for i, a := range arts {
		i, a := i, a
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			units, err := o.ProcessArticle(egCtx, a, mode)
			if err != nil {
				o.logger.Warn("process_article failed", "error", err, "url", a.URL)
			}
			results[i] = articleResult{Article: a, Units: units, Err: err}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// processCandidate implements the dedup/merge/persist decision for one
// exact-fingerprint dedup, else semantic dedup, else a novel persist.
func (o *Orchestrator) processCandidate(ctx context.Context, candidate infostore.InformationUnit) (infostore.InformationUnit, error) {
	existing, err := o.infoStore.GetByFingerprint(ctx, candidate.Fingerprint)
	if err != nil {
		return infostore.InformationUnit{}, fmt.Errorf("lookup by fingerprint: %w", err)
	}
	if existing != nil {
		merged := o.merger.Merge([]infostore.InformationUnit{*existing, candidate})
		merged.ID = existing.ID
		merged.Fingerprint = existing.Fingerprint
		if err := o.infoStore.Save(ctx, &merged); err != nil {
			return infostore.InformationUnit{}, fmt.Errorf("save exact-match merge: %w", err)
		}
		return merged, nil
	}

	matches, err := o.infoStore.FindSimilar(ctx, &candidate, semanticSimilarityThreshold, semanticTopK)
	if err != nil {
		o.logger.Warn("semantic similarity search failed, treating candidate as novel", "error", err, "unit_id", candidate.ID)
		matches = nil
	}
	if len(matches) > 0 {
		survivor := highestSimilaritySurvivor(matches)
		units := append([]infostore.InformationUnit{*survivor}, otherMatches(matches, survivor)...)
		units = append(units, candidate)

		merged := o.merger.Merge(units)
		merged.ID = survivor.ID
		merged.Fingerprint = survivor.Fingerprint
		if err := o.infoStore.Save(ctx, &merged); err != nil {
			return infostore.InformationUnit{}, fmt.Errorf("save semantic merge: %w", err)
		}
		return merged, nil
	}

	if err := o.infoStore.Save(ctx, &candidate); err != nil {
		return infostore.InformationUnit{}, fmt.Errorf("save novel unit: %w", err)
	}
	return candidate, nil
}

// highestSimilaritySurvivor picks the surviving identity for a semantic
// merge. FindSimilar returns matches ordered by descending similarity, so
// matches[0] is the closest match and its id/fingerprint survive the merge.
// Ties at the top similarity score are not broken by CreatedAt: the
// survivor is whichever tied match the vector index lists first.
// MemoryIndex's stable sort keeps tied entries in the order they were added
// or last re-added (every Save re-adds a unit), and PostgresIndex gives tied
// rows no defined order.
func highestSimilaritySurvivor(matches []*infostore.InformationUnit) *infostore.InformationUnit {
	return matches[0]
}

// otherMatches returns every match besides survivor, sorted oldest-first, so
// the Merger sees a stable, deterministic order for the remaining inputs.
func otherMatches(matches []*infostore.InformationUnit, survivor *infostore.InformationUnit) []infostore.InformationUnit {
	out := make([]infostore.InformationUnit, 0, len(matches)-1)
	for _, m := range matches {
		if m == survivor {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
