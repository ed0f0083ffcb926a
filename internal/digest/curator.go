package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"briefloom/internal/infostore"
	"briefloom/internal/llm"
	"briefloom/internal/logging"
)

const (
	unsentWindow        = 100
	topPickThreshold    = 8.0
	quickReadThreshold  = 5.0
	topPicksMin         = 3
	topPicksMax         = 10
	quickReadsMax       = 20
	recentSentWindow    = 20
	defaultTopPickCount = 5
)

const dailySummarySystemPrompt = `You are the Curator agent assembling a daily digest.
Given the day's top picks (title + summary for each), write one paragraph
that ties them together as a daily briefing. Respond with a single JSON
object: {"daily_summary": "..."}`

const historyAvoidanceSystemPrompt = `You are the Curator agent deduplicating a candidate
digest against recently-sent items. Given a list of recently-sent
titles/summaries and a list of candidate titles/summaries (each tagged with
an id), identify candidate ids that are near-duplicates of something
already sent (same underlying story, not just the same topic). Respond with
a single JSON object: {"duplicate_ids": ["..."]}`

// Curator selects, ranks, and summarizes the day's unsent InformationUnits
// into a Digest.
type Curator struct {
	gateway      Chatter
	store        infostore.Store
	topPickCount int
	logger       *slog.Logger
}

// NewCurator constructs a Curator. topPickCount is the top-K fallback size
// used when too few units clear the top-pick score threshold; 0 uses the
// spec default of 5.
func NewCurator(gateway Chatter, store infostore.Store, topPickCount int, logger *slog.Logger) *Curator {
	if topPickCount <= 0 {
		topPickCount = defaultTopPickCount
	}
	return &Curator{gateway: gateway, store: store, topPickCount: topPickCount, logger: logging.Default(logger).With("component", "curator")}
}

// BuildDigest assembles a Digest from the store's unsent units. It does not
// mark anything sent; call MarkEmitted after the digest has actually been
// delivered.
func (c *Curator) BuildDigest(ctx context.Context, totals Totals) (*Digest, error) {
	units, err := c.store.GetUnsent(ctx, unsentWindow)
	if err != nil {
		return nil, fmt.Errorf("get_unsent: %w", err)
	}

	units = c.applyHistoryAvoidance(ctx, units)

	topPicks, remaining := c.selectTopPicks(units)
	quickReads, excluded := c.selectQuickReads(remaining)

	d := &Digest{
		Date:       time.Now().UTC().Format("2006-01-02"),
		TopPicks:   toDigestItems(topPicks),
		QuickReads: toDigestItems(quickReads),
		Excluded:   toDigestItems(excluded),
		Totals:     totals,
	}
	d.DailySummary = c.generateDailySummary(ctx, d.TopPicks)
	return d, nil
}

// MarkEmitted atomically marks every top-pick and quick-read unit in d as
// sent, recording the emission time. Excluded units are left unsent.
func (c *Curator) MarkEmitted(ctx context.Context, d *Digest) error {
	ids := make([]string, 0, len(d.TopPicks)+len(d.QuickReads))
	for _, item := range d.TopPicks {
		ids = append(ids, item.ID)
	}
	for _, item := range d.QuickReads {
		ids = append(ids, item.ID)
	}
	if len(ids) == 0 {
		return nil
	}
	return c.store.MarkSent(ctx, ids)
}

// selectTopPicks picks 3-10 units with value_score >= 8.0, preferring L3
// diversity on score ties. If fewer than 3 clear the threshold, it falls
// back to the top topPickCount units by score irrespective of threshold.
func (c *Curator) selectTopPicks(units []*infostore.InformationUnit) (picked []*infostore.InformationUnit, remaining []*infostore.InformationUnit) {
	var qualifying []*infostore.InformationUnit
	for _, u := range units {
		if u.ValueScore() >= topPickThreshold {
			qualifying = append(qualifying, u)
		}
	}

	if len(qualifying) >= topPicksMin {
		picked = pickDiverse(qualifying, topPicksMax)
	} else {
		picked = pickDiverse(units, c.topPickCount)
	}

	return picked, exclude(units, picked)
}

// selectQuickReads picks up to 20 units with value_score >= 5.0 from units
// not already chosen as top picks.
func (c *Curator) selectQuickReads(units []*infostore.InformationUnit) (picked []*infostore.InformationUnit, remaining []*infostore.InformationUnit) {
	var qualifying []*infostore.InformationUnit
	for _, u := range units {
		if u.ValueScore() >= quickReadThreshold {
			qualifying = append(qualifying, u)
		}
	}
	picked = pickDiverse(qualifying, quickReadsMax)
	return picked, exclude(units, picked)
}

// pickDiverse greedily selects up to limit units from candidates, highest
// value_score first; among units tied at the current best score, it
// prefers one whose l3_root is not yet represented among already-picked
// units, preferring representation across categories over raw score alone.
func pickDiverse(candidates []*infostore.InformationUnit, limit int) []*infostore.InformationUnit {
	remaining := make([]*infostore.InformationUnit, len(candidates))
	copy(remaining, candidates)
	sort.SliceStable(remaining, func(i, j int) bool { return remaining[i].ValueScore() > remaining[j].ValueScore() })

	seenL3 := make(map[string]bool)
	var picked []*infostore.InformationUnit
	for len(picked) < limit && len(remaining) > 0 {
		topScore := remaining[0].ValueScore()
		bestIdx := 0
		for i := 0; i < len(remaining) && remaining[i].ValueScore() == topScore; i++ {
			if !seenL3[l3Of(remaining[i])] {
				bestIdx = i
				break
			}
		}
		picked = append(picked, remaining[bestIdx])
		seenL3[l3Of(remaining[bestIdx])] = true
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return picked
}

func l3Of(u *infostore.InformationUnit) string {
	if len(u.EntityAnchors) == 0 {
		return ""
	}
	return u.EntityAnchors[0].L3Root
}

func exclude(all, chosen []*infostore.InformationUnit) []*infostore.InformationUnit {
	chosenIDs := make(map[string]bool, len(chosen))
	for _, u := range chosen {
		chosenIDs[u.ID] = true
	}
	var out []*infostore.InformationUnit
	for _, u := range all {
		if !chosenIDs[u.ID] {
			out = append(out, u)
		}
	}
	return out
}

// applyHistoryAvoidance asks the LLM to flag candidates that are
// near-duplicates of recently-sent units, and filters them out. On any
// failure (no gateway, empty history, LLM error, or an unparseable
// response) it falls back to returning units unchanged: selection then
// simply proceeds as plain top-K by score.
func (c *Curator) applyHistoryAvoidance(ctx context.Context, units []*infostore.InformationUnit) []*infostore.InformationUnit {
	if c.gateway == nil || len(units) == 0 {
		return units
	}
	recent, err := c.store.GetRecentSent(ctx, recentSentWindow)
	if err != nil || len(recent) == 0 {
		return units
	}

	ctx = llm.WithCallContext(ctx, llm.CallContext{AgentName: "curator"})
	user := fmt.Sprintf("Recently sent:\n%s\n\nCandidates:\n%s", formatTitlesSummaries(recent), formatCandidates(units))
	messages := llm.BuildMessages(historyAvoidanceSystemPrompt, user)

	parsed, _, err := c.gateway.ChatJSON(ctx, messages, llm.ChatOptions{Temperature: 0.1})
	if err != nil {
		c.logger.Warn("history avoidance call failed, falling back to plain top-k", "error", err)
		return units
	}

	dupes := make(map[string]bool)
	if raw, ok := parsed["duplicate_ids"].([]any); ok {
		for _, r := range raw {
			if id, ok := r.(string); ok {
				dupes[id] = true
			}
		}
	}
	if len(dupes) == 0 {
		return units
	}

	var out []*infostore.InformationUnit
	for _, u := range units {
		if !dupes[u.ID] {
			out = append(out, u)
		}
	}
	return out
}

func (c *Curator) generateDailySummary(ctx context.Context, topPicks []DigestItem) string {
	if c.gateway == nil || len(topPicks) == 0 {
		return ""
	}
	ctx = llm.WithCallContext(ctx, llm.CallContext{AgentName: "curator"})
	var b strings.Builder
	for _, item := range topPicks {
		fmt.Fprintf(&b, "- %s: %s\n", item.Title, item.Summary)
	}
	messages := llm.BuildMessages(dailySummarySystemPrompt, b.String())

	parsed, _, err := c.gateway.ChatJSON(ctx, messages, llm.ChatOptions{Temperature: 0.4})
	if err != nil {
		c.logger.Warn("daily summary generation failed", "error", err)
		return ""
	}
	summary, _ := parsed["daily_summary"].(string)
	return summary
}

func formatTitlesSummaries(units []*infostore.InformationUnit) string {
	var b strings.Builder
	for _, u := range units {
		fmt.Fprintf(&b, "- %s: %s\n", u.Title, u.Summary)
	}
	return b.String()
}

func formatCandidates(units []*infostore.InformationUnit) string {
	var b strings.Builder
	for _, u := range units {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", u.ID, u.Title, u.Summary)
	}
	return b.String()
}

func toDigestItems(units []*infostore.InformationUnit) []DigestItem {
	out := make([]DigestItem, 0, len(units))
	for _, u := range units {
		sources := make([]string, 0, len(u.Sources))
		for _, src := range u.Sources {
			sources = append(sources, src.URL)
		}
		out = append(out, DigestItem{
			ID: u.ID, Title: u.Title, Summary: u.Summary, Content: u.Content,
			L3Root: l3Of(u), ValueScore: u.ValueScore(), Sources: sources, KeyInsights: u.KeyInsights,
		})
	}
	return out
}
