package agents

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"briefloom/internal/infostore"
	"briefloom/internal/logging"
)

var sentenceSplitPattern = regexp.MustCompile(`(?:[.!?]+\s+|\n+)`)

// Merger combines two or more InformationUnits that refer to the same
// underlying fact into one, per the Merger's lettered merge rules. The
// first unit in units is the retained identity unless the caller has
// already overwritten its ID/Fingerprint to force a different identity to
// survive (the semantic-dedup case in the orchestrator).
type Merger struct {
	logger *slog.Logger
}

func NewMerger(logger *slog.Logger) *Merger {
	return &Merger{logger: logging.Default(logger).With("agent", "merger")}
}

func (m *Merger) Name() string { return "merger" }

// Merge requires len(units) >= 1; a single-unit input is returned
// unchanged (identity + content already canonical).
func (m *Merger) Merge(units []infostore.InformationUnit) infostore.InformationUnit {
	if len(units) == 0 {
		return infostore.InformationUnit{}
	}

	merged := units[0]
	if len(units) == 1 {
		return merged
	}

	merged.Content = unionSentences(units)
	merged.KeyInsights = unionStrings(collectKeyInsights(units))

	merged.Scores = mergeScores(units)

	merged.Sources = unionSourcesByURL(units)
	merged.MergedCount = len(merged.Sources)
	if merged.MergedCount == 0 {
		merged.MergedCount = 1
	}

	merged.UpdatedAt = time.Now().UTC()
	return merged
}

func unionSentences(units []infostore.InformationUnit) string {
	seen := make(map[string]bool)
	var sentences []string
	for _, u := range units {
		for _, s := range sentenceSplitPattern.Split(u.Content, -1) {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			key := strings.ToLower(s)
			if seen[key] {
				continue
			}
			seen[key] = true
			sentences = append(sentences, s)
		}
	}
	return strings.Join(sentences, ". ")
}

func collectKeyInsights(units []infostore.InformationUnit) []string {
	var all []string
	for _, u := range units {
		all = append(all, u.KeyInsights...)
	}
	return all
}

func unionStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// mergeScores computes information_gain and actionability as
// scarcity-weighted averages across inputs (so a unit with a more unique
// / scarce claim pulls those two dimensions toward its own values more),
// and takes the max of scarcity and impact_magnitude.
func mergeScores(units []infostore.InformationUnit) infostore.ValueScores {
	var weightedGain, weightedActionability, totalWeight float64
	var maxScarcity, maxImpact float64

	for _, u := range units {
		weight := u.Scores.Scarcity
		if weight <= 0 {
			weight = 1 // avoid an all-zero-scarcity input collapsing the average to zero
		}
		weightedGain += u.Scores.InformationGain * weight
		weightedActionability += u.Scores.Actionability * weight
		totalWeight += weight

		if u.Scores.Scarcity > maxScarcity {
			maxScarcity = u.Scores.Scarcity
		}
		if u.Scores.ImpactMagnitude > maxImpact {
			maxImpact = u.Scores.ImpactMagnitude
		}
	}

	scores := infostore.ValueScores{Scarcity: maxScarcity, ImpactMagnitude: maxImpact}
	if totalWeight > 0 {
		scores.InformationGain = weightedGain / totalWeight
		scores.Actionability = weightedActionability / totalWeight
	}
	return scores
}

func unionSourcesByURL(units []infostore.InformationUnit) []infostore.SourceReference {
	seen := make(map[string]bool)
	var out []infostore.SourceReference
	for _, u := range units {
		for _, src := range u.Sources {
			if seen[src.URL] {
				continue
			}
			seen[src.URL] = true
			out = append(out, src)
		}
	}
	return out
}
