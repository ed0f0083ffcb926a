// Package digest implements the Curator: selecting, ranking, and
// summarizing the day's InformationUnits into a digest ready for the
// Notifier.
package digest

import (
	"context"

	"briefloom/internal/llm"
)

// Chatter is the narrow slice of *llm.Gateway the Curator needs for its
// daily_summary and history-avoidance LLM calls. Defined here rather than
// imported from internal/agents so digest does not depend on that package
// just for an interface shape; *llm.Gateway satisfies both.
type Chatter interface {
	ChatJSON(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (map[string]any, llm.Usage, error)
}

// Totals records the day's pipeline funnel for the digest header.
type Totals struct {
	Fetched  int
	Analyzed int
	Filtered int
}

// Digest is the Curator's output: the day's units sorted into the three
// buckets the Notifier renders, plus an LLM-written summary paragraph.
type Digest struct {
	Date         string
	TopPicks     []DigestItem
	QuickReads   []DigestItem
	Excluded     []DigestItem
	DailySummary string
	Totals       Totals
}

// DigestItem is one information unit as rendered in a digest, carrying
// just what the Notifier's template needs rather than the full
// infostore.InformationUnit.
type DigestItem struct {
	ID          string
	Title       string
	Summary     string
	Content     string
	L3Root      string
	ValueScore  float64
	Sources     []string
	KeyInsights []string
}
