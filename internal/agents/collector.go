package agents

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"briefloom/internal/article"
	"briefloom/internal/llm"
	"briefloom/internal/logging"
)

// boilerplatePatterns are common newsletter/site chrome phrases stripped
// from article content before analysis. Matching is case-insensitive.
var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)click (here )?to read more`),
	regexp.MustCompile(`(?i)follow us on (twitter|facebook|instagram|linkedin)`),
	regexp.MustCompile(`(?i)subscribe to our newsletter`),
	regexp.MustCompile(`(?i)sign up for our newsletter`),
	regexp.MustCompile(`(?i)share this article`),
	regexp.MustCompile(`(?i)all rights reserved`),
}

var (
	htmlTagPattern   = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeContent strips HTML tags, known boilerplate phrases, and
// collapses whitespace, per the Collector's normalization contract.
func NormalizeContent(raw string) string {
	s := htmlTagPattern.ReplaceAllString(raw, " ")
	for _, p := range boilerplatePatterns {
		s = p.ReplaceAllString(s, " ")
	}
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

const collectorSystemPrompt = `You are the Collector agent in a news analysis pipeline.
Given an article's title and normalized content, extract:
- who: list of people/organizations central to the story
- what: the core event or claim, one sentence
- when: the time the event occurred, as stated in the article
- where: the location, if any
- why: the stated or inferable cause/motivation
- how: the mechanism or process described
- entities: list of {name, type, description} for every named entity
- timeline: list of {time, event, impact} for any sequence of events described
- core_summary: a two-to-three sentence neutral summary

Respond with a single JSON object with exactly these fields. Use empty
strings or empty lists for anything not present in the article. Do not
invent facts not present in the text.`

// Collector normalizes an article's content and extracts its 5W1H,
// entities, and timeline via the LLM Gateway.
type Collector struct {
	gateway Chatter
	logger  *slog.Logger
}

func NewCollector(gateway Chatter, logger *slog.Logger) *Collector {
	return &Collector{gateway: gateway, logger: logging.Default(logger).With("agent", "collector")}
}

func (c *Collector) Name() string { return "collector" }

func (c *Collector) Process(ctx context.Context, a article.Article) AgentOutput {
	trace := AgentTrace{Name: c.Name(), StartedAt: nowUTC()}
	defer func() { trace.EndedAt = nowUTC(); trace.Duration = trace.EndedAt.Sub(trace.StartedAt) }()

	cleaned := NormalizeContent(a.ExtractedContent)
	if cleaned == "" {
		cleaned = NormalizeContent(a.RawContent)
	}

	ctx = llm.WithCallContext(ctx, llm.CallContext{AgentName: c.Name()})
	user := "Title: " + a.Title + "\n\nContent:\n" + cleaned
	messages := llm.BuildMessages(collectorSystemPrompt, user)

	parsed, _, err := c.gateway.ChatJSON(ctx, messages, llm.ChatOptions{Temperature: 0.2})
	if err != nil {
		c.logger.Warn("collector JSON parse failed, emitting empty defaults", "error", err, "url", a.URL)
		report := emptyCollectorReport()
		trace.OutputSummary = "empty defaults after parse failure"
		trace.Error = err.Error()
		return AgentOutput{Success: true, Data: map[string]any{"report": report, "cleaned_content": cleaned}, Trace: trace}
	}

	report := collectorReportFromJSON(parsed)
	trace.OutputSummary = report.CoreSummary
	return AgentOutput{Success: true, Data: map[string]any{"report": report, "cleaned_content": cleaned}, Trace: trace}
}

func emptyCollectorReport() CollectorReport {
	return CollectorReport{}
}

func collectorReportFromJSON(m map[string]any) CollectorReport {
	r := CollectorReport{
		What: asString(m["what"]), When: asString(m["when"]), Where: asString(m["where"]),
		Why: asString(m["why"]), How: asString(m["how"]), CoreSummary: asString(m["core_summary"]),
		Who: asStringList(m["who"]),
	}
	if rawEntities, ok := m["entities"].([]any); ok {
		for _, re := range rawEntities {
			em, ok := re.(map[string]any)
			if !ok {
				continue
			}
			r.Entities = append(r.Entities, EntityMention{
				Name: asString(em["name"]), Type: asString(em["type"]), Description: asString(em["description"]),
			})
		}
	}
	if rawTimeline, ok := m["timeline"].([]any); ok {
		for _, rt := range rawTimeline {
			tm, ok := rt.(map[string]any)
			if !ok {
				continue
			}
			r.Timeline = append(r.Timeline, TimelineEvent{
				Time: asString(tm["time"]), Event: asString(tm["event"]), Impact: asString(tm["impact"]),
			})
		}
	}
	return r
}
