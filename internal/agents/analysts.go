package agents

import (
	"context"
	"log/slog"

	"briefloom/internal/article"
	"briefloom/internal/llm"
	"briefloom/internal/logging"
)

const analystResponseContract = `Respond with a single JSON object with exactly these fields:
- summary: one-paragraph analysis from your assigned perspective
- key_points: list of short bullet-point findings
- confidence: a number in [0,1] reflecting how confident you are in this analysis
- red_flags: list of specific concerns (empty list if none; only the Skeptic
  perspective is expected to populate this meaningfully)`

const skepticSystemPrompt = `You are the Skeptic analyst in a news analysis pipeline.
Scrutinize the article for unsupported claims, missing context, conflicts
of interest, and signs of bias or spin.
` + analystResponseContract

const economistSystemPrompt = `You are the Economist analyst in a news analysis pipeline.
Analyze the article's economic and market implications: who benefits, who
is harmed, what the likely financial/market reaction is, and second-order
effects.
` + analystResponseContract

const detectiveSystemPrompt = `You are the Detective analyst in a news analysis pipeline.
Look for what is unstated: motives, timing, omissions, and connections to
other known events that the article itself does not draw out.
` + analystResponseContract

// Analyst is one of the three fixed-schema analytical lenses run in
// parallel during DEEP-mode analysis.
type Analyst struct {
	name    string
	prompt  string
	gateway Chatter
	logger  *slog.Logger
}

func NewSkeptic(gateway Chatter, logger *slog.Logger) *Analyst {
	return newAnalyst("skeptic", skepticSystemPrompt, gateway, logger)
}

func NewEconomist(gateway Chatter, logger *slog.Logger) *Analyst {
	return newAnalyst("economist", economistSystemPrompt, gateway, logger)
}

func NewDetective(gateway Chatter, logger *slog.Logger) *Analyst {
	return newAnalyst("detective", detectiveSystemPrompt, gateway, logger)
}

func newAnalyst(name, prompt string, gateway Chatter, logger *slog.Logger) *Analyst {
	return &Analyst{name: name, prompt: prompt, gateway: gateway, logger: logging.Default(logger).With("agent", name)}
}

func (an *Analyst) Name() string { return an.name }

// Process runs this analyst's lens over the article plus whatever context
// has accumulated so far (Collector/Librarian output, serialized by the
// caller into contextSummary). A failed or unparseable call yields an
// empty report in this analyst's slot without failing the pipeline.
func (an *Analyst) Process(ctx context.Context, a article.Article, contextSummary string) AgentOutput {
	trace := AgentTrace{Name: an.name, StartedAt: nowUTC()}
	defer func() { trace.EndedAt = nowUTC(); trace.Duration = trace.EndedAt.Sub(trace.StartedAt) }()

	ctx = llm.WithCallContext(ctx, llm.CallContext{AgentName: an.name})
	user := "Title: " + a.Title + "\n\nContext so far:\n" + contextSummary + "\n\nContent:\n" + a.ExtractedContent
	messages := llm.BuildMessages(an.prompt, user)

	parsed, _, err := an.gateway.ChatJSON(ctx, messages, llm.ChatOptions{Temperature: 0.4})
	if err != nil {
		an.logger.Warn("analyst call failed, emitting empty report", "error", err, "url", a.URL)
		trace.Error = err.Error()
		empty := AnalystReport{Analyst: an.name}
		return AgentOutput{Success: true, Data: map[string]any{"report": empty}, Trace: trace}
	}

	report := AnalystReport{
		Analyst:    an.name,
		Summary:    asString(parsed["summary"]),
		KeyPoints:  asStringList(parsed["key_points"]),
		Confidence: asFloat(parsed["confidence"]),
		RedFlags:   asStringList(parsed["red_flags"]),
	}
	trace.OutputSummary = report.Summary
	return AgentOutput{Success: true, Data: map[string]any{"report": report}, Trace: trace}
}
