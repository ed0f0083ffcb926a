package agents

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"briefloom/internal/article"
	"briefloom/internal/entitystore"
	"briefloom/internal/infostore"
	"briefloom/internal/llm"
	"briefloom/internal/logging"
)

const extractorSystemPrompt = `You are the Extractor agent in a news analysis pipeline.
Break the article down into a list of atomic InformationUnits: distinct
facts, events, opinions, or data points, each independently meaningful.

For each unit emit:
- type: one of FACT, OPINION, EVENT, DATA
- title: a short headline for just this unit
- content: the supporting text for this unit
- summary: one sentence
- event_time: when this happened, as stated (may be relative, e.g. "last Tuesday")
- time_sensitivity: one of urgent, normal, evergreen
- who, what, when, where, why, how
- information_gain, actionability, scarcity, impact_magnitude: each a number,
  either in [0,1] (a fraction) or [1,10] directly
- state_change_type: one of TECH, CAPITAL, REGULATION, ORG, RISK, SENTIMENT, or empty
- state_subtypes: list of short strings
- entity_anchors: list of {l1_name, l1_role, l2_sector, l3_root, confidence}
- key_insights: list of short strings
- extracted_entities: list of {name, aliases, type, role, sentiment, state_dimension, state_change}
- extracted_relations: list of {source_name, target_name, type, strength, confidence}

Respond with a single JSON object: {"units": [...]}. Emit at least one unit
when the article contains any substantive claim.`

// Extractor turns an article (plus whatever analyst reports have
// accumulated) into a list of candidate InformationUnits, each carrying
// its own extracted entities/relations for the knowledge graph.
type Extractor struct {
	gateway       Chatter
	presetL3Roots []string
	logger        *slog.Logger
}

// NewExtractor constructs an Extractor. presetL3Roots may be nil to use
// infostore.PresetL3Roots.
func NewExtractor(gateway Chatter, presetL3Roots []string, logger *slog.Logger) *Extractor {
	return &Extractor{gateway: gateway, presetL3Roots: presetL3Roots, logger: logging.Default(logger).With("agent", "extractor")}
}

func (ex *Extractor) Name() string { return "extractor" }

func (ex *Extractor) Process(ctx context.Context, a article.Article, analystReports map[string]AnalystReport) AgentOutput {
	trace := AgentTrace{Name: ex.Name(), StartedAt: nowUTC()}
	defer func() { trace.EndedAt = nowUTC(); trace.Duration = trace.EndedAt.Sub(trace.StartedAt) }()

	ctx = llm.WithCallContext(ctx, llm.CallContext{AgentName: ex.Name()})
	user := "Title: " + a.Title + "\n\nContent:\n" + a.ExtractedContent + "\n\n" + formatAnalystReports(analystReports)
	messages := llm.BuildMessages(extractorSystemPrompt, user)

	parsed, _, err := ex.gateway.ChatJSON(ctx, messages, llm.ChatOptions{Temperature: 0.2})
	if err != nil {
		ex.logger.Warn("extractor call failed, emitting no units", "error", err, "url", a.URL)
		trace.Error = err.Error()
		return AgentOutput{Success: false, Data: map[string]any{"units": []ExtractedUnit{}}, Trace: trace, Error: err}
	}

	rawUnits, _ := parsed["units"].([]any)
	units := make([]ExtractedUnit, 0, len(rawUnits))
	for _, ru := range rawUnits {
		um, ok := ru.(map[string]any)
		if !ok {
			continue
		}
		units = append(units, ex.buildUnit(um, a))
	}

	trace.OutputSummary = fmt.Sprintf("%d units extracted", len(units))
	return AgentOutput{Success: true, Data: map[string]any{"units": units}, Trace: trace}
}

func (ex *Extractor) buildUnit(um map[string]any, a article.Article) ExtractedUnit {
	title := asString(um["title"])
	content := asString(um["content"])
	fingerprint := fingerprintOf(title, content)

	unit := infostore.InformationUnit{
		ID:          "iu_" + fingerprint[:16],
		Fingerprint: fingerprint,
		Type:        infostore.UnitType(strings.ToUpper(asString(um["type"]))),
		Title:       title,
		Content:     content,
		Summary:     asString(um["summary"]),
		EventTime:   asString(um["event_time"]),
		ReportTime:  time.Now().UTC(),
		TimeSensitivity: infostore.TimeSensitivity(asString(um["time_sensitivity"])),
		StateChangeType: infostore.ValidateStateChangeType(infostore.StateChangeType(strings.ToUpper(asString(um["state_change_type"])))),
		StateSubtypes:   asStringList(um["state_subtypes"]),
		KeyInsights:     asStringList(um["key_insights"]),
		Sources: []infostore.SourceReference{{
			URL: a.URL, Title: a.Title, SourceName: a.SourceName, PublishedAt: a.PublishedAt,
		}},
		PrimarySource: a.URL,
		MergedCount:   1,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	unit.FiveWOneH.Who = asString(um["who"])
	unit.FiveWOneH.What = asString(um["what"])
	unit.FiveWOneH.When = asString(um["when"])
	unit.FiveWOneH.Where = asString(um["where"])
	unit.FiveWOneH.Why = asString(um["why"])
	unit.FiveWOneH.How = asString(um["how"])

	unit.Scores = infostore.ValueScores{
		InformationGain: infostore.NormalizeScore(asFloat(um["information_gain"])),
		Actionability:   infostore.NormalizeScore(asFloat(um["actionability"])),
		Scarcity:        infostore.NormalizeScore(asFloat(um["scarcity"])),
		ImpactMagnitude: infostore.NormalizeScore(asFloat(um["impact_magnitude"])),
	}

	if rawAnchors, ok := um["entity_anchors"].([]any); ok {
		for _, ra := range rawAnchors {
			am, ok := ra.(map[string]any)
			if !ok {
				continue
			}
			unit.EntityAnchors = append(unit.EntityAnchors, infostore.EntityAnchor{
				L1Name: asString(am["l1_name"]), L1Role: asString(am["l1_role"]),
				L2Sector: asString(am["l2_sector"]),
				L3Root:   infostore.NormalizeL3Root(asString(am["l3_root"]), ex.presetL3Roots),
				Confidence: asFloat(am["confidence"]),
			})
		}
	}

	entities := extractedEntitiesFromJSON(um["extracted_entities"])
	relations := extractedRelationsFromJSON(um["extracted_relations"])

	return ExtractedUnit{Unit: unit, Entities: entities, Relations: relations}
}

func fingerprintOf(title, content string) string {
	normalized := strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(content))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func extractedEntitiesFromJSON(v any) []entitystore.ExtractedEntity {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]entitystore.ExtractedEntity, 0, len(raw))
	for _, r := range raw {
		em, ok := r.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, entitystore.ExtractedEntity{
			Name: asString(em["name"]), Aliases: asStringList(em["aliases"]),
			Type: entitystore.EntityType(strings.ToUpper(asString(em["type"]))),
			Role: entitystore.MentionRole(asString(em["role"])),
			Sentiment: entitystore.Sentiment(asString(em["sentiment"])),
			StateDimension: asString(em["state_dimension"]),
			StateChange: asString(em["state_change"]),
		})
	}
	return out
}

func extractedRelationsFromJSON(v any) []entitystore.ExtractedRelation {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]entitystore.ExtractedRelation, 0, len(raw))
	for _, r := range raw {
		rm, ok := r.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, entitystore.ExtractedRelation{
			SourceName: asString(rm["source_name"]), TargetName: asString(rm["target_name"]),
			Type: entitystore.RelationType(asString(rm["type"])),
			Strength: asFloat(rm["strength"]), Confidence: asFloat(rm["confidence"]),
		})
	}
	return out
}

func formatAnalystReports(reports map[string]AnalystReport) string {
	if len(reports) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Analyst reports:\n")
	for name, r := range reports {
		fmt.Fprintf(&b, "- %s: %s\n", name, r.Summary)
	}
	return b.String()
}
