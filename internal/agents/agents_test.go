package agents

import (
	"context"
	"testing"

	"briefloom/internal/article"
	"briefloom/internal/infostore"
	"briefloom/internal/llm"
)

// stubChatter is a Chatter that returns a fixed JSON object or error,
// letting agent tests run without a live model endpoint.
type stubChatter struct {
	response map[string]any
	err      error
}

func (s stubChatter) ChatJSON(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (map[string]any, llm.Usage, error) {
	if s.err != nil {
		return nil, llm.Usage{}, s.err
	}
	return s.response, llm.Usage{TotalTokens: 42}, nil
}

func TestNormalizeContentStripsTagsBoilerplateAndWhitespace(t *testing.T) {
	raw := "<p>Big news   today.</p> Click here to read more. Follow us on Twitter!"
	got := NormalizeContent(raw)
	if contains(got, "Click here") || contains(got, "Follow us") {
		t.Errorf("expected boilerplate stripped, got %q", got)
	}
	if contains(got, "<p>") || contains(got, "</p>") {
		t.Errorf("expected HTML tags stripped, got %q", got)
	}
	if contains(got, "  ") {
		t.Errorf("expected whitespace collapsed, got %q", got)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestCollectorEmitsEmptyDefaultsOnParseFailure(t *testing.T) {
	c := NewCollector(stubChatter{err: errParse("boom")}, nil)
	out := c.Process(context.Background(), article.Article{Title: "t", ExtractedContent: "some content"})
	if !out.Success {
		t.Fatalf("expected success=true even on parse failure, got %+v", out)
	}
	report, ok := out.Data["report"].(CollectorReport)
	if !ok {
		t.Fatalf("expected a CollectorReport, got %T", out.Data["report"])
	}
	if report.CoreSummary != "" {
		t.Errorf("expected empty defaults, got %+v", report)
	}
}

func TestCollectorParsesStructuredResponse(t *testing.T) {
	c := NewCollector(stubChatter{response: map[string]any{
		"who": []any{"Acme Corp"}, "what": "raised prices", "core_summary": "Acme raised prices.",
		"entities": []any{map[string]any{"name": "Acme Corp", "type": "COMPANY", "description": "a company"}},
	}}, nil)
	out := c.Process(context.Background(), article.Article{Title: "t", ExtractedContent: "content"})
	report := out.Data["report"].(CollectorReport)
	if report.CoreSummary != "Acme raised prices." {
		t.Errorf("core_summary = %q", report.CoreSummary)
	}
	if len(report.Entities) != 1 || report.Entities[0].Name != "Acme Corp" {
		t.Errorf("entities = %+v", report.Entities)
	}
}

func TestAnalystEmitsEmptyReportOnFailure(t *testing.T) {
	a := NewSkeptic(stubChatter{err: errParse("down")}, nil)
	out := a.Process(context.Background(), article.Article{Title: "t"}, "")
	report := out.Data["report"].(AnalystReport)
	if report.Analyst != "skeptic" {
		t.Errorf("expected analyst name preserved even on failure, got %q", report.Analyst)
	}
	if report.Summary != "" {
		t.Errorf("expected empty summary on failure, got %q", report.Summary)
	}
}

func TestEditorComputesHigherScoreWithAnalystConfidence(t *testing.T) {
	e := NewEditor(nil)

	quick := &AnalysisContext{Article: article.Article{Title: "t"}}
	quickOut := e.Process(quick)
	quickScore := quickOut.Data["enriched"].(EnrichedArticle).OverallScore

	deep := &AnalysisContext{
		Article:   article.Article{Title: "t"},
		Collector: &CollectorReport{CoreSummary: "summary"},
		AnalystReports: map[string]AnalystReport{
			"skeptic":   {Confidence: 0.9},
			"economist": {Confidence: 0.8},
		},
	}
	deepOut := e.Process(deep)
	deepEnriched := deepOut.Data["enriched"].(EnrichedArticle)

	if deepEnriched.OverallScore <= quickScore {
		t.Errorf("expected DEEP analysis with high analyst confidence to score higher than QUICK, got deep=%v quick=%v", deepEnriched.OverallScore, quickScore)
	}
	if !deepEnriched.IsTopPick {
		t.Errorf("expected high-confidence deep analysis to be a top pick, score=%v", deepEnriched.OverallScore)
	}
}

func TestMergeUnionsSourcesAndDedupesKeyInsights(t *testing.T) {
	m := NewMerger(nil)
	units := []infostore.InformationUnit{
		{
			ID: "iu_1", Fingerprint: "fp1", Content: "Prices rose. Demand fell.",
			KeyInsights: []string{"prices up"},
			Scores:      infostore.ValueScores{InformationGain: 6, Actionability: 5, Scarcity: 4, ImpactMagnitude: 3},
			Sources:     []infostore.SourceReference{{URL: "https://a.example/1"}},
		},
		{
			ID: "iu_2", Fingerprint: "fp2", Content: "Demand fell. Analysts reacted.",
			KeyInsights: []string{"prices up", "analysts reacted"},
			Scores:      infostore.ValueScores{InformationGain: 8, Actionability: 7, Scarcity: 9, ImpactMagnitude: 10},
			Sources:     []infostore.SourceReference{{URL: "https://b.example/2"}},
		},
	}

	merged := m.Merge(units)

	if merged.ID != "iu_1" || merged.Fingerprint != "fp1" {
		t.Errorf("expected first unit's identity preserved, got id=%s fp=%s", merged.ID, merged.Fingerprint)
	}
	if len(merged.Sources) != 2 {
		t.Errorf("expected sources unioned by URL, got %+v", merged.Sources)
	}
	if merged.MergedCount != 2 {
		t.Errorf("merged_count = %d, want 2 (unique source count)", merged.MergedCount)
	}
	if len(merged.KeyInsights) != 2 {
		t.Errorf("expected key_insights deduplicated to 2, got %+v", merged.KeyInsights)
	}
	if merged.Scores.Scarcity != 9 || merged.Scores.ImpactMagnitude != 10 {
		t.Errorf("expected scarcity/impact_magnitude to be the max across inputs, got %+v", merged.Scores)
	}
}

func TestMergeSingleUnitIsUnchanged(t *testing.T) {
	m := NewMerger(nil)
	unit := infostore.InformationUnit{ID: "iu_solo", Fingerprint: "fpsolo", Content: "alone"}
	merged := m.Merge([]infostore.InformationUnit{unit})
	if merged.ID != unit.ID || merged.Content != unit.Content {
		t.Errorf("expected single-unit merge to be a no-op, got %+v", merged)
	}
}

func TestExtractorBuildsFingerprintAndNormalizesScores(t *testing.T) {
	ex := NewExtractor(stubChatter{response: map[string]any{
		"units": []any{
			map[string]any{
				"type": "fact", "title": "Acme raises prices", "content": "Acme Corp raised prices by 10 percent.",
				"information_gain": 0.8, "actionability": 0.5, "scarcity": 0.3, "impact_magnitude": 0.9,
				"state_change_type": "capital",
				"entity_anchors":    []any{map[string]any{"l1_name": "Acme Corp", "l3_root": "finance"}},
			},
		},
	}}, nil, nil)

	out := ex.Process(context.Background(), article.Article{Title: "Acme news", URL: "https://a.example/1"}, nil)
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	units := out.Data["units"].([]ExtractedUnit)
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	u := units[0].Unit

	wantFingerprint := fingerprintOf("Acme raises prices", "Acme Corp raised prices by 10 percent.")
	if u.Fingerprint != wantFingerprint {
		t.Errorf("fingerprint = %q, want %q", u.Fingerprint, wantFingerprint)
	}
	if u.ID != "iu_"+wantFingerprint[:16] {
		t.Errorf("id = %q, want iu_ + first 16 hex chars of fingerprint", u.ID)
	}
	if u.Scores.InformationGain != 8 {
		t.Errorf("information_gain = %v, want 8 (0.8 scaled by 10)", u.Scores.InformationGain)
	}
	if u.StateChangeType != infostore.StateChangeCapital {
		t.Errorf("state_change_type = %q, want CAPITAL", u.StateChangeType)
	}
	if len(u.EntityAnchors) != 1 || u.EntityAnchors[0].L3Root != "Finance" {
		t.Errorf("expected l3_root normalized to preset Finance, got %+v", u.EntityAnchors)
	}
}

type errParse string

func (e errParse) Error() string { return string(e) }
