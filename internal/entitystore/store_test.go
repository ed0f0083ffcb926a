package entitystore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"briefloom/internal/entitystore"
)

func stores(t *testing.T) map[string]entitystore.Store {
	t.Helper()
	sqlStore, err := entitystore.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "entities.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]entitystore.Store{
		"sqlite": sqlStore,
		"memory": entitystore.NewMemoryStore(),
	}
}

func TestProcessExtractedCreatesEntityAndMention(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			resolved, err := s.ProcessExtracted(ctx, "iu_1", []entitystore.ExtractedEntity{
				{Name: "Acme Corp", Type: entitystore.EntityCompany, Role: entitystore.RoleProtagonist},
			}, nil, "2026-07-01T00:00:00Z")
			if err != nil {
				t.Fatalf("process_extracted: %v", err)
			}
			id, ok := resolved["Acme Corp"]
			if !ok {
				t.Fatalf("expected Acme Corp resolved, got %v", resolved)
			}

			ent, err := s.GetEntity(ctx, id)
			if err != nil || ent == nil {
				t.Fatalf("get_entity: %v, %v", ent, err)
			}
			if ent.MentionCount != 1 {
				t.Errorf("mention_count = %d, want 1", ent.MentionCount)
			}
		})
	}
}

func TestProcessExtractedIsIdempotentForSameUnit(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			entities := []entitystore.ExtractedEntity{{Name: "Acme Corp"}}
			r1, err := s.ProcessExtracted(ctx, "iu_dup", entities, nil, "2026-07-01T00:00:00Z")
			if err != nil {
				t.Fatalf("first process_extracted: %v", err)
			}
			r2, err := s.ProcessExtracted(ctx, "iu_dup", entities, nil, "2026-07-01T00:00:00Z")
			if err != nil {
				t.Fatalf("second process_extracted: %v", err)
			}
			if r1["Acme Corp"] != r2["Acme Corp"] {
				t.Fatalf("expected stable entity id across repeated calls, got %s then %s", r1["Acme Corp"], r2["Acme Corp"])
			}

			ent, err := s.GetEntity(ctx, r1["Acme Corp"])
			if err != nil || ent == nil {
				t.Fatalf("get_entity: %v, %v", ent, err)
			}
			if ent.MentionCount != 1 {
				t.Errorf("mention_count after duplicate (entity,unit) processing = %d, want 1 (no double-increment)", ent.MentionCount)
			}
		})
	}
}

func TestAliasResolutionIsCaseAndWhitespaceInsensitive(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			resolved, err := s.ProcessExtracted(ctx, "iu_2", []entitystore.ExtractedEntity{
				{Name: "Acme Corp", Aliases: []string{"Acme", "ACME Corporation"}},
			}, nil, "2026-07-01T00:00:00Z")
			if err != nil {
				t.Fatalf("process_extracted: %v", err)
			}
			wantID := resolved["Acme Corp"]

			id, ok, err := s.ResolveAlias(ctx, "  acme  ")
			if err != nil || !ok || id != wantID {
				t.Errorf("resolve_alias('  acme  ') = %q, %v, %v, want %q, true, nil", id, ok, err, wantID)
			}
		})
	}
}

func TestUpsertRelationMergesEvidenceAndTakesMax(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rel := entitystore.ExtractedRelation{
				SourceName: "Acme Corp", TargetName: "Widget Inc", Type: entitystore.RelationCompetitor,
				Strength: 0.4, Confidence: 0.5,
			}
			_, err := s.ProcessExtracted(ctx, "iu_r1", nil, []entitystore.ExtractedRelation{rel}, "2026-07-01T00:00:00Z")
			if err != nil {
				t.Fatalf("first process_extracted: %v", err)
			}

			rel2 := rel
			rel2.Strength = 0.8
			rel2.Confidence = 0.2
			resolved, err := s.ProcessExtracted(ctx, "iu_r2", nil, []entitystore.ExtractedRelation{rel2}, "2026-07-01T00:00:00Z")
			if err != nil {
				t.Fatalf("second process_extracted: %v", err)
			}

			net, err := s.GetEntityNetwork(ctx, resolved["Acme Corp"], 1)
			if err != nil {
				t.Fatalf("get_entity_network: %v", err)
			}
			if len(net.Edges) != 1 {
				t.Fatalf("expected exactly one merged relation edge, got %d", len(net.Edges))
			}
			edge := net.Edges[0].Relation
			if edge.Strength != 0.8 {
				t.Errorf("strength = %v, want max(0.4, 0.8) = 0.8", edge.Strength)
			}
			if edge.Confidence != 0.5 {
				t.Errorf("confidence = %v, want max(0.5, 0.2) = 0.5", edge.Confidence)
			}
		})
	}
}

func TestGetHotEntitiesComputesTrend(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			// prior window: 1 mention; current window: 3 mentions -> up.
			if _, err := s.ProcessExtracted(ctx, "iu_p1", []entitystore.ExtractedEntity{{Name: "Rising Co"}}, nil, oldTime(10)); err != nil {
				t.Fatalf("process_extracted: %v", err)
			}
			for i, d := range []int{1, 2, 3} {
				unit := "iu_c" + string(rune('a'+i))
				if _, err := s.ProcessExtracted(ctx, unit, []entitystore.ExtractedEntity{{Name: "Rising Co"}}, nil, oldTime(d)); err != nil {
					t.Fatalf("process_extracted: %v", err)
				}
			}

			hot, err := s.GetHotEntities(ctx, 7, 10)
			if err != nil {
				t.Fatalf("get_hot_entities: %v", err)
			}
			var found *entitystore.HotEntity
			for i := range hot {
				if hot[i].Entity.CanonicalName == "Rising Co" {
					found = &hot[i]
				}
			}
			if found == nil {
				t.Fatalf("expected Rising Co among hot entities, got %+v", hot)
			}
			if found.WindowMentions != 3 {
				t.Errorf("window_mentions = %d, want 3", found.WindowMentions)
			}
			if found.Trend != entitystore.TrendUp {
				t.Errorf("trend = %q, want up", found.Trend)
			}
		})
	}
}

func TestGetEntityNetworkRespectsDepth(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			resolved, err := s.ProcessExtracted(ctx, "iu_chain", nil, []entitystore.ExtractedRelation{
				{SourceName: "A", TargetName: "B", Type: entitystore.RelationPartner, Strength: 0.5, Confidence: 0.5},
				{SourceName: "B", TargetName: "C", Type: entitystore.RelationPartner, Strength: 0.5, Confidence: 0.5},
			}, "2026-07-01T00:00:00Z")
			if err != nil {
				t.Fatalf("process_extracted: %v", err)
			}

			net, err := s.GetEntityNetwork(ctx, resolved["A"], 1)
			if err != nil {
				t.Fatalf("get_entity_network: %v", err)
			}
			for _, n := range net.Nodes {
				if n.Entity.CanonicalName == "C" {
					t.Error("depth 1 from A must not reach C (distance 2)")
				}
			}

			net2, err := s.GetEntityNetwork(ctx, resolved["A"], 2)
			if err != nil {
				t.Fatalf("get_entity_network depth 2: %v", err)
			}
			foundC := false
			for _, n := range net2.Nodes {
				if n.Entity.CanonicalName == "C" {
					foundC = true
				}
			}
			if !foundC {
				t.Error("depth 2 from A must reach C")
			}
		})
	}
}

func oldTime(daysAgo int) string {
	return time.Now().UTC().AddDate(0, 0, -daysAgo).Format(time.RFC3339)
}
