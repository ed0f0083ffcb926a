package orchestrator

import (
	"testing"
	"time"

	"briefloom/internal/infostore"
)

func TestHighestSimilaritySurvivorPrefersFirstMatch(t *testing.T) {
	now := time.Now().UTC()
	// matches is ordered by descending similarity, as FindSimilar returns it.
	// s1 is the strongest match despite being newer than s2; it must survive.
	s1 := &infostore.InformationUnit{ID: "iu_s1", CreatedAt: now}
	s2 := &infostore.InformationUnit{ID: "iu_s2", CreatedAt: now.Add(-24 * time.Hour)}

	got := highestSimilaritySurvivor([]*infostore.InformationUnit{s1, s2})
	if got.ID != "iu_s1" {
		t.Errorf("expected highest-similarity match iu_s1 to survive, got %s", got.ID)
	}
}

func TestOtherMatchesExcludesSurvivorAndSortsByAge(t *testing.T) {
	now := time.Now().UTC()
	survivor := &infostore.InformationUnit{ID: "iu_survivor", CreatedAt: now}
	older := &infostore.InformationUnit{ID: "iu_older", CreatedAt: now.Add(-48 * time.Hour)}
	newer := &infostore.InformationUnit{ID: "iu_newer", CreatedAt: now.Add(-1 * time.Hour)}

	out := otherMatches([]*infostore.InformationUnit{survivor, newer, older}, survivor)
	if len(out) != 2 {
		t.Fatalf("expected 2 remaining matches, got %d", len(out))
	}
	if out[0].ID != "iu_older" || out[1].ID != "iu_newer" {
		t.Errorf("expected oldest-first order, got %s then %s", out[0].ID, out[1].ID)
	}
}
