package telemetry_test

import (
	"path/filepath"
	"testing"
	"time"

	"briefloom/internal/telemetry"
)

func rec(id, agent, session string, at time.Time, errStr string) telemetry.AICallRecord {
	return telemetry.AICallRecord{
		CallID: id, Timestamp: at, CallType: "chat", Model: "gpt-4o-mini",
		AgentName: agent, SessionID: session, Response: "ok", TotalTok: 42,
		DurationMS: 100, Error: errStr,
	}
}

func TestAppendAndQueryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r, err := telemetry.New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	now := time.Now().UTC()
	if err := r.Append(rec("c1", "collector", "s1", now, "")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := r.Append(rec("c2", "editor", "s1", now.Add(time.Minute), "boom")); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows := r.Query(telemetry.Query{SessionID: "s1"})
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].CallID != "c2" {
		t.Errorf("expected newest-first ordering, got %q first", rows[0].CallID)
	}

	full, err := r.GetFull("c1")
	if err != nil {
		t.Fatalf("get_full: %v", err)
	}
	if full.Response != "ok" {
		t.Errorf("got response %q, want ok", full.Response)
	}
}

func TestAggregateComputesErrorRateAndAverages(t *testing.T) {
	dir := t.TempDir()
	r, err := telemetry.New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	now := time.Now().UTC()
	r.Append(rec("a", "collector", "s1", now, ""))
	r.Append(rec("b", "collector", "s1", now, "fail"))

	agg := r.Aggregate(telemetry.Query{SessionID: "s1"})
	if agg.TotalCalls != 2 {
		t.Fatalf("got %d calls, want 2", agg.TotalCalls)
	}
	if agg.ErrorRate != 0.5 {
		t.Errorf("got error rate %v, want 0.5", agg.ErrorRate)
	}
	if agg.CallsByAgent["collector"] != 2 {
		t.Errorf("got %d collector calls, want 2", agg.CallsByAgent["collector"])
	}
}

func TestReplayRebuildsIndexAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	r1, err := telemetry.New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now().UTC()
	r1.Append(rec("x", "librarian", "s2", now, ""))
	r1.Close()

	r2, err := telemetry.New(dir, nil)
	if err != nil {
		t.Fatalf("New (restart): %v", err)
	}
	defer r2.Close()

	rows := r2.Query(telemetry.Query{SessionID: "s2"})
	if len(rows) != 1 {
		t.Fatalf("got %d rows after restart, want 1", len(rows))
	}
}

func TestCleanupRemovesOldShardsOnly(t *testing.T) {
	dir := t.TempDir()
	r, err := telemetry.New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	old := time.Now().UTC().AddDate(0, 0, -100)
	recent := time.Now().UTC()
	r.Append(rec("old", "collector", "s1", old, ""))
	r.Append(rec("new", "collector", "s1", recent, ""))

	deleted, err := r.Cleanup(t.Context(), 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("cleanup removed %d rows, want 1", deleted)
	}

	rows := r.Query(telemetry.Query{SessionID: "s1"})
	if len(rows) != 1 || rows[0].CallID != "new" {
		t.Errorf("expected only the recent record to survive cleanup, got %+v", rows)
	}
}

func TestExportJSONLWritesMatchingRecords(t *testing.T) {
	dir := t.TempDir()
	r, err := telemetry.New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	now := time.Now().UTC()
	r.Append(rec("a", "collector", "s1", now, ""))
	r.Append(rec("b", "editor", "s2", now, ""))

	out := filepath.Join(t.TempDir(), "export.jsonl")
	count, err := r.ExportJSONL(out, telemetry.Query{SessionID: "s1"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if count != 1 {
		t.Errorf("exported %d records, want 1", count)
	}
}
