// Package telemetry records every LLM Gateway call to an append-only,
// day-sharded log and keeps a queryable in-memory index over it.
//
// The on-disk layout follows a chunk-per-period idiom (see
// internal/chunk/file in the reference corpus): one directory per UTC day,
// one append-only file per day holding one JSON object per line. Unlike the
// teacher's binary record format, records here are JSON lines, since
// AICallRecord is a variable-shaped, human-inspectable audit record rather
// than a high-volume fixed-layout log line.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"briefloom/internal/logging"
)

// AICallRecord is the full record of a single LLM Gateway call.
type AICallRecord struct {
	CallID      string          `json:"call_id"`
	Timestamp   time.Time       `json:"timestamp"`
	CallType    string          `json:"call_type"` // "chat" or "chat_json"
	Model       string          `json:"model"`
	AgentName   string          `json:"agent_name"`
	SessionID   string          `json:"session_id"`
	Messages    json.RawMessage `json:"messages"`
	Response    string          `json:"response"`
	PromptTok   int             `json:"prompt_tokens"`
	CompleteTok int             `json:"completion_tokens"`
	TotalTok    int             `json:"total_tokens"`
	DurationMS  int64           `json:"duration_ms"`
	RetryCount  int             `json:"retry_count"`
	Error       string          `json:"error,omitempty"`
}

// indexRow is the lightweight, queryable projection of an AICallRecord.
type indexRow struct {
	CallID     string
	Timestamp  time.Time
	CallType   string
	Model      string
	AgentName  string
	SessionID  string
	TotalTok   int
	DurationMS int64
	Error      string
	LogShard   string
}

// Query filters a Recorder.Query call.
type Query struct {
	Start     time.Time
	End       time.Time
	SessionID string
	AgentName string
	CallType  string
	Limit     int
	Offset    int
}

// Aggregate summarizes records matching a Query window.
type Aggregate struct {
	TotalCalls       int
	TotalTokens      int
	CallsByType      map[string]int
	CallsByAgent     map[string]int
	CallsByModel     map[string]int
	AvgDurationMS    float64
	ErrorRate        float64
}

// Recorder appends AICallRecords to day-sharded log files and serves queries
// against an in-memory index rebuilt at startup.
type Recorder struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	index []indexRow

	fileMu sync.Mutex
	files  map[string]*os.File
}

// New creates a Recorder rooted at dir, replaying any existing shard files
// to rebuild the in-memory index.
func New(dir string, logger *slog.Logger) (*Recorder, error) {
	logger = logging.Default(logger).With("component", "telemetry")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	r := &Recorder{
		dir:    dir,
		logger: logger,
		files:  make(map[string]*os.File),
	}
	if err := r.replay(); err != nil {
		return nil, err
	}
	return r, nil
}

func shardName(t time.Time) string {
	return t.UTC().Format("2006-01-02") + ".jsonl"
}

// Append writes a full record to its day shard and the in-memory index.
// Telemetry write failures must never propagate to the caller (per the
// gateway's contract); callers that want visibility should check the
// returned error only for diagnostic logging, not for control flow.
func (r *Recorder) Append(rec AICallRecord) error {
	shard := shardName(rec.Timestamp)
	line, err := json.Marshal(rec)
	if err != nil {
		r.logger.Warn("telemetry marshal failed", "error", err)
		return err
	}

	f, err := r.shardFile(shard)
	if err != nil {
		r.logger.Warn("telemetry shard open failed", "error", err)
		return err
	}

	r.fileMu.Lock()
	_, err = f.Write(append(line, '\n'))
	r.fileMu.Unlock()
	if err != nil {
		r.logger.Warn("telemetry append failed", "error", err)
		return err
	}

	r.mu.Lock()
	r.index = append(r.index, indexRow{
		CallID: rec.CallID, Timestamp: rec.Timestamp, CallType: rec.CallType,
		Model: rec.Model, AgentName: rec.AgentName, SessionID: rec.SessionID,
		TotalTok: rec.TotalTok, DurationMS: rec.DurationMS, Error: rec.Error,
		LogShard: shard,
	})
	r.mu.Unlock()
	return nil
}

func (r *Recorder) shardFile(shard string) (*os.File, error) {
	r.fileMu.Lock()
	defer r.fileMu.Unlock()
	if f, ok := r.files[shard]; ok {
		return f, nil
	}
	f, err := os.OpenFile(filepath.Join(r.dir, shard), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	r.files[shard] = f
	return f, nil
}

// replay scans dir for existing shard files and rebuilds the index.
func (r *Recorder) replay() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			return err
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		for {
			var rec AICallRecord
			if err := dec.Decode(&rec); err != nil {
				break
			}
			r.index = append(r.index, indexRow{
				CallID: rec.CallID, Timestamp: rec.Timestamp, CallType: rec.CallType,
				Model: rec.Model, AgentName: rec.AgentName, SessionID: rec.SessionID,
				TotalTok: rec.TotalTok, DurationMS: rec.DurationMS, Error: rec.Error,
				LogShard: e.Name(),
			})
		}
	}
	sort.Slice(r.index, func(i, j int) bool { return r.index[i].Timestamp.Before(r.index[j].Timestamp) })
	return nil
}

// Query returns index rows matching the filter, newest-first, after offset/limit.
func (r *Recorder) Query(q Query) []indexRow {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []indexRow
	for i := len(r.index) - 1; i >= 0; i-- {
		row := r.index[i]
		if !q.Start.IsZero() && row.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && row.Timestamp.After(q.End) {
			continue
		}
		if q.SessionID != "" && row.SessionID != q.SessionID {
			continue
		}
		if q.AgentName != "" && row.AgentName != q.AgentName {
			continue
		}
		if q.CallType != "" && row.CallType != q.CallType {
			continue
		}
		matched = append(matched, row)
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched
}

// GetFull reads back the full record for callID by reading its shard file.
func (r *Recorder) GetFull(callID string) (*AICallRecord, error) {
	r.mu.Lock()
	var shard string
	for _, row := range r.index {
		if row.CallID == callID {
			shard = row.LogShard
			break
		}
	}
	r.mu.Unlock()
	if shard == "" {
		return nil, errors.New("telemetry: call id not found")
	}

	data, err := os.ReadFile(filepath.Join(r.dir, shard))
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var rec AICallRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, errors.New("telemetry: call id not found in shard")
		}
		if rec.CallID == callID {
			return &rec, nil
		}
	}
}

// Aggregate summarizes records matching q.
func (r *Recorder) Aggregate(q Query) Aggregate {
	rows := r.Query(Query{Start: q.Start, End: q.End, SessionID: q.SessionID})

	agg := Aggregate{
		CallsByType:  make(map[string]int),
		CallsByAgent: make(map[string]int),
		CallsByModel: make(map[string]int),
	}
	var totalDuration int64
	var errCount int
	for _, row := range rows {
		agg.TotalCalls++
		agg.TotalTokens += row.TotalTok
		agg.CallsByType[row.CallType]++
		agg.CallsByAgent[row.AgentName]++
		agg.CallsByModel[row.Model]++
		totalDuration += row.DurationMS
		if row.Error != "" {
			errCount++
		}
	}
	if agg.TotalCalls > 0 {
		agg.AvgDurationMS = float64(totalDuration) / float64(agg.TotalCalls)
		agg.ErrorRate = float64(errCount) / float64(agg.TotalCalls)
	}
	return agg
}

// ListSessions returns up to limit distinct session ids, most-recently-seen first.
func (r *Recorder) ListSessions(limit int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for i := len(r.index) - 1; i >= 0; i-- {
		s := r.index[i].SessionID
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Cleanup deletes shard files older than retentionDays and drops their
// index rows. Returns the number of index rows removed.
func (r *Recorder) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	r.fileMu.Lock()
	for shard, f := range r.files {
		t, err := time.Parse("2006-01-02", shard[:len(shard)-len(".jsonl")])
		if err == nil && t.Before(cutoff) {
			f.Close()
			delete(r.files, shard)
		}
	}
	r.fileMu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, err
	}
	deleted := 0
	removedShards := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		t, err := time.Parse("2006-01-02", e.Name()[:len(e.Name())-len(".jsonl")])
		if err != nil || !t.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, e.Name())); err != nil {
			return deleted, err
		}
		removedShards[e.Name()] = true
	}

	r.mu.Lock()
	kept := r.index[:0]
	for _, row := range r.index {
		if removedShards[row.LogShard] {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	r.index = kept
	r.mu.Unlock()
	return deleted, nil
}

// ExportJSONL writes every record matching q's filters (ignoring limit/offset)
// to path as JSON lines, returning the count written.
func (r *Recorder) ExportJSONL(path string, q Query) (int, error) {
	rows := r.Query(Query{Start: q.Start, End: q.End, SessionID: q.SessionID, AgentName: q.AgentName, CallType: q.CallType})

	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	count := 0
	for i := len(rows) - 1; i >= 0; i-- { // restore chronological order for export
		full, err := r.GetFull(rows[i].CallID)
		if err != nil {
			continue
		}
		line, err := json.Marshal(full)
		if err != nil {
			continue
		}
		if _, err := out.Write(append(line, '\n')); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Close flushes and closes all open shard files.
func (r *Recorder) Close() error {
	r.fileMu.Lock()
	defer r.fileMu.Unlock()
	var firstErr error
	for shard, f := range r.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.files, shard)
	}
	return firstErr
}
