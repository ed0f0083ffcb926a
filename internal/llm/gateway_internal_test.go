package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type stubRecorder struct {
	records []CallRecord
}

func (s *stubRecorder) Append(rec CallRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func newTestGateway(rec Recorder) *Gateway {
	g := New(Config{Model: "gpt-4o-mini", RetryCount: 3, MaxBackoff: time.Millisecond, Recorder: rec})
	g.now = time.Now
	return g
}

func TestChatRetriesOnFailureThenSucceeds(t *testing.T) {
	rec := &stubRecorder{}
	g := newTestGateway(rec)

	calls := 0
	g.chatOnceFn = func(ctx context.Context, messages []Message, opts ChatOptions) (string, Usage, error) {
		calls++
		if calls < 3 {
			return "", Usage{}, errors.New("transient failure")
		}
		return "final answer", Usage{TotalTokens: 10}, nil
	}

	text, usage, err := g.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if text != "final answer" {
		t.Errorf("got %q, want final answer", text)
	}
	if usage.TotalTokens != 10 {
		t.Errorf("got %d tokens, want 10", usage.TotalTokens)
	}
	if calls != 3 {
		t.Errorf("got %d attempts, want 3", calls)
	}

	if len(rec.records) != 1 {
		t.Fatalf("got %d telemetry records, want 1", len(rec.records))
	}
	if rec.records[0].RetryCount != 3 {
		t.Errorf("got retry_count %d, want 3", rec.records[0].RetryCount)
	}
	if rec.records[0].Error != "" {
		t.Errorf("expected no error recorded on eventual success, got %q", rec.records[0].Error)
	}
}

func TestChatRecordsTelemetryOnTerminalFailure(t *testing.T) {
	rec := &stubRecorder{}
	g := newTestGateway(rec)

	g.chatOnceFn = func(ctx context.Context, messages []Message, opts ChatOptions) (string, Usage, error) {
		return "", Usage{}, errors.New("permanent failure")
	}

	_, _, err := g.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err == nil {
		t.Fatal("expected terminal error after exhausting retries")
	}

	if len(rec.records) != 1 {
		t.Fatalf("got %d telemetry records, want 1", len(rec.records))
	}
	if rec.records[0].Error == "" {
		t.Error("expected error to be recorded on terminal failure")
	}
	if rec.records[0].TotalTok != 0 {
		t.Errorf("expected zero token usage on failure, got %d", rec.records[0].TotalTok)
	}
}

func TestChatJSONRecoversFencedBlock(t *testing.T) {
	g := newTestGateway(nil)
	g.chatOnceFn = func(ctx context.Context, messages []Message, opts ChatOptions) (string, Usage, error) {
		return "```json\n{\"overall_score\": 9}\n```", Usage{TotalTokens: 5}, nil
	}

	obj, _, err := g.ChatJSON(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err != nil {
		t.Fatalf("ChatJSON: %v", err)
	}
	if obj["overall_score"] != float64(9) {
		t.Errorf("got %v, want 9", obj["overall_score"])
	}
}

func TestChatJSONFailsWhenNoRecoverableJSON(t *testing.T) {
	g := newTestGateway(nil)
	g.chatOnceFn = func(ctx context.Context, messages []Message, opts ChatOptions) (string, Usage, error) {
		return "sorry, I can't help with that", Usage{}, nil
	}

	_, _, err := g.ChatJSON(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err == nil {
		t.Fatal("expected an error when no JSON can be recovered")
	}
}

func TestContentLongerThanCapIsTruncatedInTelemetry(t *testing.T) {
	rec := &stubRecorder{}
	g := New(Config{Model: "gpt-4o-mini", RetryCount: 1, ContentCap: 10, Recorder: rec})
	g.chatOnceFn = func(ctx context.Context, messages []Message, opts ChatOptions) (string, Usage, error) {
		return "0123456789abcdef", Usage{TotalTokens: 1}, nil
	}

	_, _, err := g.Chat(context.Background(), []Message{{Role: "user", Content: "short"}}, ChatOptions{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(rec.records) != 1 {
		t.Fatalf("got %d records, want 1", len(rec.records))
	}
	if !strings.Contains(rec.records[0].Response, "[truncated, total 16 chars]") {
		t.Errorf("expected truncation marker, got %q", rec.records[0].Response)
	}
}

func TestBackoffForCapsAtMax(t *testing.T) {
	max := 5 * time.Second
	if got := backoffFor(0, max); got != time.Second {
		t.Errorf("attempt 0: got %v, want 1s", got)
	}
	if got := backoffFor(10, max); got != max {
		t.Errorf("attempt 10: got %v, want capped at %v", got, max)
	}
}
