package notify

import (
	"context"
	"fmt"
	"testing"

	"briefloom/internal/digest"
)

func sampleDigest() *digest.Digest {
	return &digest.Digest{
		Date: "2026-07-30",
		TopPicks: []digest.DigestItem{
			{ID: "iu_1", Title: "<script>alert(1)</script> breaks out", Summary: "an unescaped title must not execute", L3Root: "Technology", ValueScore: 9.2, Sources: []string{"https://example.com/a"}, KeyInsights: []string{"insight one"}},
		},
		QuickReads:   []digest.DigestItem{{ID: "iu_2", Title: "quick item", Summary: "brief"}},
		DailySummary: "a quiet day",
		Totals:       digest.Totals{Fetched: 12, Analyzed: 9, Filtered: 3},
	}
}

func TestSendEscapesDynamicHTMLAndReportsSuccess(t *testing.T) {
	n, err := New(Config{From: "digest@example.com"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var captured []byte
	n.sendFn = func(ctx context.Context, cfg Config, to string, msg []byte) error {
		captured = msg
		return nil
	}

	result, err := n.Send(context.Background(), sampleDigest(), []string{"reader@example.com"}, []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.SuccessCount != 1 || result.FailureCount != 0 {
		t.Fatalf("got %+v, want 1 success 0 failures", result)
	}
	if len(captured) == 0 {
		t.Fatal("expected a message to have been sent")
	}
	body := string(captured)
	if containsRaw(body, "<script>alert(1)</script>") {
		t.Error("expected script tag to be html-escaped, found raw script in message body")
	}
	if !containsRaw(body, "trend_chart") {
		t.Error("expected inline image part referencing trend_chart")
	}
}

func TestSendIsolatesPerRecipientFailures(t *testing.T) {
	n, err := New(Config{From: "digest@example.com"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	n.sendFn = func(ctx context.Context, cfg Config, to string, msg []byte) error {
		if to == "bad@example.com" {
			return fmt.Errorf("connection refused")
		}
		return nil
	}

	result, err := n.Send(context.Background(), sampleDigest(), []string{"good@example.com", "bad@example.com"}, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.SuccessCount != 1 || result.FailureCount != 1 {
		t.Fatalf("got %+v, want 1 success 1 failure", result)
	}
	if !result.Success() {
		t.Error("expected overall success since at least one recipient succeeded")
	}
	if _, ok := result.Errors["bad@example.com"]; !ok {
		t.Error("expected an error recorded for the failing recipient")
	}
}

func TestSendFailsOverallWhenEveryRecipientFails(t *testing.T) {
	n, err := New(Config{From: "digest@example.com"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	n.sendFn = func(ctx context.Context, cfg Config, to string, msg []byte) error {
		return fmt.Errorf("all recipients unreachable")
	}

	result, err := n.Send(context.Background(), sampleDigest(), []string{"a@example.com", "b@example.com"}, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.Success() {
		t.Error("expected overall failure when every recipient fails")
	}
	if result.FailureCount != 2 {
		t.Errorf("got %d failures, want 2", result.FailureCount)
	}
}

func containsRaw(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
