package llm_test

import (
	"testing"

	"briefloom/internal/llm"
)

func TestParseJSONDirect(t *testing.T) {
	obj, ok := llm.ParseJSON(`{"who": "acme corp", "score": 7}`)
	if !ok {
		t.Fatal("expected direct parse to succeed")
	}
	if obj["who"] != "acme corp" {
		t.Errorf("got %v, want acme corp", obj["who"])
	}
}

func TestParseJSONFencedBlock(t *testing.T) {
	text := "Here is the analysis:\n```json\n{\"overall_score\": 8.5}\n```\nThanks."
	obj, ok := llm.ParseJSON(text)
	if !ok {
		t.Fatal("expected fenced block to parse")
	}
	if obj["overall_score"] != 8.5 {
		t.Errorf("got %v, want 8.5", obj["overall_score"])
	}
}

func TestParseJSONUnfencedBlock(t *testing.T) {
	text := "```\n{\"key_insights\": [\"a\", \"b\"]}\n```"
	obj, ok := llm.ParseJSON(text)
	if !ok {
		t.Fatal("expected unfenced block to parse")
	}
	insights, ok := obj["key_insights"].([]any)
	if !ok || len(insights) != 2 {
		t.Errorf("got %v, want 2 insights", obj["key_insights"])
	}
}

func TestParseJSONBraceSpanFallback(t *testing.T) {
	text := `Sure thing! The result is {"l3_root": "Technology", "confidence": 0.9} as requested.`
	obj, ok := llm.ParseJSON(text)
	if !ok {
		t.Fatal("expected brace-span extraction to succeed")
	}
	if obj["l3_root"] != "Technology" {
		t.Errorf("got %v, want Technology", obj["l3_root"])
	}
}

func TestParseJSONUnrecoverableReturnsFalse(t *testing.T) {
	_, ok := llm.ParseJSON("no json anywhere in this text")
	if ok {
		t.Error("expected recovery to fail for text with no JSON")
	}
}

func TestBuildMessagesIncludesSystemAndExamples(t *testing.T) {
	msgs := llm.BuildMessages("you are a helpful analyst", "summarize this article",
		llm.Message{Role: "user", Content: "example input"},
		llm.Message{Role: "assistant", Content: "example output"},
	)
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[len(msgs)-1].Content != "summarize this article" {
		t.Errorf("unexpected message assembly: %+v", msgs)
	}
}

func TestBuildMessagesOmitsEmptySystem(t *testing.T) {
	msgs := llm.BuildMessages("", "hello")
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Errorf("expected a single user message, got %+v", msgs)
	}
}
