package admin

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"briefloom/internal/article"
	"briefloom/internal/logging"
)

func TestPatchLogLevelSetsAndClearsOverride(t *testing.T) {
	lc := logging.NewComponentFilterHandler(logging.Discard().Handler(), slog.LevelInfo)
	s := New(Config{Articles: article.NewMemoryStore(), LevelControl: lc})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	body, _ := json.Marshal(logLevelRequest{Component: "llm_gateway", Level: "debug"})
	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/loglevel", bytes.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	var got logLevelResponse
	if err := readBody(resp, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Level != "DEBUG" {
		t.Errorf("got level %q", got.Level)
	}
	if lc.Level("llm_gateway") != slog.LevelDebug {
		t.Errorf("handler level not updated: %v", lc.Level("llm_gateway"))
	}

	clearBody, _ := json.Marshal(logLevelRequest{Component: "llm_gateway"})
	clearReq, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/loglevel", bytes.NewReader(clearBody))
	clearResp, err := http.DefaultClient.Do(clearReq)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	clearResp.Body.Close()
	if lc.Level("llm_gateway") != slog.LevelInfo {
		t.Errorf("expected level reverted to default, got %v", lc.Level("llm_gateway"))
	}
}

func TestPatchLogLevelWithoutControlConfigured(t *testing.T) {
	s := New(Config{Articles: article.NewMemoryStore()})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	body, _ := json.Marshal(logLevelRequest{Component: "x", Level: "debug"})
	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/loglevel", bytes.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("got status %d", resp.StatusCode)
	}
}
