package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"briefloom/internal/article"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Config{
		Articles:    article.NewMemoryStore(),
		CORSOrigins: []string{"https://console.example.com"},
	})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

func TestHandleStatusReportsNotRunning(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}

	var body statusResponse
	if err := readBody(resp, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Running {
		t.Error("expected running=false with no run configured")
	}
	if _, ok := body.Stats["cpu_percent"]; !ok {
		t.Error("expected cpu_percent in stats")
	}
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	_, srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/status", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for unlisted origin, got %q", got)
	}
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	_, srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/status", nil)
	req.Header.Set("Origin", "https://console.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Errorf("got %q", got)
	}
}
