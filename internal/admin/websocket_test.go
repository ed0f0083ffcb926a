package admin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"briefloom/internal/article"
)

func TestWSProgressBroadcastsSnapshots(t *testing.T) {
	s := New(Config{Articles: article.NewMemoryStore()})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the connection before publishing.
	time.Sleep(20 * time.Millisecond)
	s.PublishProgress(ProgressState{Stage: "fetch", Current: 3, Total: 10})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got ProgressState
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Stage != "fetch" || got.Current != 3 || got.Total != 10 {
		t.Errorf("got %+v", got)
	}
}

func TestWSConnectionCapRejectsExcessConnections(t *testing.T) {
	s := New(Config{Articles: article.NewMemoryStore(), MaxWSConnections: 1})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/logs"

	conn1, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial 1: %v", err)
	}
	defer conn1.Close()

	time.Sleep(20 * time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected second connection to be rejected at the cap")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Errorf("expected 503, got %d", status)
	}
}
