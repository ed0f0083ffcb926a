package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"briefloom/internal/article"
	"briefloom/internal/feeds"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Example Feed</title>
<item><title>Hello</title><link>http://example.com/a</link></item>
</channel></rss>`

func newFeedTestServer(t *testing.T) (*Server, *httptest.Server, *httptest.Server) {
	t.Helper()
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleRSS))
	}))
	t.Cleanup(feedSrv.Close)

	reg, err := feeds.NewRegistry(feeds.Config{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	s := New(Config{Feeds: reg, Articles: article.NewMemoryStore()})
	adminSrv := httptest.NewServer(s.Router())
	t.Cleanup(adminSrv.Close)

	return s, adminSrv, feedSrv
}

func TestAddListPatchRemoveFeed(t *testing.T) {
	_, adminSrv, feedSrv := newFeedTestServer(t)

	body, _ := json.Marshal(addFeedRequest{Name: "My Feed", URL: feedSrv.URL, Category: "tech"})
	resp, err := http.Post(adminSrv.URL+"/api/feeds", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var added feeds.Feed
	if err := readBody(resp, &added); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if added.Name != "My Feed" || added.Category != "tech" {
		t.Fatalf("got %+v", added)
	}

	listResp, err := http.Get(adminSrv.URL + "/api/feeds")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list []*feeds.Feed
	if err := readBody(listResp, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d feeds, want 1", len(list))
	}

	newCategory := "finance"
	patchBody, _ := json.Marshal(patchFeedRequest{Category: &newCategory})
	req, _ := http.NewRequest(http.MethodPatch, adminSrv.URL+"/api/feeds/"+added.ID, bytes.NewReader(patchBody))
	patchResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	var patched feeds.Feed
	if err := readBody(patchResp, &patched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if patched.Category != "finance" {
		t.Errorf("got category %q, want finance", patched.Category)
	}

	removeBody, _ := json.Marshal(removeFeedRequest{Identifier: added.ID})
	delReq, _ := http.NewRequest(http.MethodDelete, adminSrv.URL+"/api/feeds", bytes.NewReader(removeBody))
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("got status %d", delResp.StatusCode)
	}
}

func TestRemoveFeedByURL(t *testing.T) {
	_, adminSrv, feedSrv := newFeedTestServer(t)

	body, _ := json.Marshal(addFeedRequest{URL: feedSrv.URL})
	resp, err := http.Post(adminSrv.URL+"/api/feeds", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	removeBody, _ := json.Marshal(removeFeedRequest{Identifier: feedSrv.URL})
	delReq, _ := http.NewRequest(http.MethodDelete, adminSrv.URL+"/api/feeds", bytes.NewReader(removeBody))
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("got status %d", delResp.StatusCode)
	}
}
