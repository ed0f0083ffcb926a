package admin

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"briefloom/internal/article"
)

func TestHandleListAndDeleteArticle(t *testing.T) {
	store := article.NewMemoryStore()
	now := time.Now().UTC()
	for i, u := range []string{"https://example.com/a", "https://example.com/b"} {
		_ = store.Upsert(context.Background(), &article.Article{
			URL:       u,
			Title:     u,
			FetchedAt: now.Add(time.Duration(i) * time.Minute),
		})
	}

	s := New(Config{Articles: store})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/articles?limit=10&offset=0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var arts []*article.Article
	if err := readBody(resp, &arts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(arts) != 2 {
		t.Fatalf("got %d articles, want 2", len(arts))
	}

	id := base64.RawURLEncoding.EncodeToString([]byte("https://example.com/a"))
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/articles/"+id, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("got status %d", delResp.StatusCode)
	}

	exists, _ := store.Exists(context.Background(), "https://example.com/a")
	if exists {
		t.Error("expected article to be deleted")
	}
}
