package fetch_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"briefloom/internal/feeds"
	"briefloom/internal/fetch"
)

func rssFeed(items string) string {
	return `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Test Feed</title>` + items + `</channel></rss>`
}

func rssItem(title, link, pubDate, description string) string {
	return fmt.Sprintf(`<item><title>%s</title><link>%s</link><pubDate>%s</pubDate><description>%s</description></item>`,
		title, link, pubDate, description)
}

func TestFetchMapsEntriesAndAppliesRetention(t *testing.T) {
	recent := time.Now().UTC().Add(-time.Hour).Format(time.RFC1123Z)
	old := time.Now().UTC().AddDate(0, 0, -200).Format(time.RFC1123Z)

	body := rssFeed(
		rssItem("Recent", "http://example.com/recent", recent, "recent summary") +
			rssItem("Old", "http://example.com/old", old, "old summary"),
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	feed := &feeds.Feed{ID: "1", URL: srv.URL, Title: "Test Feed", Enabled: true}
	f := fetch.New(fetch.Config{})

	articles, err := f.Fetch(context.Background(), []*feeds.Feed{feed})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1 (old entry should be filtered by retention)", len(articles))
	}
	if articles[0].URL != "http://example.com/recent" {
		t.Errorf("got url %q, want the recent entry", articles[0].URL)
	}
}

func TestFetchDropsEntriesMissingURLOrTitle(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC1123Z)
	body := rssFeed(
		rssItem("", "http://example.com/no-title", now, "x") +
			rssItem("No Link", "", now, "x") +
			rssItem("Good", "http://example.com/good", now, "x"),
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	feed := &feeds.Feed{ID: "1", URL: srv.URL, Title: "Test Feed", Enabled: true}
	f := fetch.New(fetch.Config{})

	articles, err := f.Fetch(context.Background(), []*feeds.Feed{feed})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	if articles[0].URL != "http://example.com/good" {
		t.Errorf("got url %q, want the well-formed entry", articles[0].URL)
	}
}

func TestFetchIsolatesFailingFeeds(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC1123Z)
	goodBody := rssFeed(rssItem("Good", "http://example.com/good", now, "x"))

	goodSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(goodBody))
	}))
	defer goodSrv.Close()

	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	feedList := []*feeds.Feed{
		{ID: "1", URL: goodSrv.URL, Title: "Good Feed", Enabled: true},
		{ID: "2", URL: badSrv.URL, Title: "Bad Feed", Enabled: true},
	}
	f := fetch.New(fetch.Config{})

	articles, err := f.Fetch(context.Background(), feedList)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1 (failing feed should not affect the other)", len(articles))
	}
}

func TestFetchDeduplicatesByURLFirstSeenWins(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC1123Z)
	body := rssFeed(
		rssItem("First", "http://example.com/dup", now, "first") +
			rssItem("Second", "http://example.com/dup", now, "second"),
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	feed := &feeds.Feed{ID: "1", URL: srv.URL, Title: "Test Feed", Enabled: true}
	f := fetch.New(fetch.Config{})

	articles, err := f.Fetch(context.Background(), []*feeds.Feed{feed})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1 after dedup", len(articles))
	}
	if articles[0].Title != "First" {
		t.Errorf("got title %q, want First (first-seen wins)", articles[0].Title)
	}
}

func TestFetchSkipsExtractionWhenContentAlreadyLong(t *testing.T) {
	longContent := strings.Repeat("word ", 200) // > 500 chars
	now := time.Now().UTC().Format(time.RFC1123Z)

	var extractHit bool
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/long" {
			extractHit = true
			return
		}
		w.Write([]byte(rssFeed(rssItem("Long", srv.URL+"/long", now, longContent))))
	}))
	defer srv.Close()

	feed := &feeds.Feed{ID: "1", URL: srv.URL, Title: "Test Feed", Enabled: true}
	f := fetch.New(fetch.Config{})

	_, err := f.Fetch(context.Background(), []*feeds.Feed{feed})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if extractHit {
		t.Error("extraction should be skipped when feed content already exceeds the threshold")
	}
}
