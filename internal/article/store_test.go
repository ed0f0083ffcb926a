package article_test

import (
	"context"
	"testing"
	"time"

	"briefloom/internal/article"
)

func stores(t *testing.T) map[string]article.Store {
	t.Helper()
	sqliteStore, err := article.NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]article.Store{
		"sqlite": sqliteStore,
		"memory": article.NewMemoryStore(),
	}
}

func TestUpsertIsIdempotentByURL(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := &article.Article{URL: "http://example.com/a", Title: "First", FetchedAt: time.Now()}
			if err := store.Upsert(ctx, a); err != nil {
				t.Fatalf("first upsert: %v", err)
			}

			a2 := &article.Article{URL: "http://example.com/a", Title: "Updated", FetchedAt: time.Now()}
			if err := store.Upsert(ctx, a2); err != nil {
				t.Fatalf("second upsert: %v", err)
			}

			exists, err := store.Exists(ctx, "http://example.com/a")
			if err != nil {
				t.Fatalf("exists: %v", err)
			}
			if !exists {
				t.Fatal("expected article to exist")
			}

			unsent, err := store.GetUnsent(ctx, 10)
			if err != nil {
				t.Fatalf("get_unsent: %v", err)
			}
			if len(unsent) != 1 {
				t.Fatalf("expected exactly one row after upsert-by-url, got %d", len(unsent))
			}
			if unsent[0].Title != "Updated" {
				t.Errorf("got title %q, want Updated", unsent[0].Title)
			}
		})
	}
}

func TestMarkSentExcludesFromGetUnsent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := &article.Article{URL: "http://example.com/b", Title: "B", FetchedAt: time.Now()}
			if err := store.Upsert(ctx, a); err != nil {
				t.Fatalf("upsert: %v", err)
			}

			if err := store.MarkSent(ctx, []string{a.URL}, time.Now()); err != nil {
				t.Fatalf("mark_sent: %v", err)
			}

			unsent, err := store.GetUnsent(ctx, 10)
			if err != nil {
				t.Fatalf("get_unsent: %v", err)
			}
			for _, u := range unsent {
				if u.URL == a.URL {
					t.Error("marked-sent article should not appear in get_unsent")
				}
			}

			recent, err := store.GetRecentSent(ctx, 7, 10)
			if err != nil {
				t.Fatalf("get_recent_sent: %v", err)
			}
			found := false
			for _, r := range recent {
				if r.URL == a.URL {
					found = true
				}
			}
			if !found {
				t.Error("marked-sent article should appear in get_recent_sent")
			}
		})
	}
}

func TestCleanupRemovesOldArticlesOnly(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := &article.Article{URL: "http://example.com/old", Title: "Old", FetchedAt: time.Now().AddDate(0, 0, -200)}
			recent := &article.Article{URL: "http://example.com/new", Title: "New", FetchedAt: time.Now()}
			if err := store.Upsert(ctx, old); err != nil {
				t.Fatalf("upsert old: %v", err)
			}
			if err := store.Upsert(ctx, recent); err != nil {
				t.Fatalf("upsert recent: %v", err)
			}

			removed, err := store.Cleanup(ctx, 180)
			if err != nil {
				t.Fatalf("cleanup: %v", err)
			}
			if removed != 1 {
				t.Errorf("cleanup removed %d rows, want 1", removed)
			}

			stillExists, err := store.Exists(ctx, recent.URL)
			if err != nil {
				t.Fatalf("exists: %v", err)
			}
			if !stillExists {
				t.Error("recent article should survive cleanup")
			}
			goneExists, err := store.Exists(ctx, old.URL)
			if err != nil {
				t.Fatalf("exists: %v", err)
			}
			if goneExists {
				t.Error("old article should be removed by cleanup")
			}
		})
	}
}

func TestGetUnsentRespectsLimit(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				a := &article.Article{
					URL:       "http://example.com/" + string(rune('a'+i)),
					Title:     "t",
					FetchedAt: time.Now().Add(time.Duration(i) * time.Minute),
				}
				if err := store.Upsert(ctx, a); err != nil {
					t.Fatalf("upsert %d: %v", i, err)
				}
			}

			got, err := store.GetUnsent(ctx, 2)
			if err != nil {
				t.Fatalf("get_unsent: %v", err)
			}
			if len(got) != 2 {
				t.Errorf("got %d articles, want 2", len(got))
			}
		})
	}
}
