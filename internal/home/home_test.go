package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	d := New("/tmp/briefloom-test")
	if d.Root() != "/tmp/briefloom-test" {
		t.Errorf("expected root /tmp/briefloom-test, got %s", d.Root())
	}
}

func TestDefault(t *testing.T) {
	d, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if d.Root() == "" {
		t.Fatal("expected non-empty root")
	}
	if filepath.Base(d.Root()) != "briefloom" {
		t.Errorf("expected root to end with 'briefloom', got %s", d.Root())
	}
}

func TestConfigPath(t *testing.T) {
	d := New("/data")
	if got := d.ConfigPath(); got != "/data/config.ini" {
		t.Errorf("got %s", got)
	}
}

func TestFeedsPath(t *testing.T) {
	d := New("/data")
	if got := d.FeedsPath(); got != "/data/feeds.ini" {
		t.Errorf("got %s", got)
	}
}

func TestStoreDBPaths(t *testing.T) {
	d := New("/data")
	if got := d.ArticleDBPath(); got != "/data/articles.db" {
		t.Errorf("articles: got %s", got)
	}
	if got := d.InfoStoreDBPath(); got != "/data/infostore.db" {
		t.Errorf("infostore: got %s", got)
	}
	if got := d.EntityStoreDBPath(); got != "/data/entitystore.db" {
		t.Errorf("entitystore: got %s", got)
	}
}

func TestTelemetryDir(t *testing.T) {
	d := New("/data")
	if got := d.TelemetryDir(); got != "/data/telemetry" {
		t.Errorf("got %s", got)
	}
}

func TestEnsureExists(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "briefloom")
	d := New(root)
	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected directory")
	}

	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists (idempotent): %v", err)
	}
}
