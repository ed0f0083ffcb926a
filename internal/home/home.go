// Package home manages the application's home directory layout.
//
// The home directory owns all persistent state: the INI config file, the
// sqlite databases for articles/information units/entities, and the
// telemetry shard directory.
//
// Layout:
//
//	<root>/
//	  config.ini        (internal/config.IniStore)
//	  feeds.ini         (internal/feeds.FileStore)
//	  articles.db       (internal/article sqlite store)
//	  infostore.db      (internal/infostore sqlite store)
//	  entitystore.db    (internal/entitystore sqlite store)
//	  telemetry/        (internal/telemetry daily shards)
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents the application's home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/briefloom
//   - macOS:   ~/Library/Application Support/briefloom
//   - Windows: %APPDATA%/briefloom
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "briefloom")}, nil
}

// Root returns the home directory path.
func (d Dir) Root() string {
	return d.root
}

// ConfigPath returns the path to the INI config file.
func (d Dir) ConfigPath() string {
	return filepath.Join(d.root, "config.ini")
}

// FeedsPath returns the path to the feed registry's INI file.
func (d Dir) FeedsPath() string {
	return filepath.Join(d.root, "feeds.ini")
}

// ArticleDBPath returns the path to the article store's sqlite database.
func (d Dir) ArticleDBPath() string {
	return filepath.Join(d.root, "articles.db")
}

// InfoStoreDBPath returns the path to the information unit store's sqlite
// database.
func (d Dir) InfoStoreDBPath() string {
	return filepath.Join(d.root, "infostore.db")
}

// EntityStoreDBPath returns the path to the entity graph store's sqlite
// database.
func (d Dir) EntityStoreDBPath() string {
	return filepath.Join(d.root, "entitystore.db")
}

// TelemetryDir returns the directory for telemetry record shards.
func (d Dir) TelemetryDir() string {
	return filepath.Join(d.root, "telemetry")
}

// EnsureExists creates the home directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}
