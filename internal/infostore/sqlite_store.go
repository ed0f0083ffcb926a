package infostore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"briefloom/internal/vectorindex"
)

// SQLiteStore is the durable Information Store backend, following the same
// single-table-plus-indexes shape as internal/article.SQLiteStore.
type SQLiteStore struct {
	db    *sql.DB
	index vectorindex.Index
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
// index backs FindSimilar; pass a vectorindex.NewMemoryIndex(0) if no
// production vector database is configured.
func NewSQLiteStore(ctx context.Context, path string, index vectorindex.Index) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, index: index}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS information_units (
			id TEXT PRIMARY KEY,
			fingerprint TEXT UNIQUE NOT NULL,
			payload TEXT NOT NULL,
			event_time TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			is_sent INTEGER NOT NULL DEFAULT 0,
			sent_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_units_fingerprint ON information_units(fingerprint);
		CREATE INDEX IF NOT EXISTS idx_units_is_sent ON information_units(is_sent);
		CREATE INDEX IF NOT EXISTS idx_units_sent_at ON information_units(sent_at);
	`)
	return err
}

func (s *SQLiteStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM information_units WHERE fingerprint = ?`, fingerprint).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) GetByFingerprint(ctx context.Context, fingerprint string) (*InformationUnit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM information_units WHERE fingerprint = ?`, fingerprint)
	return scanPayload(row)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*InformationUnit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM information_units WHERE id = ?`, id)
	return scanPayload(row)
}

func (s *SQLiteStore) Save(ctx context.Context, unit *InformationUnit) error {
	unit.UpdatedAt = time.Now().UTC()
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = unit.UpdatedAt
	}
	if unit.MergedCount == 0 {
		unit.MergedCount = len(unit.Sources)
		if unit.MergedCount == 0 {
			unit.MergedCount = 1
		}
	}

	payload, err := json.Marshal(unit)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO information_units (id, fingerprint, payload, event_time, created_at, updated_at, is_sent, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			payload = excluded.payload,
			event_time = excluded.event_time,
			updated_at = excluded.updated_at,
			is_sent = excluded.is_sent,
			sent_at = excluded.sent_at
	`, unit.ID, unit.Fingerprint, string(payload), unit.EventTime, unit.CreatedAt, unit.UpdatedAt, boolToInt(unit.IsSent), nullableTime(unit.SentAt))
	if err != nil {
		return err
	}

	if s.index != nil {
		content := unit.Title + " " + unit.Summary + " " + firstN(unit.KeyInsights, 3)
		return s.index.Add(ctx, unit.ID, unit.Title, content, nil)
	}
	return nil
}

func (s *SQLiteStore) FindSimilar(ctx context.Context, unit *InformationUnit, threshold float64, topK int) ([]*InformationUnit, error) {
	if s.index == nil {
		return nil, nil
	}
	query := unit.Title + " " + unit.Summary + " " + firstN(unit.KeyInsights, 3)
	hits, err := s.index.Search(ctx, query, topK, nil)
	if err != nil {
		return nil, err
	}

	var out []*InformationUnit
	for _, hit := range hits {
		if hit.Score < threshold || hit.ID == unit.ID {
			continue
		}
		u, err := s.Get(ctx, hit.ID)
		if err != nil {
			continue // best-effort: a stale index entry should not fail the dedup pass
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *SQLiteStore) GetUnsent(ctx context.Context, limit int) ([]*InformationUnit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM information_units
		WHERE is_sent = 0
		ORDER BY COALESCE(NULLIF(event_time, ''), created_at) DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*InformationUnit
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var u InformationUnit
		if err := json.Unmarshal([]byte(payload), &u); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkSent(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, id := range ids {
		u, err := s.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("infostore: mark_sent %s: %w", id, err)
		}
		u.IsSent = true
		u.SentAt = now
		payload, err := json.Marshal(u)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE information_units SET payload = ?, is_sent = 1, sent_at = ? WHERE id = ?`, string(payload), now, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRecentSent returns up to limit already-sent units, most recently sent
// first, for the Curator's history-avoidance window.
func (s *SQLiteStore) GetRecentSent(ctx context.Context, limit int) ([]*InformationUnit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM information_units
		WHERE is_sent = 1
		ORDER BY sent_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*InformationUnit
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var u InformationUnit
		if err := json.Unmarshal([]byte(payload), &u); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func scanPayload(row *sql.Row) (*InformationUnit, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var u InformationUnit
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func firstN(items []string, n int) string {
	if len(items) > n {
		items = items[:n]
	}
	out := ""
	for i, it := range items {
		if i > 0 {
			out += " "
		}
		out += it
	}
	return out
}
