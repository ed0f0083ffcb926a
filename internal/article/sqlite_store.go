package article

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists articles in a SQLite database, indexed on URL,
// fetch time, and sent time.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed article
// store at path. Pass ":memory:" for an ephemeral store.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open article db %s: %w", path, err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS articles (
	url TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	raw_content TEXT NOT NULL DEFAULT '',
	extracted_content TEXT NOT NULL DEFAULT '',
	source_name TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	published_at TEXT,
	fetched_at TEXT NOT NULL,
	sent_at TEXT,
	overall_score REAL NOT NULL DEFAULT 0,
	summary TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	analysis TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_articles_fetched_at ON articles(fetched_at);
CREATE INDEX IF NOT EXISTS idx_articles_sent_at ON articles(sent_at);
`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("migrate article db: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Exists(ctx context.Context, url string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM articles WHERE url = ?`, url).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists(%s): %w", url, err)
	}
	return true, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, a *Article) error {
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	const q = `
INSERT INTO articles (
	url, title, raw_content, extracted_content, source_name, category, author,
	published_at, fetched_at, sent_at, overall_score, summary, tags, analysis
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
	title = excluded.title,
	raw_content = excluded.raw_content,
	extracted_content = excluded.extracted_content,
	source_name = excluded.source_name,
	category = excluded.category,
	author = excluded.author,
	published_at = excluded.published_at,
	fetched_at = excluded.fetched_at,
	sent_at = excluded.sent_at,
	overall_score = excluded.overall_score,
	summary = excluded.summary,
	tags = excluded.tags,
	analysis = excluded.analysis
`
	_, err = s.db.ExecContext(ctx, q,
		a.URL, a.Title, a.RawContent, a.ExtractedContent, a.SourceName, a.Category, a.Author,
		nullableTime(a.PublishedAt), a.FetchedAt.UTC().Format(time.RFC3339), nullableTime(a.SentAt),
		a.OverallScore, a.Summary, string(tags), a.Analysis,
	)
	if err != nil {
		return fmt.Errorf("upsert article %s: %w", a.URL, err)
	}
	return nil
}

func (s *SQLiteStore) GetUnsent(ctx context.Context, limit int) ([]*Article, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE sent_at IS NULL ORDER BY fetched_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get_unsent: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

func (s *SQLiteStore) MarkSent(ctx context.Context, urls []string, now time.Time) error {
	if len(urls) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark_sent begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE articles SET sent_at = ? WHERE url = ?`)
	if err != nil {
		return fmt.Errorf("mark_sent prepare: %w", err)
	}
	defer stmt.Close()

	ts := now.UTC().Format(time.RFC3339)
	for _, url := range urls {
		if _, err := stmt.ExecContext(ctx, ts, url); err != nil {
			return fmt.Errorf("mark_sent %s: %w", url, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetRecentSent(ctx context.Context, days int, limit int) ([]*Article, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE sent_at IS NOT NULL AND sent_at >= ? ORDER BY sent_at DESC LIMIT ?`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("get_recent_sent: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

func (s *SQLiteStore) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Article, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles ORDER BY fetched_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

func (s *SQLiteStore) Delete(ctx context.Context, url string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE url = ?`, url); err != nil {
		return fmt.Errorf("delete %s: %w", url, err)
	}
	return nil
}

const articleColumns = `url, title, raw_content, extracted_content, source_name, category, author,
	published_at, fetched_at, sent_at, overall_score, summary, tags, analysis`

func scanArticles(rows *sql.Rows) ([]*Article, error) {
	var out []*Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanArticle(rows *sql.Rows) (*Article, error) {
	var a Article
	var publishedAt, sentAt sql.NullString
	var fetchedAt string
	var tags string

	err := rows.Scan(
		&a.URL, &a.Title, &a.RawContent, &a.ExtractedContent, &a.SourceName, &a.Category, &a.Author,
		&publishedAt, &fetchedAt, &sentAt, &a.OverallScore, &a.Summary, &tags, &a.Analysis,
	)
	if err != nil {
		return nil, fmt.Errorf("scan article: %w", err)
	}

	if publishedAt.Valid && publishedAt.String != "" {
		if t, err := time.Parse(time.RFC3339, publishedAt.String); err == nil {
			a.PublishedAt = t
		}
	}
	if t, err := time.Parse(time.RFC3339, fetchedAt); err == nil {
		a.FetchedAt = t
	}
	if sentAt.Valid && sentAt.String != "" {
		if t, err := time.Parse(time.RFC3339, sentAt.String); err == nil {
			a.SentAt = t
		}
	}
	if strings.TrimSpace(tags) != "" {
		_ = json.Unmarshal([]byte(tags), &a.Tags)
	}

	return &a, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
