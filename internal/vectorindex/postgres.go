package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresIndex stores vectors in a Postgres table with the pgvector
// extension, for deployments that have a production vector database
// available instead of the in-process hashed-feature heuristic. It shares
// the same hashed-feature embedding as MemoryIndex, so the two backends
// are interchangeable without re-indexing differently shaped vectors.
type PostgresIndex struct {
	pool  *pgxpool.Pool
	table string
}

var _ Index = (*PostgresIndex)(nil)

// NewPostgresIndex connects to dsn and ensures the backing table and the
// pgvector extension exist. table defaults to "vector_index".
func NewPostgresIndex(ctx context.Context, dsn, table string) (*PostgresIndex, error) {
	if table == "" {
		table = "vector_index"
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: connect: %w", err)
	}
	idx := &PostgresIndex{pool: pool, table: table}
	if err := idx.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PostgresIndex) migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	if err != nil {
		return fmt.Errorf("vectorindex: enable extension: %w", err)
	}
	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			seq BIGSERIAL
		)`, p.table, dimensions))
	if err != nil {
		return fmt.Errorf("vectorindex: create table: %w", err)
	}
	return nil
}

func (p *PostgresIndex) Add(ctx context.Context, id, title, content string, metadata map[string]string) error {
	vec := embed(title + " " + content)
	meta, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, embedding, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, seq = DEFAULT
	`, p.table), id, pgvector.NewVector(toFloat32(vec)), meta)
	return err
}

func (p *PostgresIndex) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]Hit, error) {
	vec := embed(query)
	if topK <= 0 {
		topK = 10
	}

	filterSQL := ""
	args := []any{pgvector.NewVector(toFloat32(vec))}
	if len(filter) > 0 {
		meta, err := json.Marshal(filter)
		if err != nil {
			return nil, err
		}
		filterSQL = "WHERE metadata @> $3"
		args = append(args, meta)
	}
	args = append(args, topK)
	limitParam := fmt.Sprintf("$%d", len(args))

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1) AS score, metadata
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT %s
	`, p.table, filterSQL, limitParam), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			id       string
			score    float64
			metaJSON []byte
		)
		if err := rows.Scan(&id, &score, &metaJSON); err != nil {
			return nil, err
		}
		var metadata map[string]string
		_ = json.Unmarshal(metaJSON, &metadata)
		hits = append(hits, Hit{ID: id, Score: score, Metadata: metadata})
	}
	return hits, rows.Err()
}

func (p *PostgresIndex) Recent(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY seq DESC LIMIT $1`, p.table), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresIndex) Clear(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE TABLE %s`, p.table))
	return err
}

// Close releases the connection pool.
func (p *PostgresIndex) Close() {
	p.pool.Close()
}

func toFloat32(vec [dimensions]float64) []float32 {
	out := make([]float32, dimensions)
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
