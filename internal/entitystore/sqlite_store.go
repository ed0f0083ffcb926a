package entitystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable Entity Store backend. Writes are persisted to
// relational tables (so the UNIQUE(source_id, target_id, type) constraint
// on relations gives the race-safe single-atomic-write concurrent callers need
// without application-level locking), and are mirrored into an in-process
// MemoryStore that serves every analytic read (get_hot_entities, timeline,
// BFS network): those are graph walks over the whole mention/relation set,
// cheaper to compute once loaded than to express as repeated SQL queries.
type SQLiteStore struct {
	db  *sql.DB
	mem *MemoryStore
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open entity db %s: %w", path, err)
	}
	s := &SQLiteStore{db: db, mem: NewMemoryStore()}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadIntoMemory(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	canonical_name TEXT NOT NULL,
	type TEXT NOT NULL,
	l3_root TEXT NOT NULL DEFAULT '',
	l2_sector TEXT NOT NULL DEFAULT '',
	attributes TEXT NOT NULL DEFAULT '{}',
	mention_count INTEGER NOT NULL DEFAULT 0,
	first_mentioned DATETIME NOT NULL,
	last_mentioned DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS entity_aliases (
	alias TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL,
	is_primary INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS entity_mentions (
	entity_id TEXT NOT NULL,
	unit_id TEXT NOT NULL,
	role TEXT NOT NULL,
	sentiment TEXT NOT NULL,
	state_dimension TEXT NOT NULL DEFAULT '',
	state_delta TEXT NOT NULL DEFAULT '',
	event_time TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (entity_id, unit_id)
);
CREATE TABLE IF NOT EXISTS entity_relations (
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	type TEXT NOT NULL,
	strength REAL NOT NULL DEFAULT 0,
	confidence REAL NOT NULL DEFAULT 0,
	evidence TEXT NOT NULL DEFAULT '[]',
	UNIQUE(source_id, target_id, type)
);
`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("migrate entity db: %w", err)
	}
	return nil
}

func (s *SQLiteStore) loadIntoMemory(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, canonical_name, type, l3_root, l2_sector, attributes, mention_count, first_mentioned, last_mentioned FROM entities`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var e Entity
		var attrsJSON string
		if err := rows.Scan(&e.ID, &e.CanonicalName, &e.Type, &e.L3Root, &e.L2Sector, &attrsJSON, &e.MentionCount, &e.FirstMentioned, &e.LastMentioned); err != nil {
			return err
		}
		attrs := map[string]string{}
		json.Unmarshal([]byte(attrsJSON), &attrs)
		e.Attributes = attrs
		s.mem.entities[e.ID] = &e
	}
	if err := rows.Err(); err != nil {
		return err
	}

	aliasRows, err := s.db.QueryContext(ctx, `SELECT alias, entity_id FROM entity_aliases`)
	if err != nil {
		return err
	}
	defer aliasRows.Close()
	for aliasRows.Next() {
		var alias, id string
		if err := aliasRows.Scan(&alias, &id); err != nil {
			return err
		}
		s.mem.aliases[alias] = id
	}
	if err := aliasRows.Err(); err != nil {
		return err
	}

	mentionRows, err := s.db.QueryContext(ctx, `SELECT entity_id, unit_id, role, sentiment, state_dimension, state_delta, event_time FROM entity_mentions`)
	if err != nil {
		return err
	}
	defer mentionRows.Close()
	for mentionRows.Next() {
		var m EntityMention
		if err := mentionRows.Scan(&m.EntityID, &m.UnitID, &m.Role, &m.Sentiment, &m.StateDimension, &m.StateDelta, &m.EventTime); err != nil {
			return err
		}
		s.mem.mentions[mentionKey(m.EntityID, m.UnitID)] = &m
	}
	if err := mentionRows.Err(); err != nil {
		return err
	}

	relRows, err := s.db.QueryContext(ctx, `SELECT source_id, target_id, type, strength, confidence, evidence FROM entity_relations`)
	if err != nil {
		return err
	}
	defer relRows.Close()
	for relRows.Next() {
		var r EntityRelation
		var evidenceJSON string
		if err := relRows.Scan(&r.SourceID, &r.TargetID, &r.Type, &r.Strength, &r.Confidence, &evidenceJSON); err != nil {
			return err
		}
		json.Unmarshal([]byte(evidenceJSON), &r.Evidence)
		s.mem.relations[relationKey(r.SourceID, r.TargetID, r.Type)] = &r
	}
	return relRows.Err()
}

// ProcessExtracted runs the resolution/mention/relation logic against the
// in-memory graph (for correctness of create-on-miss + upsert semantics
// within a single call), then persists every touched row.
func (s *SQLiteStore) ProcessExtracted(ctx context.Context, unitID string, entities []ExtractedEntity, relations []ExtractedRelation, eventTime string) (map[string]string, error) {
	resolved, err := s.mem.ProcessExtracted(ctx, unitID, entities, relations, eventTime)
	if err != nil {
		return nil, err
	}

	// Hold the mirror's lock while reading back the rows to persist, so a
	// concurrent call cannot write its maps underneath.
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, id := range resolved {
		if err := persistEntity(ctx, tx, s.mem, id); err != nil {
			return nil, err
		}
	}
	for _, id := range resolved {
		key := mentionKey(id, unitID)
		if m, ok := s.mem.mentions[key]; ok {
			if err := persistMention(ctx, tx, m); err != nil {
				return nil, err
			}
		}
	}
	for _, r := range relations {
		sourceID := resolved[r.SourceName]
		targetID := resolved[r.TargetName]
		if rel, ok := s.mem.relations[relationKey(sourceID, targetID, r.Type)]; ok {
			if err := persistRelation(ctx, tx, rel); err != nil {
				return nil, err
			}
		}
	}

	return resolved, tx.Commit()
}

func persistEntity(ctx context.Context, tx *sql.Tx, mem *MemoryStore, id string) error {
	e, ok := mem.entities[id]
	if !ok {
		return nil
	}
	attrsJSON, err := json.Marshal(e.Attributes)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entities (id, canonical_name, type, l3_root, l2_sector, attributes, mention_count, first_mentioned, last_mentioned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mention_count = excluded.mention_count,
			last_mentioned = excluded.last_mentioned
	`, e.ID, e.CanonicalName, e.Type, e.L3Root, e.L2Sector, string(attrsJSON), e.MentionCount, e.FirstMentioned, e.LastMentioned); err != nil {
		return err
	}

	for alias, aliasedID := range mem.aliases {
		if aliasedID != id {
			continue
		}
		isPrimary := 0
		if mem.primaryAlias[id] == alias {
			isPrimary = 1
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO entity_aliases (alias, entity_id, is_primary) VALUES (?, ?, ?)`, alias, id, isPrimary); err != nil {
			return err
		}
	}
	return nil
}

func persistMention(ctx context.Context, tx *sql.Tx, m *EntityMention) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entity_mentions (entity_id, unit_id, role, sentiment, state_dimension, state_delta, event_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, unit_id) DO UPDATE SET
			role = excluded.role, sentiment = excluded.sentiment,
			state_dimension = excluded.state_dimension, state_delta = excluded.state_delta,
			event_time = excluded.event_time
	`, m.EntityID, m.UnitID, m.Role, m.Sentiment, m.StateDimension, m.StateDelta, m.EventTime)
	return err
}

func persistRelation(ctx context.Context, tx *sql.Tx, r *EntityRelation) error {
	evidenceJSON, err := json.Marshal(r.Evidence)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entity_relations (source_id, target_id, type, strength, confidence, evidence)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, type) DO UPDATE SET
			strength = excluded.strength, confidence = excluded.confidence, evidence = excluded.evidence
	`, r.SourceID, r.TargetID, r.Type, r.Strength, r.Confidence, string(evidenceJSON))
	return err
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	return s.mem.GetEntity(ctx, id)
}

func (s *SQLiteStore) ResolveAlias(ctx context.Context, name string) (string, bool, error) {
	return s.mem.ResolveAlias(ctx, name)
}

func (s *SQLiteStore) GetHotEntities(ctx context.Context, days int, limit int) ([]HotEntity, error) {
	return s.mem.GetHotEntities(ctx, days, limit)
}

func (s *SQLiteStore) GetEntityTimeline(ctx context.Context, id string, start, end string, dimensions []string, limit int) ([]TimelineEntry, error) {
	return s.mem.GetEntityTimeline(ctx, id, start, end, dimensions, limit)
}

func (s *SQLiteStore) GetEntityNetwork(ctx context.Context, id string, depth int) (*EgoNetwork, error) {
	return s.mem.GetEntityNetwork(ctx, id, depth)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
