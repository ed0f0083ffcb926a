package infostore

import (
	"context"
	"sync"
	"time"

	"briefloom/internal/vectorindex"
)

// MemoryStore is an in-process Store implementation for tests and for
// small deployments that do not need durability across restarts.
type MemoryStore struct {
	mu          sync.RWMutex
	byID        map[string]*InformationUnit
	byFingerprint map[string]string // fingerprint -> id
	index       vectorindex.Index
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(index vectorindex.Index) *MemoryStore {
	if index == nil {
		index = vectorindex.NewMemoryIndex(0)
	}
	return &MemoryStore{
		byID:          make(map[string]*InformationUnit),
		byFingerprint: make(map[string]string),
		index:         index,
	}
}

func (s *MemoryStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byFingerprint[fingerprint]
	return ok, nil
}

func (s *MemoryStore) GetByFingerprint(ctx context.Context, fingerprint string) (*InformationUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byFingerprint[fingerprint]
	if !ok {
		return nil, nil
	}
	u := *s.byID[id]
	return &u, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*InformationUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) Save(ctx context.Context, unit *InformationUnit) error {
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

	copied := *unit
	s.mu.Lock()
	s.byID[unit.ID] = &copied
	s.byFingerprint[unit.Fingerprint] = unit.ID
	s.mu.Unlock()

	content := unit.Title + " " + unit.Summary + " " + firstN(unit.KeyInsights, 3)
	return s.index.Add(ctx, unit.ID, unit.Title, content, nil)
}

func (s *MemoryStore) FindSimilar(ctx context.Context, unit *InformationUnit, threshold float64, topK int) ([]*InformationUnit, error) {
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
		if err != nil || u == nil {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *MemoryStore) GetUnsent(ctx context.Context, limit int) ([]*InformationUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*InformationUnit
	for _, u := range s.byID {
		if !u.IsSent {
			copied := *u
			out = append(out, &copied)
		}
	}
	sortUnitsByEventOrCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range ids {
		if u, ok := s.byID[id]; ok {
			u.IsSent = true
			u.SentAt = now
		}
	}
	return nil
}

// GetRecentSent returns up to limit units already sent, most recently sent
// first, for the Curator's history-avoidance window.
func (s *MemoryStore) GetRecentSent(ctx context.Context, limit int) ([]*InformationUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*InformationUnit
	for _, u := range s.byID {
		if u.IsSent {
			copied := *u
			out = append(out, &copied)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].SentAt.After(out[j-1].SentAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortUnitsByEventOrCreated(units []*InformationUnit) {
	rank := func(u *InformationUnit) time.Time {
		if u.EventTime != "" {
			if t, err := time.Parse(time.RFC3339, u.EventTime); err == nil {
				return t
			}
		}
		return u.CreatedAt
	}
	for i := 1; i < len(units); i++ {
		for j := i; j > 0 && rank(units[j]).After(rank(units[j-1])); j-- {
			units[j], units[j-1] = units[j-1], units[j]
		}
	}
}
