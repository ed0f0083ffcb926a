package entitystore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Entity Store, and also the engine behind
// SQLiteStore's analytic reads (get_hot_entities, timeline, network), which
// are cheaper to compute over a loaded graph than to express as pure SQL.
type MemoryStore struct {
	mu sync.Mutex

	entities     map[string]*Entity
	aliases      map[string]string // normalized alias -> entity id
	primaryAlias map[string]string // entity id -> its primary normalized alias
	mentions     map[string]*EntityMention  // key: entityID+"\x00"+unitID
	relations    map[string]*EntityRelation // key: sourceID+"\x00"+targetID+"\x00"+type
	nextID       int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:     make(map[string]*Entity),
		aliases:      make(map[string]string),
		primaryAlias: make(map[string]string),
		mentions:     make(map[string]*EntityMention),
		relations:    make(map[string]*EntityRelation),
	}
}

func mentionKey(entityID, unitID string) string {
	return entityID + "\x00" + unitID
}

func relationKey(sourceID, targetID string, t RelationType) string {
	return sourceID + "\x00" + targetID + "\x00" + string(t)
}

func (s *MemoryStore) newEntityID() string {
	s.nextID++
	return fmt.Sprintf("ent_%d", s.nextID)
}

// resolveOrCreate resolves name to an entity id, creating the entity (and
// registering name plus aliases) on a miss. Must be called with s.mu held.
func (s *MemoryStore) resolveOrCreate(name string, entType EntityType, aliases []string, eventTime string) string {
	norm := NormalizeAlias(name)
	if id, ok := s.aliases[norm]; ok {
		return id
	}

	if entType == "" {
		entType = EntityCompany
	}
	when := parseOrNow(eventTime)
	id := s.newEntityID()
	s.entities[id] = &Entity{
		ID: id, CanonicalName: name, Type: entType,
		Attributes:     map[string]string{},
		FirstMentioned: when, LastMentioned: when,
		MentionCount: 0,
	}

	primary := true
	for _, a := range append([]string{name}, aliases...) {
		an := NormalizeAlias(a)
		if an == "" {
			continue
		}
		if _, exists := s.aliases[an]; exists {
			continue
		}
		s.aliases[an] = id
		if primary {
			s.primaryAlias[id] = an
			primary = false
		}
	}
	return id
}

func parseOrNow(eventTime string) time.Time {
	if eventTime == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339, eventTime); err == nil {
		return t
	}
	return time.Now().UTC()
}

func (s *MemoryStore) ProcessExtracted(ctx context.Context, unitID string, entities []ExtractedEntity, relations []ExtractedRelation, eventTime string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved := make(map[string]string, len(entities))
	for _, e := range entities {
		id := s.resolveOrCreate(e.Name, e.Type, e.Aliases, eventTime)
		resolved[e.Name] = id
		s.recordMention(id, unitID, e, eventTime)
	}

	for _, r := range relations {
		sourceID, ok := resolved[r.SourceName]
		if !ok {
			sourceID = s.resolveOrCreate(r.SourceName, "", nil, eventTime)
			resolved[r.SourceName] = sourceID
		}
		targetID, ok := resolved[r.TargetName]
		if !ok {
			targetID = s.resolveOrCreate(r.TargetName, "", nil, eventTime)
			resolved[r.TargetName] = targetID
		}
		s.upsertRelation(sourceID, targetID, r, unitID)
	}

	return resolved, nil
}

// recordMention must be called with s.mu held.
func (s *MemoryStore) recordMention(entityID, unitID string, e ExtractedEntity, eventTime string) {
	key := mentionKey(entityID, unitID)
	role := e.Role
	if role == "" {
		role = RoleProtagonist
	}
	sentiment := e.Sentiment
	if sentiment == "" {
		sentiment = SentimentNeutral
	}

	_, existed := s.mentions[key]
	s.mentions[key] = &EntityMention{
		EntityID: entityID, UnitID: unitID, Role: role, Sentiment: sentiment,
		StateDimension: e.StateDimension, StateDelta: e.StateChange, EventTime: eventTime,
	}

	ent := s.entities[entityID]
	if !existed {
		ent.MentionCount++
	}
	ent.LastMentioned = laterTime(ent.LastMentioned, parseOrNow(eventTime))
}

func laterTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// upsertRelation must be called with s.mu held.
func (s *MemoryStore) upsertRelation(sourceID, targetID string, r ExtractedRelation, unitID string) {
	key := relationKey(sourceID, targetID, r.Type)
	existing, ok := s.relations[key]
	if !ok {
		s.relations[key] = &EntityRelation{
			SourceID: sourceID, TargetID: targetID, Type: r.Type,
			Strength: r.Strength, Confidence: r.Confidence,
			Evidence: []string{unitID},
		}
		return
	}
	existing.Strength = maxFloat(existing.Strength, r.Strength)
	existing.Confidence = maxFloat(existing.Confidence, r.Confidence)
	existing.Evidence = mergeEvidence(existing.Evidence, []string{unitID})
}

func (s *MemoryStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (s *MemoryStore) ResolveAlias(ctx context.Context, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.aliases[NormalizeAlias(name)]
	return id, ok, nil
}

func (s *MemoryStore) GetHotEntities(ctx context.Context, days int, limit int) ([]HotEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	windowStart := now.AddDate(0, 0, -days)
	priorStart := windowStart.AddDate(0, 0, -days)

	windowCounts := make(map[string]int)
	priorCounts := make(map[string]int)
	for _, m := range s.mentions {
		t := parseOrNow(m.EventTime)
		if t.After(windowStart) || t.Equal(windowStart) {
			windowCounts[m.EntityID]++
		} else if (t.After(priorStart) || t.Equal(priorStart)) && t.Before(windowStart) {
			priorCounts[m.EntityID]++
		}
	}

	hot := make([]HotEntity, 0, len(windowCounts))
	for entID, count := range windowCounts {
		ent, ok := s.entities[entID]
		if !ok {
			continue
		}
		prior := priorCounts[entID]
		hot = append(hot, HotEntity{
			Entity: *ent, WindowMentions: count, Trend: computeTrend(count, prior),
		})
	}

	sort.Slice(hot, func(i, j int) bool {
		if hot[i].WindowMentions != hot[j].WindowMentions {
			return hot[i].WindowMentions > hot[j].WindowMentions
		}
		return hot[i].Entity.CanonicalName < hot[j].Entity.CanonicalName
	})
	if limit > 0 && len(hot) > limit {
		hot = hot[:limit]
	}
	return hot, nil
}

func computeTrend(current, prior int) Trend {
	if prior == 0 {
		if current > 0 {
			return TrendNew
		}
		return TrendStable
	}
	delta := float64(current-prior) / float64(prior)
	switch {
	case delta > 0.1:
		return TrendUp
	case delta < -0.1:
		return TrendDown
	default:
		return TrendStable
	}
}

func (s *MemoryStore) GetEntityTimeline(ctx context.Context, id string, start, end string, dimensions []string, limit int) ([]TimelineEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dimSet := make(map[string]bool, len(dimensions))
	for _, d := range dimensions {
		dimSet[d] = true
	}

	startT, endT := parseOrZero(start), parseOrZero(end)
	var out []TimelineEntry
	for _, m := range s.mentions {
		if m.EntityID != id {
			continue
		}
		if len(dimSet) > 0 && !dimSet[m.StateDimension] {
			continue
		}
		t := parseOrNow(m.EventTime)
		if !startT.IsZero() && t.Before(startT) {
			continue
		}
		if !endT.IsZero() && t.After(endT) {
			continue
		}
		out = append(out, TimelineEntry{Mention: *m, EventTime: m.EventTime})
	}

	sort.Slice(out, func(i, j int) bool {
		return parseOrNow(out[i].EventTime).Before(parseOrNow(out[j].EventTime))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func parseOrZero(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *MemoryStore) GetEntityNetwork(ctx context.Context, id string, depth int) (*EgoNetwork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[id]; !ok {
		return &EgoNetwork{}, nil
	}

	visited := map[string]int{id: 0}
	queue := []string{id}
	var edges []NetworkEdge
	edgeSeen := make(map[string]bool)

	for len(queue) > 0 && depth > 0 {
		next := queue[:0:0]
		for _, current := range queue {
			curDepth := visited[current]
			if curDepth >= depth {
				continue
			}
			for _, rel := range s.relations {
				var neighbor string
				switch current {
				case rel.SourceID:
					neighbor = rel.TargetID
				case rel.TargetID:
					neighbor = rel.SourceID
				default:
					continue
				}
				ek := relationKey(rel.SourceID, rel.TargetID, rel.Type)
				if !edgeSeen[ek] {
					edgeSeen[ek] = true
					edges = append(edges, NetworkEdge{Relation: *rel})
				}
				if _, seen := visited[neighbor]; !seen {
					visited[neighbor] = curDepth + 1
					next = append(next, neighbor)
				}
			}
		}
		queue = next
	}

	nodes := make([]NetworkNode, 0, len(visited))
	for entID, d := range visited {
		ent, ok := s.entities[entID]
		if !ok {
			continue
		}
		nodes = append(nodes, NetworkNode{Entity: *ent, Depth: d})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Depth != nodes[j].Depth {
			return nodes[i].Depth < nodes[j].Depth
		}
		return nodes[i].Entity.ID < nodes[j].Entity.ID
	})

	return &EgoNetwork{Nodes: nodes, Edges: edges}, nil
}
