package vectorindex

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
)

const dimensions = 256

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// entry is one indexed vector.
type entry struct {
	id       string
	vector   [dimensions]float64
	metadata map[string]string
	seq      int
}

// MemoryIndex is the reference hashed-feature vector backend used when no
// production vector database is configured. It is explicitly a
// deduplication-quality heuristic: search scans only the most recent
// scanWindow entries to bound cost.
type MemoryIndex struct {
	mu         sync.RWMutex
	byID       map[string]*entry
	order      []*entry // insertion order, oldest first
	nextSeq    int
	scanWindow int
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty hashed-feature vector index. scanWindow
// bounds how many of the most recently indexed vectors Search considers;
// 0 uses the default of 100.
func NewMemoryIndex(scanWindow int) *MemoryIndex {
	if scanWindow <= 0 {
		scanWindow = 100
	}
	return &MemoryIndex{byID: make(map[string]*entry), scanWindow: scanWindow}
}

func (m *MemoryIndex) Add(ctx context.Context, id, title, content string, metadata map[string]string) error {
	vec := embed(title + " " + content)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byID[id]; ok {
		existing.vector = vec
		existing.metadata = metadata
		m.touch(existing)
		return nil
	}

	m.nextSeq++
	e := &entry{id: id, vector: vec, metadata: metadata, seq: m.nextSeq}
	m.byID[id] = e
	m.order = append(m.order, e)
	return nil
}

// touch moves e to the end of order (most-recent) on re-add.
func (m *MemoryIndex) touch(e *entry) {
	for i, o := range m.order {
		if o == e {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.nextSeq++
	e.seq = m.nextSeq
	m.order = append(m.order, e)
}

func (m *MemoryIndex) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]Hit, error) {
	q := embed(query)

	m.mu.RLock()
	window := m.order
	if len(window) > m.scanWindow {
		window = window[len(window)-m.scanWindow:]
	}
	candidates := make([]*entry, len(window))
	copy(candidates, window)
	m.mu.RUnlock()

	hits := make([]Hit, 0, len(candidates))
	for _, e := range candidates {
		if !matchesFilter(e.metadata, filter) {
			continue
		}
		hits = append(hits, Hit{ID: e.id, Score: cosine(q, e.vector), Metadata: e.metadata})
	}

	sortHitsDescending(hits)
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryIndex) Recent(ctx context.Context, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.order) {
		limit = len(m.order)
	}
	out := make([]string, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.order[i].id)
	}
	return out, nil
}

func (m *MemoryIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID = make(map[string]*entry)
	m.order = nil
	m.nextSeq = 0
	return nil
}

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func sortHitsDescending(hits []Hit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Score > hits[j-1].Score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// embed computes the 256-dimensional hashed-feature vector for text:
// lowercase word tokens (up to 200) plus character 2-grams and 3-grams,
// each feature hashed to a signed bucket, then L2-normalized.
func embed(text string) [dimensions]float64 {
	var vec [dimensions]float64
	lower := strings.ToLower(text)

	tokens := wordPattern.FindAllString(lower, -1)
	if len(tokens) > 200 {
		tokens = tokens[:200]
	}
	for _, tok := range tokens {
		accumulate(&vec, tok)
	}

	runes := []rune(lower)
	for n := 2; n <= 3; n++ {
		for i := 0; i+n <= len(runes); i++ {
			accumulate(&vec, string(runes[i:i+n]))
		}
	}

	normalize(&vec)
	return vec
}

func accumulate(vec *[dimensions]float64, feature string) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	index := int(sum % dimensions)
	sign := -1.0
	if (sum/dimensions)%2 == 0 {
		sign = 1.0
	}
	vec[index] += sign
}

func normalize(vec *[dimensions]float64) {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += v * v
	}
	if sumSquares == 0 {
		return
	}
	norm := math.Sqrt(sumSquares)
	for i := range vec {
		vec[i] /= norm
	}
}

func cosine(a, b [dimensions]float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}
