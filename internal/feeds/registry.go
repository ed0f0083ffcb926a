// Package feeds manages the set of RSS/Atom feeds the fetcher polls.
//
// Registry provides fast in-memory resolution of the feed list plus
// attribute-based lookup. New or updated feeds are queued for async
// persistence; persistence failures never block a registry read or write.
package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"briefloom/internal/logging"
)

// Feed is a single RSS/Atom source the fetcher polls.
type Feed struct {
	ID        string
	Name      string // user-supplied label; falls back to the feed's own Title if empty
	URL       string
	Title     string
	Category  string
	Enabled   bool
	AddedAt   time.Time
	Validated bool
}

// Store persists and loads the ordered feed list.
type Store interface {
	Load() ([]*Feed, error)
	Save(feeds []*Feed) error
}

// Registry manages feed identity, ordering, and enablement.
type Registry struct {
	mu sync.RWMutex

	order []string // feed IDs, insertion order preserved
	byID  map[string]*Feed

	store     Store
	persistCh chan struct{} // signals "list changed, re-save everything"
	stopCh    chan struct{}
	stopOnce  sync.Once
	persistWg sync.WaitGroup

	now    func() time.Time
	logger *slog.Logger

	validateClient *http.Client
}

// Config configures a Registry.
type Config struct {
	Store            Store
	Now              func() time.Time
	Logger           *slog.Logger
	ValidateTimeout  time.Duration // defaults to 10s
}

// NewRegistry creates a Registry, loading the existing feed list from cfg.Store
// if provided.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	timeout := cfg.ValidateTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	logger := logging.Default(cfg.Logger).With("component", "feed-registry")

	r := &Registry{
		byID:           make(map[string]*Feed),
		store:          cfg.Store,
		persistCh:      make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
		now:            cfg.Now,
		logger:         logger,
		validateClient: &http.Client{Timeout: timeout},
	}

	if cfg.Store != nil {
		loaded, err := cfg.Store.Load()
		if err != nil {
			logger.Warn("failed to load feed list, starting empty", "error", err)
		} else {
			for _, f := range loaded {
				r.order = append(r.order, f.ID)
				r.byID[f.ID] = f
			}
		}
		r.persistWg.Add(1)
		go func() {
			defer r.persistWg.Done()
			r.persistLoop()
		}()
	}

	return r, nil
}

// List returns all feeds in insertion order.
func (r *Registry) List() []*Feed {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Feed, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyFeed(r.byID[id]))
	}
	return out
}

// Enabled returns only the feeds currently enabled for fetching.
func (r *Registry) Enabled() []*Feed {
	all := r.List()
	out := all[:0]
	for _, f := range all {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out
}

// Get returns a feed by ID.
func (r *Registry) Get(id string) (*Feed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return copyFeed(f), true
}

// Add validates the feed URL (within the registry's validate timeout) and,
// if it looks like a parseable feed, adds it as enabled by default. name and
// category are caller-supplied labels; name falls back to the feed's own
// title when empty.
func (r *Registry) Add(ctx context.Context, name, url, category string) (*Feed, error) {
	title, err := r.validate(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("validate feed %s: %w", url, err)
	}
	if name == "" {
		name = title
	}

	r.mu.Lock()
	for _, f := range r.byID {
		if f.URL == url {
			r.mu.Unlock()
			return nil, fmt.Errorf("feed already registered: %s", url)
		}
	}
	f := &Feed{
		ID:        uuid.NewString(),
		Name:      name,
		URL:       url,
		Title:     title,
		Category:  category,
		Enabled:   true,
		AddedAt:   r.now(),
		Validated: true,
	}
	r.order = append(r.order, f.ID)
	r.byID[f.ID] = f
	r.mu.Unlock()

	r.queuePersist()
	return copyFeed(f), nil
}

// Update patches an existing feed's name, category, and/or enabled state.
// Only non-nil fields are applied, letting PATCH requests touch a single
// attribute without clobbering the rest.
func (r *Registry) Update(id string, name, category *string, enabled *bool) (*Feed, error) {
	r.mu.Lock()
	f, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("feed not found: %s", id)
	}
	if name != nil {
		f.Name = *name
	}
	if category != nil {
		f.Category = *category
	}
	if enabled != nil {
		f.Enabled = *enabled
	}
	out := copyFeed(f)
	r.mu.Unlock()

	r.queuePersist()
	return out, nil
}

// Remove deletes a feed from the registry. No-op if the ID doesn't exist.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	if _, ok := r.byID[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byID, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	r.queuePersist()
}

// SetEnabled toggles whether a feed is polled by the fetcher.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	f, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("feed not found: %s", id)
	}
	f.Enabled = enabled
	r.mu.Unlock()
	r.queuePersist()
	return nil
}

// validate fetches and parses url within the registry's timeout, returning
// the feed's title on success.
func (r *Registry) validate(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.validateClient.Timeout)
	defer cancel()

	fp := gofeed.NewParser()
	fp.Client = r.validateClient
	parsed, err := fp.ParseURLWithContext(url, ctx)
	if err != nil {
		return "", err
	}
	return parsed.Title, nil
}

// Close stops the persistence goroutine and waits for it to finish.
func (r *Registry) Close() error {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.persistWg.Wait()
	return nil
}

func (r *Registry) queuePersist() {
	if r.store == nil {
		return
	}
	select {
	case r.persistCh <- struct{}{}:
	default:
	}
}

func (r *Registry) persistLoop() {
	save := func() {
		snapshot := r.List()
		if err := r.store.Save(snapshot); err != nil {
			r.logger.Warn("failed to persist feed list", "error", err)
		}
	}
	for {
		select {
		case <-r.stopCh:
			select {
			case <-r.persistCh:
				save()
			default:
			}
			return
		case <-r.persistCh:
			save()
		}
	}
}

func copyFeed(f *Feed) *Feed {
	cp := *f
	return &cp
}
