// Package fetch retrieves articles from enabled feeds and optionally
// extracts their full article text.
//
// Fetcher does not:
//   - Persist articles (internal/article does that; the caller filters
//     the fetcher's output against the Article Store for "new" articles)
//   - Retry individual HTTP failures (the scheduler's next firing is the
//     retry mechanism)
package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"briefloom/internal/article"
	"briefloom/internal/feeds"
	"briefloom/internal/logging"
)

// Config configures a Fetcher.
type Config struct {
	// FeedWorkers bounds concurrent feed fetches. Defaults to 10.
	FeedWorkers int

	// ExtractWorkers bounds concurrent full-content extractions. Defaults to 5.
	ExtractWorkers int

	// FeedTimeout bounds each feed's total fetch+parse time. Defaults to 30s.
	FeedTimeout time.Duration

	// RetentionDays drops entries published before now - RetentionDays. Defaults to 180.
	RetentionDays int

	// ExtractionThreshold: entries with content longer than this are not
	// sent through full-content extraction. Defaults to 500.
	ExtractionThreshold int

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.FeedWorkers <= 0 {
		c.FeedWorkers = 10
	}
	if c.ExtractWorkers <= 0 {
		c.ExtractWorkers = 5
	}
	if c.FeedTimeout <= 0 {
		c.FeedTimeout = 30 * time.Second
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 180
	}
	if c.ExtractionThreshold <= 0 {
		c.ExtractionThreshold = 500
	}
	return c
}

// Fetcher retrieves and normalizes articles from a list of feeds.
type Fetcher struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg = cfg.withDefaults()
	logger := logging.Default(cfg.Logger).With("component", "fetcher")
	return &Fetcher{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.FeedTimeout},
	}
}

// Fetch retrieves articles from every enabled feed, deduplicates by URL
// (first-seen wins), and returns entries published within the retention
// window. It never persists; the caller filters the result against the
// Article Store for genuinely new articles.
func (f *Fetcher) Fetch(ctx context.Context, feedList []*feeds.Feed) ([]*article.Article, error) {
	raw := f.fetchAll(ctx, feedList)
	extracted := f.extractAll(ctx, raw)
	return dedupeByURL(extracted), nil
}

// fetchAll runs stage one: a bounded worker pool fetches and parses each
// feed, mapping entries to Articles within the retention window. A
// per-feed failure is logged and does not affect other feeds.
func (f *Fetcher) fetchAll(ctx context.Context, feedList []*feeds.Feed) []*article.Article {
	sem := make(chan struct{}, f.cfg.FeedWorkers)
	eg, egCtx := errgroup.WithContext(ctx)

	results := make([][]*article.Article, len(feedList))
	for i, feed := range feedList {
		i, feed := i, feed
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			articles, err := f.fetchOne(egCtx, feed)
			if err != nil {
				f.logger.Warn("feed fetch failed", "feed", feed.URL, "error", err)
				return nil // fail-one, fail-one: other feeds are unaffected
			}
			results[i] = articles
			return nil
		})
	}
	_ = eg.Wait() // fetchOne never returns a non-nil error; nothing to propagate

	var out []*article.Article
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// fetchOne fetches and parses a single feed within the fetcher's timeout.
func (f *Fetcher) fetchOne(ctx context.Context, feed *feeds.Feed) ([]*article.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.FeedTimeout)
	defer cancel()

	fp := gofeed.NewParser()
	fp.Client = f.client
	parsed, err := fp.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -f.cfg.RetentionDays)

	var out []*article.Article
	for _, item := range parsed.Items {
		a := mapEntry(item, feed)
		if a == nil {
			continue // missing URL or title: dropped
		}
		if !a.PublishedAt.IsZero() && a.PublishedAt.Before(cutoff) {
			continue // older than retention window
		}
		out = append(out, a)
	}
	return out, nil
}

// mapEntry converts a gofeed item to an Article, or nil if it's missing a
// required field.
func mapEntry(item *gofeed.Item, feed *feeds.Feed) *article.Article {
	if item.Link == "" || item.Title == "" {
		return nil
	}

	a := &article.Article{
		URL:        item.Link,
		Title:      item.Title,
		SourceName: feed.Title,
		FetchedAt:  time.Now().UTC(),
	}

	if item.Author != nil {
		a.Author = item.Author.Name
	}

	switch {
	case item.PublishedParsed != nil:
		a.PublishedAt = toUTC(*item.PublishedParsed)
	case item.UpdatedParsed != nil:
		a.PublishedAt = toUTC(*item.UpdatedParsed)
	}

	summary := item.Description
	content := ""
	if len(item.Content) > 0 {
		content = item.Content
	}
	a.RawContent = summary
	if content != "" {
		a.ExtractedContent = content
	} else {
		a.ExtractedContent = summary
	}

	return a
}

// toUTC converts t to UTC. Naive timestamps (no zone info retained by
// time.Time) are assumed UTC already since gofeed parses them without a
// zone offset in that case; aware timestamps convert normally.
func toUTC(t time.Time) time.Time {
	return t.UTC()
}

// extractAll runs stage two: a second bounded worker pool fetches full
// article text for entries whose feed-provided content is short. Skip
// extraction when content already exceeds the threshold. Extraction
// failures fall back to the feed-provided content silently.
func (f *Fetcher) extractAll(ctx context.Context, articles []*article.Article) []*article.Article {
	sem := make(chan struct{}, f.cfg.ExtractWorkers)
	var wg errgroup.Group

	for _, a := range articles {
		a := a
		if len(a.ExtractedContent) > f.cfg.ExtractionThreshold {
			continue
		}
		wg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			f.extractOne(ctx, a)
			return nil
		})
	}
	_ = wg.Wait()
	return articles
}

// extractOne fetches a.URL and replaces its content with the extracted
// main content, if extraction succeeds and is non-empty. Any failure is
// swallowed; the feed-provided content is kept.
func (f *Fetcher) extractOne(ctx context.Context, a *article.Article) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return
	}
	html, err := doc.Html()
	if err != nil {
		return
	}

	article, err := readability.FromReader(strings.NewReader(html), nil)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		return
	}
	a.RawContent = html
	a.ExtractedContent = article.TextContent
}

// dedupeByURL keeps the first occurrence of each URL.
func dedupeByURL(articles []*article.Article) []*article.Article {
	seen := make(map[string]bool, len(articles))
	out := make([]*article.Article, 0, len(articles))
	for _, a := range articles {
		if seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		out = append(out, a)
	}
	return out
}
