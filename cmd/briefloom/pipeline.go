package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"briefloom/internal/admin"
	"briefloom/internal/agents"
	"briefloom/internal/article"
	"briefloom/internal/clock"
	"briefloom/internal/config"
	"briefloom/internal/digest"
	"briefloom/internal/entitystore"
	"briefloom/internal/feeds"
	"briefloom/internal/fetch"
	"briefloom/internal/home"
	"briefloom/internal/infostore"
	"briefloom/internal/llm"
	"briefloom/internal/notify"
	"briefloom/internal/orchestrator"
	"briefloom/internal/telemetry"
	"briefloom/internal/vectorindex"
)

// pipeline wires every collaborator the fetch-analyze-digest cycle needs
// and exposes the handful of entry points cmd/briefloom drives: one-shot
// runs (CLI --once, admin-triggered POST /api/run) and digest builds (the
// scheduler's wall-clock job, admin-triggered POST /api/digest).
type pipeline struct {
	cfg    *config.Config
	home   home.Dir
	mode   agents.Mode
	logger *slog.Logger

	feedRegistry *feeds.Registry
	articles     article.Store
	infoStore    infostore.Store
	entityStore  entitystore.Store
	index        vectorindex.Index
	gateway      *llm.Gateway
	telemetry    *telemetry.Recorder
	orch         *orchestrator.Orchestrator
	curator      *digest.Curator
	notifier     *notify.Notifier // nil when email.smtp_host is unset

	// agent set, kept alongside orch so orchFor can build a differently
	// sized Orchestrator for a single run without re-running every New*
	// constructor.
	agents agentSet

	progress func(admin.ProgressState)

	mu     sync.Mutex
	totals digest.Totals
}

type agentSet struct {
	collector *agents.Collector
	librarian *agents.Librarian
	skeptic   *agents.Analyst
	economist *agents.Analyst
	detective *agents.Analyst
	editor    *agents.Editor
	extractor *agents.Extractor
	merger    *agents.Merger
}

// buildPipeline constructs every real collaborator in dependency order.
// Nothing here is mocked: the same components back CLI-driven and
// admin-surface-triggered cycles.
func buildPipeline(ctx context.Context, hd home.Dir, cfg *config.Config, mode agents.Mode, logger *slog.Logger) (*pipeline, error) {
	rec, err := telemetry.New(hd.TelemetryDir(), logger)
	if err != nil {
		return nil, fmt.Errorf("open telemetry log: %w", err)
	}
	gatewayRecorder := telemetry.NewGatewayRecorder(rec)

	gateway := llm.New(llm.Config{
		BaseURL:  cfg.AI.BaseURL,
		APIKey:   cfg.AI.APIKey,
		Model:    cfg.AI.Model,
		Timeout:  cfg.AI.RequestTimeout,
		Recorder: gatewayRecorder,
		Logger:   logger,
	})

	var index vectorindex.Index
	switch cfg.Storage.VectorBackend {
	case "pgvector":
		pidx, err := vectorindex.NewPostgresIndex(ctx, cfg.Storage.PostgresDSN, "information_unit_vectors")
		if err != nil {
			return nil, fmt.Errorf("open pgvector index: %w", err)
		}
		index = pidx
	default:
		index = vectorindex.NewMemoryIndex(0)
	}

	articleStore, err := article.NewSQLiteStore(ctx, hd.ArticleDBPath())
	if err != nil {
		return nil, fmt.Errorf("open article store: %w", err)
	}
	infoStore, err := infostore.NewSQLiteStore(ctx, hd.InfoStoreDBPath(), index)
	if err != nil {
		return nil, fmt.Errorf("open information store: %w", err)
	}
	entityStore, err := entitystore.NewSQLiteStore(ctx, hd.EntityStoreDBPath())
	if err != nil {
		return nil, fmt.Errorf("open entity store: %w", err)
	}

	registry, err := feeds.NewRegistry(feeds.Config{
		Store:  feeds.NewFileStore(hd.FeedsPath()),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open feed registry: %w", err)
	}

	collector := agents.NewCollector(gateway, logger)
	librarian := agents.NewLibrarian(gateway, index, logger)
	skeptic := agents.NewSkeptic(gateway, logger)
	economist := agents.NewEconomist(gateway, logger)
	detective := agents.NewDetective(gateway, logger)
	editor := agents.NewEditor(logger)
	extractor := agents.NewExtractor(gateway, nil, logger)
	merger := agents.NewMerger(logger)

	aset := agentSet{
		collector: collector,
		librarian: librarian,
		skeptic:   skeptic,
		economist: economist,
		detective: detective,
		editor:    editor,
		extractor: extractor,
		merger:    merger,
	}

	orch := orchestrator.New(orchestrator.Config{
		Collector:   collector,
		Librarian:   librarian,
		Skeptic:     skeptic,
		Economist:   economist,
		Detective:   detective,
		Editor:      editor,
		Extractor:   extractor,
		Merger:      merger,
		InfoStore:   infoStore,
		EntityStore: entityStore,
		Index:       index,
		Traces:      orchestrator.NewFileTraceWriter(filepath.Join(hd.TelemetryDir(), "traces")),
		Concurrency: cfg.Concurrency.ArticleProcessing,
		Logger:      logger,
	})

	curator := digest.NewCurator(gateway, infoStore, cfg.Filter.TopPickCount, logger)

	var notifier *notify.Notifier
	if cfg.Email.SMTPHost != "" {
		notifier, err = notify.New(notify.Config{
			SMTPHost:    cfg.Email.SMTPHost,
			SMTPPort:    cfg.Email.SMTPPort,
			Username:    cfg.Email.Username,
			Password:    cfg.Email.Password,
			From:        cfg.Email.From,
			ImplicitTLS: cfg.Email.UseTLS,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("configure notifier: %w", err)
		}
	} else {
		logger.Warn("email.smtp_host not set, digests will be built but never sent")
	}

	return &pipeline{
		cfg:          cfg,
		home:         hd,
		mode:         mode,
		logger:       logger,
		feedRegistry: registry,
		articles:     articleStore,
		infoStore:    infoStore,
		entityStore:  entityStore,
		index:        index,
		gateway:      gateway,
		telemetry:    rec,
		orch:         orch,
		curator:      curator,
		notifier:     notifier,
		agents:       aset,
	}, nil
}

// fetcherFor returns a Fetcher sized for this invocation: the pipeline's
// configured defaults, or an ephemeral override when a caller (the admin
// surface, or --concurrency) requests a different worker count for this
// run only.
func (p *pipeline) fetcherFor(concurrency int) *fetch.Fetcher {
	cfg := fetch.Config{
		FeedWorkers:    p.cfg.Concurrency.FetchWorkers,
		ExtractWorkers: p.cfg.Concurrency.ExtractWorkers,
		RetentionDays:  p.cfg.Filter.MaxArticleAgeDays,
		Logger:         p.logger,
	}
	if concurrency > 0 {
		cfg.FeedWorkers = concurrency
		cfg.ExtractWorkers = concurrency
	}
	return fetch.New(cfg)
}

// orchFor mirrors fetcherFor for the orchestrator's across-article
// concurrency: reuses the pipeline's long-lived Orchestrator unless this
// call asked for a different fan-out width, in which case it builds a
// throwaway Orchestrator around the same agents and stores.
func (p *pipeline) orchFor(concurrency int) *orchestrator.Orchestrator {
	if concurrency <= 0 || concurrency == p.cfg.Concurrency.ArticleProcessing {
		return p.orch
	}
	a := p.agents
	return orchestrator.New(orchestrator.Config{
		Collector:   a.collector,
		Librarian:   a.librarian,
		Skeptic:     a.skeptic,
		Economist:   a.economist,
		Detective:   a.detective,
		Editor:      a.editor,
		Extractor:   a.extractor,
		Merger:      a.merger,
		InfoStore:   p.infoStore,
		EntityStore: p.entityStore,
		Index:       p.index,
		Traces:      orchestrator.NewFileTraceWriter(filepath.Join(p.home.TelemetryDir(), "traces")),
		Concurrency: concurrency,
		Logger:      p.logger,
	})
}

// runReport summarizes one fetch-analyze cycle for logging and for the
// admin surface's stats endpoint.
type runReport struct {
	Fetched  int
	New      int
	Analyzed int
	Failed   int
}

// runOnce executes one fetch-analyze cycle: pull every enabled feed,
// persist articles not already seen, and run them through the
// information-centric orchestrator pipeline. It never sends a digest.
// With DryRun set, the cycle stops after fetching and filtering out
// already-seen articles: nothing is persisted or analyzed.
func (p *pipeline) runOnce(ctx context.Context, opts admin.RunOptions) (runReport, error) {
	feedList := p.feedRegistry.Enabled()
	fetcher := p.fetcherFor(opts.Concurrency)

	fetched, err := fetcher.Fetch(ctx, feedList)
	if err != nil {
		return runReport{}, fmt.Errorf("fetch feeds: %w", err)
	}

	var fresh []*article.Article
	for _, a := range fetched {
		exists, err := p.articles.Exists(ctx, a.URL)
		if err != nil {
			p.logger.Error("check article existence", "url", a.URL, "error", err)
			continue
		}
		if !exists {
			fresh = append(fresh, a)
		}
	}

	if opts.Limit > 0 && len(fresh) > opts.Limit {
		fresh = fresh[:opts.Limit]
	}

	report := runReport{Fetched: len(fetched), New: len(fresh)}

	if opts.DryRun {
		p.logger.Info("dry run: skipping persistence and analysis", "fetched", report.Fetched, "new", report.New)
		p.recordTotals(digest.Totals{Fetched: report.Fetched})
		return report, nil
	}

	batch := make([]article.Article, 0, len(fresh))
	for _, a := range fresh {
		if err := p.articles.Upsert(ctx, a); err != nil {
			p.logger.Error("persist article", "url", a.URL, "error", err)
			continue
		}
		batch = append(batch, *a)
	}

	orch := p.orchFor(opts.Concurrency)
	results := orch.ProcessArticles(ctx, batch, p.mode)

	var units int
	for _, r := range results {
		if r.Err != nil {
			report.Failed++
			p.logger.Warn("article processing failed", "url", r.Article.URL, "error", r.Err)
			continue
		}
		report.Analyzed++
		units += len(r.Units)
	}

	p.recordTotals(digest.Totals{Fetched: report.Fetched, Analyzed: report.Analyzed, Filtered: report.Fetched - report.New})
	p.logger.Info("fetch cycle complete", "fetched", report.Fetched, "new", report.New, "analyzed", report.Analyzed, "failed", report.Failed, "units", units)
	return report, nil
}

// recordTotals accumulates the running digest.Totals since the last digest
// send. These are display-header counters only, reset in digestOnce.
func (p *pipeline) recordTotals(t digest.Totals) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totals.Fetched += t.Fetched
	p.totals.Analyzed += t.Analyzed
	p.totals.Filtered += t.Filtered
}

func (p *pipeline) drainTotals() digest.Totals {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.totals
	p.totals = digest.Totals{}
	return t
}

// digestOnce builds the day's digest and, unless dryRun or no SMTP host is
// configured, emails it and marks the included units sent.
func (p *pipeline) digestOnce(ctx context.Context, dryRun bool) (*digest.Digest, error) {
	totals := p.drainTotals()
	d, err := p.curator.BuildDigest(ctx, totals)
	if err != nil {
		return nil, fmt.Errorf("build digest: %w", err)
	}

	if dryRun || p.notifier == nil {
		p.logger.Info("digest built, send skipped", "dry_run", dryRun, "configured", p.notifier != nil, "top_picks", len(d.TopPicks), "quick_reads", len(d.QuickReads))
		return d, nil
	}

	result, err := p.notifier.Send(ctx, d, p.cfg.Email.To, nil)
	if err != nil {
		return d, fmt.Errorf("send digest: %w", err)
	}
	if !result.Success() {
		return d, fmt.Errorf("digest send failed for every recipient: %v", result.Errors)
	}
	if err := p.curator.MarkEmitted(ctx, d); err != nil {
		p.logger.Error("mark digest emitted", "error", err)
	}
	return d, nil
}

// close releases every collaborator that owns a file descriptor or
// background goroutine.
func (p *pipeline) close() error {
	var errs []error
	if c, ok := p.articles.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := p.infoStore.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := p.entityStore.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := p.index.(interface{ Close() }); ok {
		c.Close()
	}
	if p.feedRegistry != nil {
		errs = append(errs, p.feedRegistry.Close())
	}
	if p.telemetry != nil {
		errs = append(errs, p.telemetry.Close())
	}
	return errors.Join(errs...)
}

// schedule registers the recurring fetch and digest jobs on sched,
// publishing progress snapshots through publish (nil when --web is not
// set).
func (p *pipeline) schedule(sched *clock.Scheduler, publish func(admin.ProgressState)) error {
	p.progress = publish

	iv, err := clock.ParseInterval(p.cfg.Schedule.FetchEvery)
	if err != nil {
		return fmt.Errorf("schedule.fetch_every: %w", err)
	}

	if err := sched.RunEvery("fetch", iv, func(ctx context.Context) error {
		p.publishProgress("fetch", 0, 0)
		_, err := p.runOnce(ctx, admin.RunOptions{})
		p.publishProgress("idle", 0, 0)
		return err
	}); err != nil {
		return fmt.Errorf("register fetch job: %w", err)
	}

	if err := sched.RunAt("digest", p.cfg.Schedule.DigestAtTimes).Do(func(ctx context.Context) error {
		p.publishProgress("digest", 0, 0)
		_, err := p.digestOnce(ctx, false)
		p.publishProgress("idle", 0, 0)
		return err
	}); err != nil {
		return fmt.Errorf("register digest job: %w", err)
	}

	return nil
}

func (p *pipeline) publishProgress(stage string, current, total int) {
	if p.progress == nil {
		return
	}
	p.progress(admin.ProgressState{Stage: stage, Current: current, Total: total})
}

// stats feeds admin.StatsFunc: process-specific counters layered on top of
// the admin surface's own status fields.
func (p *pipeline) stats(ctx context.Context) (map[string]any, error) {
	p.mu.Lock()
	totals := p.totals
	p.mu.Unlock()

	feedCount := len(p.feedRegistry.List())
	enabledCount := len(p.feedRegistry.Enabled())

	return map[string]any{
		"mode":            string(p.mode),
		"feeds_total":     feedCount,
		"feeds_enabled":   enabledCount,
		"totals_fetched":  totals.Fetched,
		"totals_analyzed": totals.Analyzed,
		"totals_filtered": totals.Filtered,
		"vector_backend":  p.cfg.Storage.VectorBackend,
		"notifier_armed":  p.notifier != nil,
	}, nil
}

