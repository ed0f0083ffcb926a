// Command briefloom runs the feed-ingestion, analysis, and digest pipeline:
// fetch enabled feeds on a schedule, turn new articles into information
// units through the multi-agent orchestrator, and mail a curated digest
// at the configured times of day.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"briefloom/internal/admin"
	"briefloom/internal/agents"
	"briefloom/internal/auth"
	"briefloom/internal/cert"
	"briefloom/internal/clock"
	"briefloom/internal/config"
	"briefloom/internal/home"
	"briefloom/internal/logging"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var homeFlag string

	root := &cobra.Command{
		Use:           "briefloom",
		Short:         "Feed ingestion, multi-agent analysis, and digest delivery",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&homeFlag, "home", "", "home directory for config, feeds, and state (default: OS config dir)/briefloom")

	root.AddCommand(newRunCommand(&homeFlag))
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the briefloom version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func newRunCommand(homeFlag *string) *cobra.Command {
	var (
		once        bool
		limit       int
		dryRun      bool
		modeFlag    string
		concurrency int
		web         bool

		adminAddr   string
		adminSecret string
		noAuth      bool
		adminCORS   []string
		adminCert   string
		adminKey    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the fetch-analyze-digest pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseMode(modeFlag)
			if err != nil {
				return err
			}
			opts := runCmdOptions{
				once:        once,
				limit:       limit,
				dryRun:      dryRun,
				mode:        mode,
				concurrency: concurrency,
				web:         web,
				adminAddr:   adminAddr,
				adminSecret: adminSecret,
				noAuth:      noAuth,
				adminCORS:   adminCORS,
				adminCert:   adminCert,
				adminKey:    adminKey,
			}
			return runMain(cmd.Context(), *homeFlag, opts)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single fetch-analyze cycle then exit, instead of the scheduled service")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of analyzed articles in this cycle (0 = unlimited)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "with --once: fetch and count new articles only, skipping persistence, analysis and any digest; the scheduled service ignores it")
	cmd.Flags().StringVar(&modeFlag, "mode", "standard", "analysis depth: quick, standard, or deep")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override fetch/analysis worker count for this invocation (0 = use config)")
	cmd.Flags().BoolVar(&web, "web", false, "also expose the admin HTTP/WebSocket surface")

	cmd.Flags().StringVar(&adminAddr, "admin-addr", ":8090", "listen address for the admin surface (with --web)")
	cmd.Flags().StringVar(&adminSecret, "admin-secret", "", "HMAC secret for admin bearer tokens (default: $BRIEFLOOM_ADMIN_SECRET, else generated and logged once)")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "disable bearer-token auth on the admin surface (local/dev use only)")
	cmd.Flags().StringSliceVar(&adminCORS, "admin-cors", nil, "explicit CORS origin allowlist for the admin surface (no wildcard)")
	cmd.Flags().StringVar(&adminCert, "admin-cert", "", "TLS certificate file for the admin surface (plain HTTP if unset)")
	cmd.Flags().StringVar(&adminKey, "admin-key", "", "TLS key file for the admin surface")

	return cmd
}

type runCmdOptions struct {
	once        bool
	limit       int
	dryRun      bool
	mode        agents.Mode
	concurrency int
	web         bool

	adminAddr   string
	adminSecret string
	noAuth      bool
	adminCORS   []string
	adminCert   string
	adminKey    string
}

func parseMode(s string) (agents.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quick":
		return agents.ModeQuick, nil
	case "standard", "":
		return agents.ModeStandard, nil
	case "deep":
		return agents.ModeDeep, nil
	default:
		return "", fmt.Errorf("invalid --mode %q: want quick, standard, or deep", s)
	}
}

func resolveHome(flagValue string) (home.Dir, error) {
	if flagValue != "" {
		return home.New(flagValue), nil
	}
	return home.Default()
}

func runMain(parentCtx context.Context, homeFlag string, opts runCmdOptions) error {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug, // allow everything through; ComponentFilterHandler does the real filtering
	})
	levelControl := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(levelControl)

	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hd, err := resolveHome(homeFlag)
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	if err := hd.EnsureExists(); err != nil {
		return err
	}

	store := config.NewIniStore(hd.ConfigPath())
	cfg, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		if _, statErr := os.Stat(hd.ConfigPath()); os.IsNotExist(statErr) {
			if saveErr := store.Save(ctx, cfg); saveErr != nil {
				logger.Warn("failed to write starter config", "path", hd.ConfigPath(), "error", saveErr)
			} else {
				logger.Info("wrote starter config, edit it and re-run", "path", hd.ConfigPath())
			}
		}
		return fmt.Errorf("fatal configuration: %w", err)
	}

	p, err := buildPipeline(ctx, hd, cfg, opts.mode, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer p.close()

	if opts.once {
		_, err := p.runOnce(ctx, admin.RunOptions{Limit: opts.limit, DryRun: opts.dryRun, Concurrency: opts.concurrency})
		return err
	}

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	sched, err := clock.New(logger, loc)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	defer sched.Stop()

	var adminSrv *admin.Server
	if opts.web {
		adminSrv, err = startAdmin(ctx, logger, sched, p, levelControl, opts)
		if err != nil {
			return fmt.Errorf("start admin surface: %w", err)
		}
	}

	var publish func(admin.ProgressState)
	if adminSrv != nil {
		publish = adminSrv.PublishProgress
	}
	if err := p.schedule(sched, publish); err != nil {
		return fmt.Errorf("schedule jobs: %w", err)
	}

	logger.Info("briefloom running", "home", hd.Root(), "fetch_every", cfg.Schedule.FetchEvery, "digest_at", cfg.Schedule.DigestAtTimes, "web", opts.web)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// startAdmin constructs and serves the admin HTTP surface in the
// background, returning the Server so main can wire scheduler progress
// events into it.
func startAdmin(ctx context.Context, logger *slog.Logger, sched *clock.Scheduler, p *pipeline, levelControl *logging.ComponentFilterHandler, opts runCmdOptions) (*admin.Server, error) {
	var tokens *auth.TokenService
	if !opts.noAuth {
		secret := opts.adminSecret
		if secret == "" {
			secret = os.Getenv("BRIEFLOOM_ADMIN_SECRET")
		}
		if secret == "" {
			generated, err := randomSecret(32)
			if err != nil {
				return nil, fmt.Errorf("generate admin secret: %w", err)
			}
			secret = generated
			logger.Warn("no admin secret configured, generated an ephemeral one for this process only")
		}
		tokens = auth.NewTokenService([]byte(secret), 24*time.Hour)
		token, _, err := tokens.Issue("admin", "admin")
		if err != nil {
			return nil, fmt.Errorf("issue admin bootstrap token: %w", err)
		}
		logger.Warn("admin bootstrap bearer token (use once, then rely on your own token issuance)", "token", token)
	}

	srv := admin.New(admin.Config{
		Feeds:     p.feedRegistry,
		Articles:  p.articles,
		Scheduler: sched,
		Tokens:    tokens,
		Run: func(ctx context.Context, ro admin.RunOptions) error {
			_, err := p.runOnce(ctx, ro)
			return err
		},
		Digest: func(ctx context.Context) error {
			_, err := p.digestOnce(ctx, false)
			return err
		},
		Stats:        p.stats,
		CORSOrigins:  opts.adminCORS,
		LevelControl: levelControl,
		Logger:       logger,
	})

	httpServer := &http.Server{
		Addr:    opts.adminAddr,
		Handler: srv.Router(),
	}

	useTLS := opts.adminCert != "" && opts.adminKey != ""
	if useTLS {
		certMgr := cert.New(cert.Config{Logger: logger})
		if err := certMgr.LoadFromConfig("admin", map[string]cert.CertSource{
			"admin": {CertFile: opts.adminCert, KeyFile: opts.adminKey},
		}); err != nil {
			return nil, fmt.Errorf("load admin TLS certificate: %w", err)
		}
		if certMgr.Certificate("admin") == nil {
			return nil, fmt.Errorf("load admin TLS certificate: no certificate loaded from %s / %s", opts.adminCert, opts.adminKey)
		}
		httpServer.TLSConfig = certMgr.TLSConfig()
	}

	go func() {
		var err error
		if useTLS {
			// cert/key already loaded into httpServer.TLSConfig via the manager;
			// passing empty paths here makes ListenAndServeTLS use TLSConfig.GetCertificate.
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Error("admin surface stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	return srv, nil
}

func randomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
