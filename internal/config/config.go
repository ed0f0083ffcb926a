// Package config provides configuration persistence for the system.
//
// Store persists and reloads the desired system configuration across
// restarts. This is control-plane state: the scheduler, gateway, and
// stores all load it once at startup and do not watch it for live changes
// (v1 is load-on-start only, same as the rest of the pipeline's control
// plane).
//
// Store does not:
//   - Validate feed URLs (that's internal/feeds' job)
//   - Manage component lifecycle
//   - Hot-reload on file changes
package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Store persists and loads system configuration.
type Store interface {
	// Load reads the configuration from path. Returns a zero-value Config
	// with defaults applied if the file does not exist.
	Load(ctx context.Context) (*Config, error)

	// Save persists cfg back to the same path Load read from.
	Save(ctx context.Context, cfg *Config) error
}

// Config describes the desired shape of a running instance. It is
// declarative: it defines what should run, not how to construct it.
type Config struct {
	AI          AIConfig
	Email       EmailConfig
	Schedule    ScheduleConfig
	Filter      FilterConfig
	Storage     StorageConfig
	Telemetry   TelemetryConfig
	Concurrency ConcurrencyConfig
}

// AIConfig configures the LLM gateway.
type AIConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	RequestTimeout time.Duration
}

// EmailConfig configures outbound digest delivery.
type EmailConfig struct {
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	From        string
	To          []string
	UseTLS      bool
	UseStartTLS bool
}

// ScheduleConfig configures the clock jobs.
type ScheduleConfig struct {
	Timezone      string
	FetchEvery    string   // e.g. "15m", parsed by internal/clock.Interval
	DigestAtTimes []string // e.g. []string{"07:00", "19:00"}
}

// FilterConfig configures article retention, pre-analysis filtering, and
// digest selection settings. Of the digest settings only TopPickCount is
// passed to the Curator.
type FilterConfig struct {
	MaxArticleAgeDays int
	MinContentLength  int

	TopPickCount         int     // top-K fallback size when fewer than 3 units reach the Curator's fixed 8.0 top-pick threshold
	MinScore             float64 // stored only; the Curator's quick_reads floor is a fixed 5.0
	MaxArticlesPerDigest int     // stored only; the Curator caps top_picks at 10 and quick_reads at 20
}

// StorageConfig configures where persistent state lives.
type StorageConfig struct {
	DataDir          string
	VectorBackend    string // "memory" or "pgvector"
	PostgresDSN      string
}

// TelemetryConfig configures AI-call record retention.
type TelemetryConfig struct {
	RetentionDays int
}

// ConcurrencyConfig bounds parallel work across the pipeline.
type ConcurrencyConfig struct {
	FetchWorkers     int
	ExtractWorkers   int
	ArticleProcessing int
}

// Default returns a Config with sane defaults for every field, used when no
// config file exists yet or a section is omitted.
func Default() *Config {
	return &Config{
		AI: AIConfig{
			Model:          "gpt-4o-mini",
			RequestTimeout: 60 * time.Second,
		},
		Email: EmailConfig{
			SMTPPort: 587,
		},
		Schedule: ScheduleConfig{
			Timezone:      "UTC",
			FetchEvery:    "15m",
			DigestAtTimes: []string{"07:00"},
		},
		Filter: FilterConfig{
			MaxArticleAgeDays:    180,
			MinContentLength:     200,
			TopPickCount:         5,
			MinScore:             5.0,
			MaxArticlesPerDigest: 20,
		},
		Storage: StorageConfig{
			DataDir:       "./data",
			VectorBackend: "memory",
		},
		Telemetry: TelemetryConfig{
			RetentionDays: 90,
		},
		Concurrency: ConcurrencyConfig{
			FetchWorkers:      10,
			ExtractWorkers:    5,
			ArticleProcessing: 5,
		},
	}
}

// Validate checks that cfg is internally consistent and fails fast on
// anything that would make the scheduler or gateway unusable. Config load
// failures must stop startup before the scheduler runs.
func (c *Config) Validate() error {
	if c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required")
	}
	if c.Email.SMTPHost != "" && len(c.Email.To) == 0 {
		return fmt.Errorf("email.to must list at least one recipient when email.smtp_host is set")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}
	if c.Concurrency.FetchWorkers <= 0 {
		return fmt.Errorf("concurrency.fetch_workers must be positive")
	}
	if c.Concurrency.ExtractWorkers <= 0 {
		return fmt.Errorf("concurrency.extract_workers must be positive")
	}
	if c.Concurrency.ArticleProcessing <= 0 {
		return fmt.Errorf("concurrency.article_processing must be positive")
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv recursively substitutes ${VAR} references with environment
// variable values. Unset variables expand to the empty string, matching
// shell parameter expansion without a default.
func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := envVarPattern.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
}
