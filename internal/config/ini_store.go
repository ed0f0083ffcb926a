package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// IniStore persists Config to a flat INI file. Every string value is run
// through expandEnv before being parsed, so secrets like the AI API key or
// SMTP password can live in the environment instead of on disk.
type IniStore struct {
	path string
}

// NewIniStore returns a Store backed by the INI file at path.
func NewIniStore(path string) *IniStore {
	return &IniStore{path: path}
}

func (s *IniStore) Load(ctx context.Context) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return cfg, nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", s.path, err)
	}

	f, err := ini.Load([]byte(expandEnv(string(raw))))
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", s.path, err)
	}

	if sec := f.Section("ai"); sec != nil {
		cfg.AI.BaseURL = sec.Key("base_url").MustString(cfg.AI.BaseURL)
		cfg.AI.APIKey = sec.Key("api_key").MustString(cfg.AI.APIKey)
		cfg.AI.Model = sec.Key("model").MustString(cfg.AI.Model)
		if v := sec.Key("request_timeout").String(); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("ai.request_timeout: %w", err)
			}
			cfg.AI.RequestTimeout = d
		}
	}

	if sec := f.Section("email"); sec != nil {
		cfg.Email.SMTPHost = sec.Key("smtp_host").MustString(cfg.Email.SMTPHost)
		cfg.Email.SMTPPort = sec.Key("smtp_port").MustInt(cfg.Email.SMTPPort)
		cfg.Email.Username = sec.Key("username").MustString(cfg.Email.Username)
		cfg.Email.Password = sec.Key("password").MustString(cfg.Email.Password)
		cfg.Email.From = sec.Key("from").MustString(cfg.Email.From)
		if v := sec.Key("to").String(); v != "" {
			cfg.Email.To = splitAndTrim(v)
		}
		cfg.Email.UseTLS = sec.Key("use_tls").MustBool(cfg.Email.UseTLS)
		cfg.Email.UseStartTLS = sec.Key("use_starttls").MustBool(cfg.Email.UseStartTLS)
	}

	if sec := f.Section("schedule"); sec != nil {
		cfg.Schedule.Timezone = sec.Key("timezone").MustString(cfg.Schedule.Timezone)
		cfg.Schedule.FetchEvery = sec.Key("fetch_every").MustString(cfg.Schedule.FetchEvery)
		if v := sec.Key("digest_at").String(); v != "" {
			cfg.Schedule.DigestAtTimes = splitAndTrim(v)
		}
	}

	if sec := f.Section("filter"); sec != nil {
		cfg.Filter.MaxArticleAgeDays = sec.Key("max_article_age_days").MustInt(cfg.Filter.MaxArticleAgeDays)
		cfg.Filter.MinContentLength = sec.Key("min_content_length").MustInt(cfg.Filter.MinContentLength)
		cfg.Filter.TopPickCount = sec.Key("top_pick_count").MustInt(cfg.Filter.TopPickCount)
		cfg.Filter.MinScore = sec.Key("min_score").MustFloat64(cfg.Filter.MinScore)
		cfg.Filter.MaxArticlesPerDigest = sec.Key("max_articles_per_digest").MustInt(cfg.Filter.MaxArticlesPerDigest)
	}

	if sec := f.Section("storage"); sec != nil {
		cfg.Storage.DataDir = sec.Key("data_dir").MustString(cfg.Storage.DataDir)
		cfg.Storage.VectorBackend = sec.Key("vector_backend").MustString(cfg.Storage.VectorBackend)
		cfg.Storage.PostgresDSN = sec.Key("postgres_dsn").MustString(cfg.Storage.PostgresDSN)
	}

	if sec := f.Section("telemetry"); sec != nil {
		cfg.Telemetry.RetentionDays = sec.Key("retention_days").MustInt(cfg.Telemetry.RetentionDays)
	}

	if sec := f.Section("concurrency"); sec != nil {
		cfg.Concurrency.FetchWorkers = sec.Key("fetch_workers").MustInt(cfg.Concurrency.FetchWorkers)
		cfg.Concurrency.ExtractWorkers = sec.Key("extract_workers").MustInt(cfg.Concurrency.ExtractWorkers)
		cfg.Concurrency.ArticleProcessing = sec.Key("article_processing").MustInt(cfg.Concurrency.ArticleProcessing)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", s.path, err)
	}

	return cfg, nil
}

func (s *IniStore) Save(ctx context.Context, cfg *Config) error {
	f := ini.Empty()

	ai, _ := f.NewSection("ai")
	ai.Key("base_url").SetValue(cfg.AI.BaseURL)
	ai.Key("api_key").SetValue(cfg.AI.APIKey)
	ai.Key("model").SetValue(cfg.AI.Model)
	ai.Key("request_timeout").SetValue(cfg.AI.RequestTimeout.String())

	email, _ := f.NewSection("email")
	email.Key("smtp_host").SetValue(cfg.Email.SMTPHost)
	email.Key("smtp_port").SetValue(fmt.Sprintf("%d", cfg.Email.SMTPPort))
	email.Key("username").SetValue(cfg.Email.Username)
	email.Key("password").SetValue(cfg.Email.Password)
	email.Key("from").SetValue(cfg.Email.From)
	email.Key("to").SetValue(strings.Join(cfg.Email.To, ","))
	email.Key("use_tls").SetValue(fmt.Sprintf("%t", cfg.Email.UseTLS))
	email.Key("use_starttls").SetValue(fmt.Sprintf("%t", cfg.Email.UseStartTLS))

	sched, _ := f.NewSection("schedule")
	sched.Key("timezone").SetValue(cfg.Schedule.Timezone)
	sched.Key("fetch_every").SetValue(cfg.Schedule.FetchEvery)
	sched.Key("digest_at").SetValue(strings.Join(cfg.Schedule.DigestAtTimes, ","))

	filter, _ := f.NewSection("filter")
	filter.Key("max_article_age_days").SetValue(fmt.Sprintf("%d", cfg.Filter.MaxArticleAgeDays))
	filter.Key("min_content_length").SetValue(fmt.Sprintf("%d", cfg.Filter.MinContentLength))
	filter.Key("top_pick_count").SetValue(fmt.Sprintf("%d", cfg.Filter.TopPickCount))
	filter.Key("min_score").SetValue(fmt.Sprintf("%g", cfg.Filter.MinScore))
	filter.Key("max_articles_per_digest").SetValue(fmt.Sprintf("%d", cfg.Filter.MaxArticlesPerDigest))

	storage, _ := f.NewSection("storage")
	storage.Key("data_dir").SetValue(cfg.Storage.DataDir)
	storage.Key("vector_backend").SetValue(cfg.Storage.VectorBackend)
	storage.Key("postgres_dsn").SetValue(cfg.Storage.PostgresDSN)

	telemetry, _ := f.NewSection("telemetry")
	telemetry.Key("retention_days").SetValue(fmt.Sprintf("%d", cfg.Telemetry.RetentionDays))

	conc, _ := f.NewSection("concurrency")
	conc.Key("fetch_workers").SetValue(fmt.Sprintf("%d", cfg.Concurrency.FetchWorkers))
	conc.Key("extract_workers").SetValue(fmt.Sprintf("%d", cfg.Concurrency.ExtractWorkers))
	conc.Key("article_processing").SetValue(fmt.Sprintf("%d", cfg.Concurrency.ArticleProcessing))

	if err := f.SaveTo(s.path); err != nil {
		return fmt.Errorf("save config %s: %w", s.path, err)
	}
	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
