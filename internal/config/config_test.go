package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPassesValidateWithAPIKey(t *testing.T) {
	cfg := Default()
	cfg.AI.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with api key should validate: %v", err)
	}
}

func TestValidateRejectsMissingAPIKey(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing ai.api_key")
	}
}

func TestValidateRejectsEmailWithoutRecipients(t *testing.T) {
	cfg := Default()
	cfg.AI.APIKey = "sk-test"
	cfg.Email.SMTPHost = "smtp.example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for smtp host without recipients")
	}
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	cfg := Default()
	cfg.AI.APIKey = "sk-test"
	cfg.Schedule.Timezone = "Mars/Phobos"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestExpandEnvSubstitutesVariables(t *testing.T) {
	t.Setenv("BRIEFLOOM_TEST_KEY", "sk-from-env")
	got := expandEnv("api_key = ${BRIEFLOOM_TEST_KEY}")
	want := "api_key = sk-from-env"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEnvLeavesUnsetVariableEmpty(t *testing.T) {
	os.Unsetenv("BRIEFLOOM_DEFINITELY_UNSET")
	got := expandEnv("x = ${BRIEFLOOM_DEFINITELY_UNSET}")
	if got != "x = " {
		t.Errorf("got %q, want empty substitution", got)
	}
}

func TestIniStoreLoadMissingFileReturnsDefaults(t *testing.T) {
	store := NewIniStore(filepath.Join(t.TempDir(), "missing.ini"))
	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schedule.Timezone != "UTC" {
		t.Errorf("expected default timezone, got %q", cfg.Schedule.Timezone)
	}
}

func TestIniStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "briefloom.ini")
	store := NewIniStore(path)

	cfg := Default()
	cfg.AI.APIKey = "sk-roundtrip"
	cfg.Email.SMTPHost = "smtp.example.com"
	cfg.Email.To = []string{"a@example.com", "b@example.com"}
	cfg.Schedule.DigestAtTimes = []string{"07:00", "19:00"}

	if err := store.Save(context.Background(), cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.AI.APIKey != cfg.AI.APIKey {
		t.Errorf("api key: got %q, want %q", loaded.AI.APIKey, cfg.AI.APIKey)
	}
	if len(loaded.Email.To) != 2 {
		t.Errorf("expected 2 recipients, got %d", len(loaded.Email.To))
	}
	if len(loaded.Schedule.DigestAtTimes) != 2 {
		t.Errorf("expected 2 digest times, got %d", len(loaded.Schedule.DigestAtTimes))
	}
}

func TestIniStoreLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("BRIEFLOOM_API_KEY", "sk-env-value")
	path := filepath.Join(t.TempDir(), "briefloom.ini")
	contents := "[ai]\napi_key = ${BRIEFLOOM_API_KEY}\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	store := NewIniStore(path)
	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.APIKey != "sk-env-value" {
		t.Errorf("got %q, want sk-env-value", cfg.AI.APIKey)
	}
}
