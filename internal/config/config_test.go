package config

import (
	"os"
	"path/filepath"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Webhook.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Webhook.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_SweepInterval(t *testing.T) {
	cfg := Defaults()
	cfg.Sweep.IntervalSeconds = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for intervalSeconds=0")
	}
}

func TestValidate_BatchSize(t *testing.T) {
	cfg := Defaults()

	cfg.Sweep.BatchSize = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for batchSize=0")
	}

	cfg.Sweep.BatchSize = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("batchSize=1 should be valid: %v", err)
	}
}

func TestValidate_ParseMode(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.ParseMode = "BBCode"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown parse mode")
	}
}

func TestValidate_WebhookPath(t *testing.T) {
	cfg := Defaults()
	cfg.Webhook.Enabled = true
	cfg.Webhook.Path = "webhook"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for path without leading slash")
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_Set(t *testing.T) {
	t.Setenv("REMINDBOT_TEST_TOKEN", "abc123")
	got := ExpandEnvVars(`{"token":"${REMINDBOT_TEST_TOKEN}"}`)
	want := `{"token":"abc123"}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("REMINDBOT_TEST_MISSING")
	got := ExpandEnvVars(`${REMINDBOT_TEST_MISSING:-fallback}`)
	if got != "fallback" {
		t.Errorf("got %s, want fallback", got)
	}
}

func TestExpandEnvVars_MissingNoDefault(t *testing.T) {
	os.Unsetenv("REMINDBOT_TEST_MISSING")
	got := ExpandEnvVars(`x${REMINDBOT_TEST_MISSING:-}y`)
	if got != "xy" {
		t.Errorf("missing var should expand to empty string, got %q", got)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults()
	cfg.Sweep.BatchSize = 25
	cfg.Storage.DBPath = filepath.Join(dir, "bot.db")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Sweep.BatchSize != 25 {
		t.Errorf("expected batchSize 25, got %d", loaded.Sweep.BatchSize)
	}
}

func TestLoad_TokenFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	t.Setenv("TELEGRAM_BOT_TOKEN", "42:token")

	if err := Save(path, Defaults()); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "42:token" {
		t.Errorf("expected token from env, got %q", cfg.Telegram.Token)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// --- Accessors ---

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	val, err := GetByPath(cfg, "sweep.batchSize")
	if err != nil {
		t.Fatal(err)
	}
	if val.(float64) != 50 {
		t.Errorf("expected 50, got %v", val)
	}
}

func TestSetByPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "sweep.intervalSeconds", "60"); err != nil {
		t.Fatal(err)
	}
	if cfg.Sweep.IntervalSeconds != 60 {
		t.Errorf("expected 60, got %d", cfg.Sweep.IntervalSeconds)
	}
}

func TestSanitize_MasksToken(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "123456789:AAHsecretsecretsecret"
	out := Sanitize(cfg)
	if out.Telegram.Token == cfg.Telegram.Token {
		t.Error("token should be masked")
	}
	if cfg.Telegram.Token != "123456789:AAHsecretsecretsecret" {
		t.Error("original config must not be mutated")
	}
}

func TestFlexStringList_MixedTypes(t *testing.T) {
	var f FlexStringList
	if err := f.UnmarshalJSON([]byte(`["123", 456]`)); err != nil {
		t.Fatal(err)
	}
	if len(f) != 2 || f[0] != "123" || f[1] != "456" {
		t.Errorf("unexpected result: %v", f)
	}
}
