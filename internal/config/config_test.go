package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tunedrop/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "tunedrop")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "library.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Pairing.CodeLength != 6 {
		t.Fatalf("expected 6 digit codes by default, got %d", cfg.Pairing.CodeLength)
	}
	if cfg.Transfer.Concurrency != 1 {
		t.Fatalf("expected sequential uploads by default, got %d", cfg.Transfer.Concurrency)
	}
	if cfg.RetryBackoff().Seconds() != 1 {
		t.Fatalf("expected 1s retry backoff, got %s", cfg.RetryBackoff())
	}
	if cfg.PairingTimeout().Minutes() < 1 {
		t.Fatalf("expected a human-scale pairing timeout, got %s", cfg.PairingTimeout())
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	payload := struct {
		Paths    config.Paths    `toml:"paths"`
		Pairing  config.Pairing  `toml:"pairing"`
		Transfer config.Transfer `toml:"transfer"`
		Logging  config.Logging  `toml:"logging"`
	}{
		Paths: config.Paths{DataDir: "~/tunedrop-data"},
		Pairing: config.Pairing{
			ListenAddr:              "127.0.0.1:0",
			AdvertiseHost:           "192.168.1.20",
			CodeLength:              8,
			TimeoutSeconds:          60,
			HandshakeTimeoutSeconds: 5,
			KeepaliveSeconds:        10,
			MaxAttempts:             1,
		},
		Transfer: config.Transfer{Concurrency: 3, UploadTimeoutSeconds: 30, RetryBackoffMillis: 250},
		Logging:  config.Logging{Format: "JSON", Level: "Debug"},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected to load %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "tunedrop-data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Pairing.AdvertiseHost != "192.168.1.20" || cfg.Pairing.CodeLength != 8 {
		t.Fatalf("pairing overrides not applied: %+v", cfg.Pairing)
	}
	if cfg.Transfer.Concurrency != 3 {
		t.Fatalf("expected concurrency 3, got %d", cfg.Transfer.Concurrency)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging values to be lowercased, got %+v", cfg.Logging)
	}
}

func TestNotificationTopicFallsBackToEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TUNEDROP_NTFY_TOPIC", " https://ntfy.example/topic ")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/topic" {
		t.Fatalf("expected topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"code too short", func(c *config.Config) { c.Pairing.CodeLength = 2 }, "pairing.code_length"},
		{"zero timeout", func(c *config.Config) { c.Pairing.TimeoutSeconds = 0 }, "pairing.timeout_seconds"},
		{"zero attempts", func(c *config.Config) { c.Pairing.MaxAttempts = 0 }, "pairing.max_attempts"},
		{"concurrency", func(c *config.Config) { c.Transfer.Concurrency = 0 }, "transfer.concurrency"},
		{"negative backoff", func(c *config.Config) { c.Transfer.RetryBackoffMillis = -1 }, "transfer.retry_backoff_ms"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	if _, _, exists, err := config.Load(target); err != nil || !exists {
		t.Fatalf("expected sample config to load, exists=%v err=%v", exists, err)
	}
}
