package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"memebox/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"MEMEBOX_BOT_TOKEN", "TOKEN", "MEMEBOX_BASE_URL", "RAILWAY_URL", "PORT", "MEMEBOX_NTFY_TOPIC"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaultConfigDerivesPathsFromDataDir(t *testing.T) {
	clearEnv(t)
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

	wantData := filepath.Join(tempHome, ".local", "share", "memebox")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.AssetsDir != filepath.Join(wantData, "memes") {
		t.Fatalf("unexpected assets dir: %q", cfg.Paths.AssetsDir)
	}
	if cfg.Paths.CatalogueFile != filepath.Join(wantData, "memes.json") {
		t.Fatalf("unexpected catalogue file: %q", cfg.Paths.CatalogueFile)
	}
	if cfg.Server.BaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected base url: %q", cfg.Server.BaseURL)
	}
	if cfg.Bot.InlineCacheSeconds != 10 {
		t.Fatalf("unexpected inline cache seconds: %d", cfg.Bot.InlineCacheSeconds)
	}
	if cfg.FFmpegBinary() != "ffmpeg" {
		t.Fatalf("unexpected ffmpeg binary: %q", cfg.FFmpegBinary())
	}
	if err := cfg.RequireBot(); !errors.Is(err, config.ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing without token, got %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.AssetsDir, cfg.Paths.StateDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "memebox.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Bot struct {
			Token         string `toml:"token"`
			IngestTimeout int    `toml:"ingest_timeout"`
		} `toml:"bot"`
		Server struct {
			BaseURL     string `toml:"base_url"`
			AssetPrefix string `toml:"asset_prefix"`
		} `toml:"server"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Bot.Token = "abc123"
	custom.Bot.IngestTimeout = 45
	custom.Server.BaseURL = "https://memes.example.com/"
	custom.Server.AssetPrefix = "clips"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Bot.Token != "abc123" {
		t.Fatalf("expected token from file, got %q", cfg.Bot.Token)
	}
	if cfg.IngestTimeout().Seconds() != 45 {
		t.Fatalf("expected ingest timeout 45s, got %v", cfg.IngestTimeout())
	}
	if cfg.Server.BaseURL != "https://memes.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Server.BaseURL)
	}
	if cfg.Server.AssetPrefix != "/clips/" {
		t.Fatalf("expected normalized asset prefix, got %q", cfg.Server.AssetPrefix)
	}
	if cfg.Paths.AssetsDir != filepath.Join(tempDir, "data", "memes") {
		t.Fatalf("unexpected assets dir: %q", cfg.Paths.AssetsDir)
	}
	if err := cfg.RequireBot(); err != nil {
		t.Fatalf("RequireBot returned error: %v", err)
	}
}

func TestEnvFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TOKEN", "env-token")
	t.Setenv("RAILWAY_URL", "https://bot.up.example.app")
	t.Setenv("PORT", "9090")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Bot.Token != "env-token" {
		t.Errorf("expected token from env, got %q", cfg.Bot.Token)
	}
	if cfg.Server.BaseURL != "https://bot.up.example.app" {
		t.Errorf("expected base url from env, got %q", cfg.Server.BaseURL)
	}
	if cfg.Server.Listen != ":9090" {
		t.Errorf("expected PORT to set listen address, got %q", cfg.Server.Listen)
	}
}

func TestPreferredEnvNamesWin(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TOKEN", "legacy")
	t.Setenv("MEMEBOX_BOT_TOKEN", "preferred")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Bot.Token != "preferred" {
		t.Fatalf("expected MEMEBOX_BOT_TOKEN to win, got %q", cfg.Bot.Token)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_bot_token_here") {
		t.Fatalf("sample config missing placeholder token: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Transcode.Bitrate != "32k" {
		t.Fatalf("expected sample bitrate 32k, got %q", cfg.Transcode.Bitrate)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"ingest timeout", func(c *config.Config) { c.Bot.IngestTimeout = 0 }},
		{"negative cache", func(c *config.Config) { c.Bot.InlineCacheSeconds = -1 }},
		{"relative base url", func(c *config.Config) { c.Server.BaseURL = "memes.example.com" }},
		{"ftp base url", func(c *config.Config) { c.Server.BaseURL = "ftp://memes.example.com" }},
		{"listen without port", func(c *config.Config) { c.Server.Listen = "localhost" }},
		{"sample rate", func(c *config.Config) { c.Transcode.SampleRate = 0 }},
		{"bitrate unit", func(c *config.Config) { c.Transcode.Bitrate = "32000" }},
		{"notify timeout", func(c *config.Config) { c.Notifications.RequestTimeout = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Server.BaseURL = "http://localhost:8080"
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	cfg.Server.BaseURL = "http://localhost:8080"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
