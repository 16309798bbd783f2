package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// ErrConfigMissing reports a required setting that is absent from both the
// config file and the environment.
var ErrConfigMissing = errors.New("required configuration missing")

// Paths contains directory and file locations.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	AssetsDir     string `toml:"assets_dir"`
	CatalogueFile string `toml:"catalogue_file"`
	StateDir      string `toml:"state_dir"`
}

// Bot contains chat platform connection and interaction settings.
type Bot struct {
	Token              string `toml:"token"`
	PollTimeout        int    `toml:"poll_timeout"`
	IngestTimeout      int    `toml:"ingest_timeout"`
	InlineCacheSeconds int    `toml:"inline_cache_seconds"`
	MenuPageSize       int    `toml:"menu_page_size"`
	Debug              bool   `toml:"debug"`
}

// Server contains the asset HTTP endpoint configuration.
type Server struct {
	Listen      string `toml:"listen"`
	BaseURL     string `toml:"base_url"`
	AssetPrefix string `toml:"asset_prefix"`
}

// Transcode contains ffmpeg voice encoding settings.
type Transcode struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	Bitrate        string `toml:"bitrate"`
	SampleRate     int    `toml:"sample_rate"`
	Channels       int    `toml:"channels"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxParallel    int    `toml:"max_parallel"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Ingestion      bool   `toml:"ingestion"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for memebox.
//
// Configuration sections by subsystem:
//   - Paths: data, asset, catalogue and state locations
//   - Bot: chat platform token and interaction timings
//   - Server: asset HTTP endpoint and public base URL
//   - Transcode: ffmpeg voice encoding parameters
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level and optional file
type Config struct {
	Paths         Paths         `toml:"paths"`
	Bot           Bot           `toml:"bot"`
	Server        Server        `toml:"server"`
	Transcode     Transcode     `toml:"transcode"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/memebox/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. The bot token is not required here; commands
// that talk to the chat platform call RequireBot.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("memebox.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.AssetsDir, c.Paths.StateDir, filepath.Dir(c.Paths.CatalogueFile)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DaemonLockPath is the single-instance lock file held by a running bot.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "memebox.lock")
}

// HistoryDBPath is the SQLite database recording ingestion attempts.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// CatalogueLockPath guards read-modify-write cycles on the catalogue file
// across processes.
func (c *Config) CatalogueLockPath() string {
	return c.Paths.CatalogueFile + ".lock"
}

// FFmpegBinary returns the ffmpeg executable used for transcoding.
func (c *Config) FFmpegBinary() string {
	if binary := strings.TrimSpace(c.Transcode.FFmpegBinary); binary != "" {
		return binary
	}
	return "ffmpeg"
}

// IngestTimeout is how long an ingestion waits for the requester's upload.
func (c *Config) IngestTimeout() time.Duration {
	return time.Duration(c.Bot.IngestTimeout) * time.Second
}

// PollTimeout is the long-poll timeout used when fetching platform updates.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Bot.PollTimeout) * time.Second
}

// TranscodeTimeout bounds a single ffmpeg invocation.
func (c *Config) TranscodeTimeout() time.Duration {
	return time.Duration(c.Transcode.TimeoutSeconds) * time.Second
}

// ListenPort returns the port component of the server listen address.
func (c *Config) ListenPort() string {
	_, port, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return ""
	}
	return port
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
