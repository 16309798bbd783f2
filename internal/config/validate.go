package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBot(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

// RequireBot reports ErrConfigMissing when no bot token is available.
func (c *Config) RequireBot() error {
	if strings.TrimSpace(c.Bot.Token) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/memebox/config.toml"
	}
	return fmt.Errorf("%w: bot.token is required. Set MEMEBOX_BOT_TOKEN (or TOKEN) or edit %s (create with 'memebox config init')", ErrConfigMissing, defaultPath)
}

func (c *Config) validateBot() error {
	if c.Bot.IngestTimeout <= 0 {
		return errors.New("bot.ingest_timeout must be positive (seconds)")
	}
	if c.Bot.InlineCacheSeconds < 0 {
		return errors.New("bot.inline_cache_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateServer() error {
	parsed, err := url.Parse(c.Server.BaseURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("server.base_url %q must be an absolute URL", c.Server.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server.base_url %q must use http or https", c.Server.BaseURL)
	}
	if c.ListenPort() == "" {
		return fmt.Errorf("server.listen %q must be host:port", c.Server.Listen)
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if err := ensurePositiveMap(map[string]int{
		"transcode.sample_rate":     c.Transcode.SampleRate,
		"transcode.channels":        c.Transcode.Channels,
		"transcode.timeout_seconds": c.Transcode.TimeoutSeconds,
		"transcode.max_parallel":    c.Transcode.MaxParallel,
	}); err != nil {
		return err
	}
	if !strings.HasSuffix(c.Transcode.Bitrate, "k") {
		return fmt.Errorf("transcode.bitrate %q must be expressed in kbit/s (e.g. 32k)", c.Transcode.Bitrate)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
