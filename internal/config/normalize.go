package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBot()
	c.normalizeServer()
	c.normalizeTranscode()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AssetsDir) == "" {
		c.Paths.AssetsDir = filepath.Join(c.Paths.DataDir, defaultAssetsSubdir)
	}
	if c.Paths.AssetsDir, err = expandPath(c.Paths.AssetsDir); err != nil {
		return fmt.Errorf("paths.assets_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CatalogueFile) == "" {
		c.Paths.CatalogueFile = filepath.Join(c.Paths.DataDir, defaultCatalogueName)
	}
	if c.Paths.CatalogueFile, err = expandPath(c.Paths.CatalogueFile); err != nil {
		return fmt.Errorf("paths.catalogue_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = filepath.Join(c.Paths.DataDir, defaultStateSubdir)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBot() {
	c.Bot.Token = strings.TrimSpace(c.Bot.Token)
	if c.Bot.Token == "" {
		if value, ok := os.LookupEnv("MEMEBOX_BOT_TOKEN"); ok {
			c.Bot.Token = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("TOKEN"); ok {
			c.Bot.Token = strings.TrimSpace(value)
		}
	}
	if c.Bot.PollTimeout <= 0 {
		c.Bot.PollTimeout = defaultPollTimeout
	}
	if c.Bot.MenuPageSize <= 0 {
		c.Bot.MenuPageSize = defaultMenuPageSize
	}
}

func (c *Config) normalizeServer() {
	c.Server.Listen = strings.TrimSpace(c.Server.Listen)
	if value, ok := os.LookupEnv("PORT"); ok && strings.TrimSpace(value) != "" {
		host, _, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			host = ""
		}
		c.Server.Listen = net.JoinHostPort(host, strings.TrimSpace(value))
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}

	c.Server.BaseURL = strings.TrimSpace(c.Server.BaseURL)
	if c.Server.BaseURL == "" {
		if value, ok := os.LookupEnv("MEMEBOX_BASE_URL"); ok {
			c.Server.BaseURL = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("RAILWAY_URL"); ok {
			c.Server.BaseURL = strings.TrimSpace(value)
		}
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:" + c.ListenPort()
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")

	prefix := strings.Trim(strings.TrimSpace(c.Server.AssetPrefix), "/")
	if prefix == "" {
		c.Server.AssetPrefix = defaultAssetPrefix
	} else {
		c.Server.AssetPrefix = "/" + prefix + "/"
	}
}

func (c *Config) normalizeTranscode() {
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	if c.Transcode.FFmpegBinary == "" {
		c.Transcode.FFmpegBinary = "ffmpeg"
	}
	c.Transcode.Bitrate = strings.ToLower(strings.TrimSpace(c.Transcode.Bitrate))
	if c.Transcode.Bitrate == "" {
		c.Transcode.Bitrate = defaultBitrate
	}
	if c.Transcode.MaxParallel <= 0 {
		c.Transcode.MaxParallel = defaultMaxParallel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("MEMEBOX_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.File = strings.TrimSpace(c.Logging.File)
}
