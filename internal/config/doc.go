// Package config loads, normalizes, and validates memebox configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MEMEBOX_BOT_TOKEN, TOKEN, RAILWAY_URL and PORT. Directory fields left blank
// are derived from paths.data_dir so a fresh install only needs a bot token.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
