// Package notifications delivers ingestion and error events via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and degrades to a no-op when no topic is set. Per-class toggles
// in the [notifications] section decide which events reach the topic, so
// callers publish unconditionally and let the service filter.
package notifications
