// Package history persists ingestion attempts in SQLite.
//
// Every ingestion gets a row in ingestions holding its latest Status, plus
// one row per state change in transitions so operators can see where an
// attempt stopped. The catalogue file stays the source of truth for what is
// registered; history is an audit trail and may be deleted at any time.
// Schema changes bump schemaVersion in schema.go.
package history
