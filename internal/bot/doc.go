// Package bot turns platform events into lookups and ingestions.
//
// The Dispatcher is platform neutral: an adapter supplies inbound Events
// through a Source and performs outbound calls through a Messenger. Each
// command name and each callback tag has exactly one handler. Audio replies
// are offered to the ingestion pipeline's subscriptions before anything else
// sees them. Handler errors become user-facing messages in the requester's
// conversation; nothing a single event does can stop the update loop.
package bot
