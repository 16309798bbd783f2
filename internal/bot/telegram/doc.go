// Package telegram adapts the Telegram Bot API to the platform-neutral
// interfaces of package bot.
//
// Client implements bot.Messenger for outbound messages, bot.Source for the
// long-polling update loop, and ingest.Downloader for fetching uploaded
// audio. Updates are converted to bot.Event values here so the dispatcher
// never sees Telegram types. Polling failures are logged and retried with
// exponential backoff; the loop only ends when its context is cancelled.
package telegram
