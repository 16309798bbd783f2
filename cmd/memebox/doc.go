// Command memebox runs the meme voice-clip bot and manages its catalogue.
//
// `memebox serve` starts the Telegram bot together with the asset HTTP
// endpoint. The remaining commands operate on local state directly and are
// safe to run while the bot is up: catalogue edits take the same file lock
// the bot uses, and the running bot reloads the catalogue when it changes.
//
// Command groups:
//   - catalogue: list, check, normalize, add, rename
//   - history: list, show, stats, prune
//   - config: init, validate, show
//   - status, test-notify
package main
