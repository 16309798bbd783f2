package bot

import (
	"errors"

	"memebox/internal/callback"
	"memebox/internal/catalogue"
	"memebox/internal/ingest"
	"memebox/internal/transcode"
)

// usageError marks a malformed command; its text is shown verbatim.
type usageError struct{ text string }

func (e usageError) Error() string { return e.text }

func usage(text string) error { return usageError{text: text} }

var userErrors = []struct {
	err error
	msg string
}{
	{catalogue.ErrAssetMissing, "❌ That meme is registered but its audio file is missing on the server."},
	{catalogue.ErrKeyNotFound, "❌ Meme not found. Send /list to see what is available."},
	{catalogue.ErrCategoryNotFound, "❌ No such category."},
	{catalogue.ErrKeyExists, "❌ A meme with that key already exists."},
	{catalogue.ErrInvalidKey, "❌ That name isn't allowed. Keys can't contain slashes and category names can't contain spaces or underscores."},
	{ingest.ErrKeyReserved, "⏳ Someone is already adding a meme with that key."},
	{ingest.ErrAlreadyWaiting, "⏳ I'm still waiting for your audio. Reply to my prompt or send /cancel."},
	{ingest.ErrIngestionTimeout, "⌛ No audio received in time. Send /add again when you're ready."},
	{ingest.ErrDownloadFailed, "❌ I couldn't download that audio. Please try again."},
	{transcode.ErrTranscodeFailed, "❌ I couldn't convert that audio. Try a different file."},
	{ingest.ErrClosed, "⏳ The bot is restarting. Please try again in a moment."},
	{callback.ErrMalformed, "❌ That button is no longer valid."},
}

// userMessage maps an error onto the text shown to the requester.
func userMessage(err error) string {
	var u usageError
	if errors.As(err, &u) {
		return u.text
	}
	for _, candidate := range userErrors {
		if errors.Is(err, candidate.err) {
			return candidate.msg
		}
	}
	return "❌ Something went wrong. Please try again later."
}

// isUserError reports whether err was caused by the request rather than by
// the system.
func isUserError(err error) bool {
	var u usageError
	if errors.As(err, &u) {
		return true
	}
	for _, candidate := range userErrors {
		if errors.Is(err, candidate.err) {
			return !errors.Is(err, ingest.ErrDownloadFailed) && !errors.Is(err, catalogue.ErrAssetMissing)
		}
	}
	return false
}
