package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"memebox/internal/bot"
	"memebox/internal/ingest"
	"memebox/internal/logging"
)

var allowedUpdates = []string{"message", "callback_query", "inline_query"}

// Updates starts long polling. The returned channel closes once ctx is
// cancelled and the in-flight poll returns. GetUpdates takes no context, so
// that can lag cancellation by up to the poll timeout; callers should stop
// reading on ctx.Done rather than wait for the close.
func (c *Client) Updates(ctx context.Context) (<-chan bot.Event, error) {
	out := make(chan bot.Event)
	go c.poll(ctx, out)
	return out, nil
}

func (c *Client) poll(ctx context.Context, out chan<- bot.Event) {
	defer close(out)

	req := tgbotapi.NewUpdate(0)
	req.Timeout = int(c.pollTimeout / time.Second)
	req.AllowedUpdates = allowedUpdates

	backoff := c.minBackoff
	for ctx.Err() == nil {
		updates, err := c.api.GetUpdates(req)
		if err != nil {
			logging.WarnWithContext(c.logger, "telegram polling failed", "poll_failed",
				logging.Error(err),
				logging.Duration("retry_in", backoff),
				logging.String(logging.FieldErrorHint, "check network access and the bot token"),
				logging.String(logging.FieldImpact, "new messages are delayed until polling recovers"),
			)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = c.minBackoff

		for _, u := range updates {
			if u.UpdateID >= req.Offset {
				req.Offset = u.UpdateID + 1
			}
			ev, ok := c.toEvent(u)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// toEvent converts an update. Updates the bot does not act on yield false.
func (c *Client) toEvent(u tgbotapi.Update) (bot.Event, bool) {
	switch {
	case u.Message != nil:
		return c.messageEvent(u.Message)
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		ev := bot.Event{
			Kind:       bot.EventCallback,
			From:       user(q.From),
			CallbackID: q.ID,
			Data:       q.Data,
		}
		if q.Message != nil {
			ev.MessageID = q.Message.MessageID
			if q.Message.Chat != nil {
				ev.Chat = q.Message.Chat.ID
			}
		}
		return ev, true
	case u.InlineQuery != nil:
		return bot.Event{
			Kind:     bot.EventInline,
			From:     user(u.InlineQuery.From),
			InlineID: u.InlineQuery.ID,
			Query:    u.InlineQuery.Query,
		}, true
	}
	return bot.Event{}, false
}

func (c *Client) messageEvent(m *tgbotapi.Message) (bot.Event, bool) {
	if m.Chat == nil {
		return bot.Event{}, false
	}
	ev := bot.Event{
		From:      user(m.From),
		Chat:      m.Chat.ID,
		MessageID: m.MessageID,
	}
	if m.ReplyToMessage != nil {
		ev.ReplyTo = m.ReplyToMessage.MessageID
	}

	if m.IsCommand() {
		if _, target, addressed := strings.Cut(m.CommandWithAt(), "@"); addressed && !strings.EqualFold(target, c.botName) {
			return bot.Event{}, false
		}
		ev.Kind = bot.EventCommand
		ev.Command = m.Command()
		ev.Args = strings.TrimSpace(m.CommandArguments())
		return ev, true
	}

	if up := upload(m); up != nil && ev.ReplyTo != 0 {
		ev.Kind = bot.EventAudio
		ev.Upload = up
		return ev, true
	}
	return bot.Event{}, false
}

// upload extracts an audio attachment. Documents count when their MIME type
// says they carry audio or video.
func upload(m *tgbotapi.Message) *ingest.Upload {
	switch {
	case m.Voice != nil:
		return &ingest.Upload{FileID: m.Voice.FileID, FileName: "voice.ogg", MimeType: m.Voice.MimeType}
	case m.Audio != nil:
		return &ingest.Upload{FileID: m.Audio.FileID, FileName: m.Audio.FileName, MimeType: m.Audio.MimeType}
	case m.Document != nil:
		mime := strings.ToLower(m.Document.MimeType)
		if strings.HasPrefix(mime, "audio/") || strings.HasPrefix(mime, "video/") {
			return &ingest.Upload{FileID: m.Document.FileID, FileName: m.Document.FileName, MimeType: m.Document.MimeType}
		}
	}
	return nil
}

func user(u *tgbotapi.User) bot.User {
	if u == nil {
		return bot.User{}
	}
	name := u.UserName
	if name == "" {
		name = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return bot.User{ID: u.ID, Name: name}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
