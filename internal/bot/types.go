package bot

import (
	"context"
	"io"

	"memebox/internal/ingest"
)

// EventKind classifies inbound platform events.
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventCallback
	EventInline
	EventAudio
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventCallback:
		return "callback"
	case EventInline:
		return "inline"
	case EventAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// User is the platform account behind an event.
type User struct {
	ID   int64
	Name string
}

// Event is a platform-neutral inbound event. Which fields are set depends on
// Kind.
type Event struct {
	Kind      EventKind
	From      User
	Chat      int64
	MessageID int
	ReplyTo   int

	// EventCommand
	Command string
	Args    string

	// EventCallback
	CallbackID string
	Data       string

	// EventInline
	InlineID string
	Query    string

	// EventAudio
	Upload *ingest.Upload
}

// Button is one keyboard button. Exactly one of Data and SwitchInline is set.
type Button struct {
	Text         string
	Data         string
	SwitchInline string
}

// Keyboard is a grid of buttons, one slice per row.
type Keyboard [][]Button

// InlineKind selects how an inline result is rendered.
type InlineKind int

const (
	InlineVoice InlineKind = iota + 1
	InlineArticle
)

// InlineResult is one entry of an inline query answer.
type InlineResult struct {
	Kind        InlineKind
	ID          string
	Title       string
	Description string
	URL         string
	Text        string
	Keyboard    Keyboard
}

// Messenger sends outbound messages to the platform.
type Messenger interface {
	SendText(ctx context.Context, chat int64, text string) (int, error)
	SendPrompt(ctx context.Context, chat int64, replyTo int, text string) (int, error)
	SendMenu(ctx context.Context, chat int64, text string, kb Keyboard) (int, error)
	EditMenu(ctx context.Context, chat int64, messageID int, text string, kb Keyboard) error
	SendVoice(ctx context.Context, chat int64, name string, r io.Reader) error
	AnswerInline(ctx context.Context, queryID string, results []InlineResult, cacheSeconds int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Source delivers inbound events until ctx is cancelled, then closes the
// channel.
type Source interface {
	Updates(ctx context.Context) (<-chan Event, error)
}
