package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"memebox/internal/callback"
	"memebox/internal/catalogue"
	"memebox/internal/ingest"
	"memebox/internal/logging"
	"memebox/internal/lookup"
)

const (
	defaultInlineCache = 10
	// expiryNoticeTimeout bounds the message sent when a prompt expires,
	// which runs after the triggering event has finished.
	expiryNoticeTimeout = 30 * time.Second
)

// Registry is the catalogue surface commands need beyond lookups.
type Registry interface {
	Snapshot() catalogue.Catalogue
	Rename(ctx context.Context, category string, from, to catalogue.Key) error
}

// AssetOpener streams asset bytes for voice uploads.
type AssetOpener interface {
	Open(ref catalogue.AssetRef) (io.ReadCloser, error)
}

// Options configures a Dispatcher.
type Options struct {
	Messenger          Messenger
	Lookup             *lookup.Engine
	Pipeline           *ingest.Pipeline
	Registry           Registry
	Assets             AssetOpener
	BotName            string
	InlineCacheSeconds int
	Logger             *slog.Logger
}

type (
	commandHandler  func(ctx context.Context, ev Event) error
	callbackHandler func(ctx context.Context, ev Event, p callback.Payload) error
)

// Dispatcher routes each inbound event to exactly one handler. Audio replies
// are offered to pending ingestions first; commands and callbacks are looked
// up in fixed tables keyed by command name and payload tag.
type Dispatcher struct {
	messenger   Messenger
	lookup      *lookup.Engine
	pipeline    *ingest.Pipeline
	registry    Registry
	assets      AssetOpener
	botName     string
	inlineCache int
	logger      *slog.Logger

	commands  map[string]commandHandler
	callbacks map[callback.Tag]callbackHandler

	wg sync.WaitGroup
}

// New constructs a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	switch {
	case opts.Messenger == nil:
		return nil, errors.New("dispatcher requires a messenger")
	case opts.Lookup == nil:
		return nil, errors.New("dispatcher requires a lookup engine")
	case opts.Pipeline == nil:
		return nil, errors.New("dispatcher requires an ingestion pipeline")
	case opts.Registry == nil:
		return nil, errors.New("dispatcher requires a registry")
	case opts.Assets == nil:
		return nil, errors.New("dispatcher requires an asset opener")
	}
	d := &Dispatcher{
		messenger:   opts.Messenger,
		lookup:      opts.Lookup,
		pipeline:    opts.Pipeline,
		registry:    opts.Registry,
		assets:      opts.Assets,
		botName:     strings.TrimPrefix(strings.TrimSpace(opts.BotName), "@"),
		inlineCache: opts.InlineCacheSeconds,
		logger:      logging.NewComponentLogger(opts.Logger, "dispatcher"),
	}
	if d.inlineCache <= 0 {
		d.inlineCache = defaultInlineCache
	}
	d.commands = map[string]commandHandler{
		"start":   d.handleStart,
		"help":    d.handleStart,
		"list":    d.handleList,
		"play":    d.handlePlay,
		"menu":    d.handleMenu,
		"add":     d.handleAdd,
		"replace": d.handleReplace,
		"rename":  d.handleRename,
		"cancel":  d.handleCancel,
	}
	d.callbacks = map[callback.Tag]callbackHandler{
		callback.TagMenu:     d.handleMenuCallback,
		callback.TagCategory: d.handleCategoryCallback,
		callback.TagPage:     d.handlePageCallback,
		callback.TagMeme:     d.handleMemeCallback,
	}
	return d, nil
}

// Run consumes events from src until ctx is cancelled or the source closes.
// Each event is handled in its own goroutine; Run waits for in-flight
// handlers before returning.
func (d *Dispatcher) Run(ctx context.Context, src Source) error {
	updates, err := src.Updates(ctx)
	if err != nil {
		return fmt.Errorf("open update stream: %w", err)
	}
	defer d.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-updates:
			if !ok {
				return nil
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.Handle(ctx, ev)
			}()
		}
	}
}

// Handle processes a single event. Errors are reported to the requester and
// logged; a panicking handler is recovered so the process keeps serving.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) {
	logger := d.logger.With(
		logging.String("event", ev.Kind.String()),
		logging.Int64(logging.FieldRequester, ev.From.ID),
		logging.Int64(logging.FieldConversation, ev.Chat),
	)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "event handler panicked", "handler_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report the stack trace"),
			)
		}
	}()

	var err error
	switch ev.Kind {
	case EventAudio:
		err = d.handleAudio(ctx, ev)
	case EventCommand:
		handler, ok := d.commands[strings.ToLower(ev.Command)]
		if !ok {
			return
		}
		err = handler(ctx, ev)
	case EventCallback:
		err = d.dispatchCallback(ctx, ev)
	case EventInline:
		err = d.handleInline(ctx, ev)
	default:
		return
	}
	if err != nil {
		d.report(ctx, logger, ev, err)
	}
}

func (d *Dispatcher) dispatchCallback(ctx context.Context, ev Event) error {
	payload, err := callback.Decode(ev.Data)
	if err != nil {
		return err
	}
	return d.callbacks[payload.Tag](ctx, ev, payload)
}

// report turns a handler error into a message for the requester.
func (d *Dispatcher) report(ctx context.Context, logger *slog.Logger, ev Event, err error) {
	msg := userMessage(err)
	if isUserError(err) {
		logger.Info("request rejected", logging.Error(err))
	} else {
		logging.WarnWithContext(logger, "event handling failed", "event_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "requester saw an error message"),
		)
	}

	var sendErr error
	switch {
	case ev.Kind == EventCallback:
		sendErr = d.messenger.AnswerCallback(ctx, ev.CallbackID, msg)
	case ev.Kind == EventInline:
		// Inline queries have no conversation to reply into.
	case ev.Chat != 0:
		_, sendErr = d.messenger.SendText(ctx, ev.Chat, msg)
	}
	if sendErr != nil {
		logger.Warn("failed to deliver error message", logging.Error(sendErr))
	}
}

func (d *Dispatcher) sendVoice(ctx context.Context, chat int64, asset lookup.Asset) error {
	rc, err := d.assets.Open(asset.Ref)
	if err != nil {
		return fmt.Errorf("%w: %w", catalogue.ErrAssetMissing, err)
	}
	defer rc.Close()
	if err := d.messenger.SendVoice(ctx, chat, string(asset.Ref), rc); err != nil {
		return fmt.Errorf("send voice: %w", err)
	}
	d.logger.Info("meme played",
		logging.String(logging.FieldEventType, "meme_played"),
		logging.String(logging.FieldCategory, asset.Category),
		logging.String(logging.FieldMemeKey, string(asset.Key)),
		logging.Int64(logging.FieldConversation, chat),
	)
	return nil
}
