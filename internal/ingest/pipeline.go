package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"memebox/internal/assetstore"
	"memebox/internal/catalogue"
	"memebox/internal/history"
	"memebox/internal/logging"
	"memebox/internal/notifications"
	"memebox/internal/textutil"
)

const defaultAwaitTimeout = 5 * time.Minute

// Registry is the catalogue surface the pipeline mutates.
type Registry interface {
	Snapshot() catalogue.Catalogue
	Put(ctx context.Context, e catalogue.Entry) error
	Replace(ctx context.Context, e catalogue.Entry) (catalogue.AssetRef, error)
}

// Transcoder converts an input file into a voice asset at output.
type Transcoder interface {
	Transcode(ctx context.Context, input, output string) error
}

// Downloader resolves a platform file reference to its bytes.
type Downloader interface {
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Recorder persists state transitions. *history.Store satisfies it.
type Recorder interface {
	Start(ctx context.Context, a history.Attempt) error
	Transition(ctx context.Context, id string, status history.Status, asset, detail string) error
}

// Request asks for a key to be ingested.
type Request struct {
	Category     string
	Key          string
	Replace      bool
	Requester    string
	Conversation string
	Source       history.Source
}

// Ticket is a reserved ingestion. It is returned by Reserve and handed back
// through a subscription when the audio arrives.
type Ticket struct {
	ID           string
	Category     string
	Key          catalogue.Key
	Replace      bool
	Requester    string
	Conversation string
	Source       history.Source
}

// Upload is an inbound audio attachment.
type Upload struct {
	FileID   string
	FileName string
	MimeType string
}

// Options configures a Pipeline. Recorder, Notifier and Downloader are
// optional; without a Downloader only IngestFile works.
type Options struct {
	Registry     Registry
	Store        *assetstore.Store
	Transcoder   Transcoder
	Downloader   Downloader
	Recorder     Recorder
	Notifier     notifications.Service
	AwaitTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Pipeline drives ingestion requests from reservation to registration.
type Pipeline struct {
	registry   Registry
	store      *assetstore.Store
	transcoder Transcoder
	downloader Downloader
	recorder   Recorder
	notifier   notifications.Service
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time

	subs *Subscriptions

	mu       sync.Mutex
	reserved map[scope]string
}

type scope struct {
	category string
	key      catalogue.Key
}

// New constructs a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Registry == nil {
		return nil, errors.New("ingest requires a registry")
	}
	if opts.Store == nil {
		return nil, errors.New("ingest requires an asset store")
	}
	if opts.Transcoder == nil {
		return nil, errors.New("ingest requires a transcoder")
	}
	p := &Pipeline{
		registry:   opts.Registry,
		store:      opts.Store,
		transcoder: opts.Transcoder,
		downloader: opts.Downloader,
		recorder:   opts.Recorder,
		notifier:   opts.Notifier,
		timeout:    opts.AwaitTimeout,
		logger:     logging.NewComponentLogger(opts.Logger, "ingest"),
		now:        opts.Now,
		subs:       NewSubscriptions(),
		reserved:   make(map[scope]string),
	}
	if p.timeout <= 0 {
		p.timeout = defaultAwaitTimeout
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.notifier == nil {
		p.notifier = notifications.NewService(nil)
	}
	return p, nil
}

// AwaitTimeout returns how long a prompt waits for its audio reply.
func (p *Pipeline) AwaitTimeout() time.Duration {
	return p.timeout
}

// Reserve validates req and holds its key until the ingestion finishes,
// fails, expires or is cancelled. A key already in the catalogue is rejected
// with catalogue.ErrKeyExists unless req.Replace is set, in which case it
// must exist.
func (p *Pipeline) Reserve(ctx context.Context, req Request) (Ticket, error) {
	key, err := catalogue.ParseKey(req.Key)
	if err != nil {
		return Ticket{}, err
	}
	category, err := catalogue.ParseCategory(req.Category)
	if err != nil {
		return Ticket{}, err
	}
	if !catalogue.PayloadFits(category, key) {
		return Ticket{}, fmt.Errorf("%w: %q is too long for menu buttons", catalogue.ErrInvalidKey, key)
	}

	_, exists := p.registry.Snapshot().LookupIn(category, key)
	switch {
	case exists && !req.Replace:
		return Ticket{}, fmt.Errorf("%w: %q", catalogue.ErrKeyExists, key)
	case !exists && req.Replace:
		return Ticket{}, fmt.Errorf("%w: %q", catalogue.ErrKeyNotFound, key)
	}

	source := req.Source
	if source == "" {
		source = history.SourceChat
	}
	t := Ticket{
		ID:           uuid.NewString(),
		Category:     category,
		Key:          key,
		Replace:      req.Replace,
		Requester:    req.Requester,
		Conversation: req.Conversation,
		Source:       source,
	}

	p.mu.Lock()
	if _, held := p.reserved[scope{category, key}]; held {
		p.mu.Unlock()
		return Ticket{}, fmt.Errorf("%w: %q", ErrKeyReserved, key)
	}
	p.reserved[scope{category, key}] = t.ID
	p.mu.Unlock()

	p.record(ctx, func(ctx context.Context) error {
		return p.recorder.Start(ctx, history.Attempt{
			ID:           t.ID,
			Key:          string(t.Key),
			Category:     t.Category,
			Requester:    t.Requester,
			Conversation: t.Conversation,
			Source:       t.Source,
			Replace:      t.Replace,
			Status:       history.StatusAwaitingUpload,
		})
	})
	p.logger.Info("ingestion reserved",
		logging.String(logging.FieldIngestID, t.ID),
		logging.String(logging.FieldCategory, t.Category),
		logging.String(logging.FieldMemeKey, string(t.Key)),
		logging.String(logging.FieldRequester, t.Requester),
		logging.Bool("replace", t.Replace),
	)
	return t, nil
}

// Await subscribes t to the next audio reply matching key. If nothing arrives
// within the pipeline's timeout the reservation is released and onExpire
// runs with the ticket.
func (p *Pipeline) Await(t Ticket, key SubscriptionKey, onExpire func(Ticket)) error {
	err := p.subs.Add(key, t, p.timeout, func(expired Ticket) {
		p.expire(expired)
		if onExpire != nil {
			onExpire(expired)
		}
	})
	if err != nil {
		p.Abandon(context.Background(), t, err.Error())
		return err
	}
	return nil
}

// Waiting reports whether the requester already has a prompt pending in
// conversation.
func (p *Pipeline) Waiting(requester, conversation int64) bool {
	return p.subs.Waiting(requester, conversation)
}

// Pending returns the number of ingestions waiting for audio.
func (p *Pipeline) Pending() int {
	return p.subs.Len()
}

// Deliver hands an audio reply to the subscription registered under key.
// The boolean is false when no subscription matched, in which case the reply
// is not for the pipeline. Otherwise the ingestion runs to completion.
func (p *Pipeline) Deliver(ctx context.Context, key SubscriptionKey, up Upload) (catalogue.Entry, bool, error) {
	t, ok := p.subs.Take(key)
	if !ok {
		return catalogue.Entry{}, false, nil
	}
	if p.downloader == nil {
		err := fmt.Errorf("%w: no downloader configured", ErrDownloadFailed)
		p.release(t)
		p.fail(ctx, t, err)
		return catalogue.Entry{}, true, err
	}
	open := func(ctx context.Context) (io.ReadCloser, error) {
		return p.downloader.Download(ctx, up.FileID)
	}
	entry, err := p.run(ctx, t, open, uploadSuffix(up))
	return entry, true, err
}

// Cancel drops the requester's pending ingestion in conversation.
func (p *Pipeline) Cancel(ctx context.Context, requester, conversation int64) (Ticket, bool) {
	t, ok := p.subs.TakeFor(requester, conversation)
	if !ok {
		return Ticket{}, false
	}
	p.Abandon(ctx, t, "cancelled by requester")
	return t, true
}

// IngestFile runs the whole pipeline for a local audio file.
func (p *Pipeline) IngestFile(ctx context.Context, req Request, path string) (catalogue.Entry, error) {
	if req.Source == "" {
		req.Source = history.SourceCLI
	}
	t, err := p.Reserve(ctx, req)
	if err != nil {
		return catalogue.Entry{}, err
	}
	open := func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	}
	return p.run(ctx, t, open, filepath.Ext(path))
}

// Close drops every pending subscription and releases its reservation.
func (p *Pipeline) Close() {
	for _, t := range p.subs.Close() {
		p.Abandon(context.Background(), t, "shutting down")
	}
}

func (p *Pipeline) run(ctx context.Context, t Ticket, open func(context.Context) (io.ReadCloser, error), suffix string) (catalogue.Entry, error) {
	defer p.release(t)
	ctx = logging.WithIngestID(ctx, t.ID)
	logger := logging.WithContext(ctx, p.logger).With(logging.Args(logging.Meme(t.Category, string(t.Key))...)...)
	started := time.Now()

	p.transition(ctx, t, history.StatusDownloading, "", "")
	tmp, err := p.download(ctx, open, suffix)
	if err != nil {
		p.fail(ctx, t, err)
		return catalogue.Entry{}, err
	}
	defer func() {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove ingestion temp file", logging.String("path", tmp), logging.Error(err))
		}
	}()

	p.transition(ctx, t, history.StatusTranscoding, "", "")
	ref := p.assetName(t.Key)
	if err := p.transcoder.Transcode(ctx, tmp, p.store.Path(ref)); err != nil {
		p.fail(ctx, t, err)
		return catalogue.Entry{}, err
	}

	p.transition(ctx, t, history.StatusRegistering, string(ref), "")
	entry := catalogue.Entry{Category: t.Category, Key: t.Key, Asset: ref}
	if err := p.register(ctx, t, entry); err != nil {
		if rmErr := p.store.Remove(ref); rmErr != nil {
			logger.Warn("failed to remove unregistered asset", logging.String("asset", string(ref)), logging.Error(rmErr))
		}
		p.fail(ctx, t, err)
		return catalogue.Entry{}, err
	}

	p.transition(ctx, t, history.StatusDone, string(ref), "")
	logger.Info("ingestion complete",
		logging.String(logging.FieldEventType, "ingest_done"),
		logging.String("asset", string(ref)),
		logging.Duration("elapsed", time.Since(started)),
	)
	p.publish(ctx, notifications.EventIngestionCompleted, notifications.Payload{
		"key":       string(t.Key),
		"category":  t.Category,
		"requester": t.Requester,
	})
	return entry, nil
}

func (p *Pipeline) download(ctx context.Context, open func(context.Context) (io.ReadCloser, error), suffix string) (string, error) {
	src, err := open(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer src.Close()

	dst, err := p.store.CreateTemp(suffix)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	name := dst.Name()
	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	return name, nil
}

func (p *Pipeline) register(ctx context.Context, t Ticket, entry catalogue.Entry) error {
	if !t.Replace {
		return p.registry.Put(ctx, entry)
	}
	previous, err := p.registry.Replace(ctx, entry)
	if err != nil {
		return err
	}
	if previous != "" && previous != entry.Asset && !p.registry.Snapshot().ReferencesAsset(previous) {
		if err := p.store.Remove(previous); err != nil {
			p.logger.Warn("failed to remove replaced asset",
				logging.String("asset", string(previous)),
				logging.Error(err),
			)
		}
	}
	return nil
}

// assetName derives a file name from key and the current time, bumping a
// counter when a file with that name already exists.
func (p *Pipeline) assetName(key catalogue.Key) catalogue.AssetRef {
	base := fmt.Sprintf("%s_%d", textutil.SanitizeToken(string(key)), p.now().Unix())
	ref := catalogue.AssetRef(base + ".ogg")
	for i := 2; p.store.Exists(ref); i++ {
		ref = catalogue.AssetRef(fmt.Sprintf("%s_%d.ogg", base, i))
	}
	return ref
}

func (p *Pipeline) expire(t Ticket) {
	ctx := logging.WithIngestID(context.Background(), t.ID)
	p.release(t)
	p.transition(ctx, t, history.StatusExpired, "", ErrIngestionTimeout.Error())
	p.logger.Info("ingestion expired",
		logging.String(logging.FieldIngestID, t.ID),
		logging.String(logging.FieldMemeKey, string(t.Key)),
		logging.Duration("timeout", p.timeout),
	)
	p.publish(ctx, notifications.EventIngestionExpired, notifications.Payload{"key": string(t.Key)})
}

// Abandon releases a reserved ticket that will not be delivered, for example
// because the prompt asking for audio could not be sent.
func (p *Pipeline) Abandon(ctx context.Context, t Ticket, reason string) {
	p.release(t)
	p.transition(ctx, t, history.StatusFailed, "", reason)
	p.logger.Info("ingestion abandoned",
		logging.String(logging.FieldIngestID, t.ID),
		logging.String(logging.FieldMemeKey, string(t.Key)),
		logging.String("reason", reason),
	)
}

func (p *Pipeline) fail(ctx context.Context, t Ticket, err error) {
	p.transition(ctx, t, history.StatusFailed, "", err.Error())
	logging.WarnWithContext(logging.WithContext(ctx, p.logger), "ingestion failed", "ingest_failed",
		logging.String(logging.FieldCategory, t.Category),
		logging.String(logging.FieldMemeKey, string(t.Key)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, failureHint(err)),
		logging.String(logging.FieldImpact, "meme was not added"),
	)
	p.publish(ctx, notifications.EventIngestionFailed, notifications.Payload{
		"key":   string(t.Key),
		"error": err,
	})
}

func (p *Pipeline) release(t Ticket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := scope{t.Category, t.Key}
	if p.reserved[s] == t.ID {
		delete(p.reserved, s)
	}
}

func (p *Pipeline) transition(ctx context.Context, t Ticket, status history.Status, asset, detail string) {
	p.record(ctx, func(ctx context.Context) error {
		return p.recorder.Transition(ctx, t.ID, status, asset, detail)
	})
}

func (p *Pipeline) record(ctx context.Context, fn func(context.Context) error) {
	if p.recorder == nil {
		return
	}
	// History must not block or cancel the ingestion it describes.
	ctx = context.WithoutCancel(ctx)
	if err := fn(ctx); err != nil {
		p.logger.Warn("failed to record ingestion history", logging.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := p.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		p.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, ErrDownloadFailed):
		return "check platform connectivity and file size limits"
	case errors.Is(err, catalogue.ErrKeyExists):
		return "choose a different key or use replace"
	default:
		return "check ffmpeg output in the error field"
	}
}

func uploadSuffix(up Upload) string {
	if ext := filepath.Ext(up.FileName); ext != "" && !strings.ContainsAny(ext, `/\`) {
		return ext
	}
	switch {
	case strings.Contains(up.MimeType, "ogg"):
		return ".oga"
	case strings.Contains(up.MimeType, "mpeg"):
		return ".mp3"
	default:
		return ".upload"
	}
}
