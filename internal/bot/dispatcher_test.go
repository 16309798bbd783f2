package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"memebox/internal/assetstore"
	"memebox/internal/catalogue"
	"memebox/internal/ingest"
	"memebox/internal/logging"
	"memebox/internal/lookup"
	"memebox/internal/transcode"
)

type sentText struct {
	chat int64
	text string
}

type sentMenu struct {
	chat      int64
	messageID int
	text      string
	kb        Keyboard
}

type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	texts     []sentText
	prompts   []sentText
	menus     []sentMenu
	edits     []sentMenu
	voices    []string
	inline    [][]InlineResult
	callbacks []string
	panicOn   string
}

func (m *fakeMessenger) id() int {
	m.nextID++
	return 1000 + m.nextID
}

func (m *fakeMessenger) SendText(_ context.Context, chat int64, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn != "" && strings.Contains(text, m.panicOn) {
		panic("messenger exploded")
	}
	m.texts = append(m.texts, sentText{chat, text})
	return m.id(), nil
}

func (m *fakeMessenger) SendPrompt(_ context.Context, chat int64, _ int, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, sentText{chat, text})
	return m.id(), nil
}

func (m *fakeMessenger) SendMenu(_ context.Context, chat int64, text string, kb Keyboard) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.menus = append(m.menus, sentMenu{chat: chat, text: text, kb: kb})
	return m.id(), nil
}

func (m *fakeMessenger) EditMenu(_ context.Context, chat int64, messageID int, text string, kb Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, sentMenu{chat: chat, messageID: messageID, text: text, kb: kb})
	return nil
}

func (m *fakeMessenger) SendVoice(_ context.Context, _ int64, name string, r io.Reader) error {
	if _, err := io.ReadAll(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voices = append(m.voices, name)
	return nil
}

func (m *fakeMessenger) AnswerInline(_ context.Context, _ string, results []InlineResult, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inline = append(m.inline, results)
	return nil
}

func (m *fakeMessenger) AnswerCallback(_ context.Context, _ string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, text)
	return nil
}

func (m *fakeMessenger) lastText(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		t.Fatal("no text sent")
	}
	return m.texts[len(m.texts)-1].text
}

type copyTranscoder struct{}

func (copyTranscoder) Transcode(_ context.Context, input, output string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("%w: %w", transcode.ErrTranscodeFailed, err)
	}
	return os.WriteFile(output, data, 0o644)
}

type mapDownloader map[string]string

func (d mapDownloader) Download(_ context.Context, fileID string) (io.ReadCloser, error) {
	data, ok := d[fileID]
	if !ok {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

type fixture struct {
	dispatcher *Dispatcher
	messenger  *fakeMessenger
	registry   *catalogue.Registry
	store      *assetstore.Store
}

func newFixture(t *testing.T, catalogueJSON string, files ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := assetstore.Open(filepath.Join(dir, "memes"), logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range files {
		if err := store.Write(catalogue.AssetRef(name), bytes.NewReader([]byte("OggS"))); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(dir, "memes.json")
	if catalogueJSON != "" {
		if err := os.WriteFile(path, []byte(catalogueJSON), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	registry, err := catalogue.Open(path, store, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	engine, err := lookup.New(lookup.Options{
		Registry: registry,
		Assets:   store,
		BaseURL:  "https://memes.example.com",
		PageSize: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	pipeline, err := ingest.New(ingest.Options{
		Registry:   registry,
		Store:      store,
		Transcoder: copyTranscoder{},
		Downloader: mapDownloader{"voice-1": "OggS upload"},
		Logger:     logging.NewNop(),
		Now:        func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pipeline.Close)

	messenger := &fakeMessenger{}
	d, err := New(Options{
		Messenger: messenger,
		Lookup:    engine,
		Pipeline:  pipeline,
		Registry:  registry,
		Assets:    store,
		BotName:   "@MemeBot",
		Logger:    logging.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{dispatcher: d, messenger: messenger, registry: registry, store: store}
}

func command(name, args string) Event {
	return Event{Kind: EventCommand, From: User{ID: 1, Name: "alice"}, Chat: 10, MessageID: 5, Command: name, Args: args}
}

func TestPlayCommandSendsVoice(t *testing.T) {
	f := newFixture(t, `{"airhorn": "airhorn_123.ogg"}`, "airhorn_123.ogg")
	f.dispatcher.Handle(context.Background(), command("play", "airhorn"))
	if len(f.messenger.voices) != 1 || f.messenger.voices[0] != "airhorn_123.ogg" {
		t.Fatalf("expected voice to be sent, got %v", f.messenger.voices)
	}
}

func TestPlayCommandReportsMissingAndUnknown(t *testing.T) {
	f := newFixture(t, `{"airhorn": "airhorn_123.ogg"}`)

	f.dispatcher.Handle(context.Background(), command("play", "airhorn"))
	if got := f.messenger.lastText(t); !strings.Contains(got, "missing") {
		t.Fatalf("expected missing-file message, got %q", got)
	}
	f.dispatcher.Handle(context.Background(), command("play", "foghorn"))
	if got := f.messenger.lastText(t); !strings.Contains(got, "not found") {
		t.Fatalf("expected not-found message, got %q", got)
	}
	f.dispatcher.Handle(context.Background(), command("play", ""))
	if got := f.messenger.lastText(t); !strings.HasPrefix(got, "Usage") {
		t.Fatalf("expected usage, got %q", got)
	}
	if len(f.messenger.voices) != 0 {
		t.Fatal("no voice should be sent")
	}
}

func TestPlayCommandWithCategory(t *testing.T) {
	f := newFixture(t, `{"sfx": {"boing": "a.ogg"}, "music": {"boing": "b.ogg"}}`, "a.ogg", "b.ogg")
	f.dispatcher.Handle(context.Background(), command("play", "music boing"))
	if len(f.messenger.voices) != 1 || f.messenger.voices[0] != "b.ogg" {
		t.Fatalf("expected music/boing, got %v", f.messenger.voices)
	}
}

func TestListCommand(t *testing.T) {
	f := newFixture(t, `{"laugh": "l.ogg", "sfx": {"boing": "b.ogg", "laugh": "l2.ogg"}}`)
	f.dispatcher.Handle(context.Background(), command("list", ""))
	want := "🎤 Available memes:\n/play laugh\n/play boing"
	if got := f.messenger.lastText(t); got != want {
		t.Fatalf("unexpected list %q", got)
	}

	empty := newFixture(t, "")
	empty.dispatcher.Handle(context.Background(), command("list", ""))
	if got := empty.messenger.lastText(t); got != "No memes yet." {
		t.Fatalf("unexpected empty list %q", got)
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	f := newFixture(t, "")
	f.dispatcher.Handle(context.Background(), command("weather", ""))
	if len(f.messenger.texts) != 0 {
		t.Fatalf("unexpected reply %v", f.messenger.texts)
	}
}

func TestStartMentionsBotName(t *testing.T) {
	f := newFixture(t, "")
	f.dispatcher.Handle(context.Background(), command("start", ""))
	if got := f.messenger.lastText(t); !strings.Contains(got, "@MemeBot menu") {
		t.Fatalf("unexpected greeting %q", got)
	}
}

func TestMenuNavigation(t *testing.T) {
	f := newFixture(t, `{"sfx": {"boing": "b.ogg", "air_horn": "a.ogg", "zap": "z.ogg"}, "music": {"drum": "d.ogg"}}`, "b.ogg", "a.ogg")
	ctx := context.Background()

	f.dispatcher.Handle(ctx, command("menu", ""))
	if len(f.messenger.menus) != 1 {
		t.Fatal("expected a menu")
	}
	first := f.messenger.menus[0].kb
	if len(first) != 2 || first[0][0].Data != "category_sfx" || first[1][0].Data != "category_music" {
		t.Fatalf("unexpected first menu %#v", first)
	}

	press := Event{Kind: EventCallback, From: User{ID: 1}, Chat: 10, MessageID: 77, CallbackID: "cb", Data: "category_sfx"}
	f.dispatcher.Handle(ctx, press)
	if len(f.messenger.edits) != 1 {
		t.Fatal("expected menu to be edited")
	}
	edit := f.messenger.edits[0]
	if edit.messageID != 77 || edit.kb[0][0].Data != "meme_sfx_boing" || edit.kb[1][0].Data != "meme_sfx_air_horn" {
		t.Fatalf("unexpected key menu %#v", edit)
	}
	nav := edit.kb[len(edit.kb)-1]
	if nav[len(nav)-1].Data != "page_sfx_1" {
		t.Fatalf("expected next page button, got %#v", nav)
	}

	press.Data = "meme_sfx_air_horn"
	f.dispatcher.Handle(ctx, press)
	if len(f.messenger.voices) != 1 || f.messenger.voices[0] != "a.ogg" {
		t.Fatalf("expected air_horn to play, got %v", f.messenger.voices)
	}

	press.Data = "page_sfx_1"
	f.dispatcher.Handle(ctx, press)
	if last := f.messenger.edits[len(f.messenger.edits)-1]; last.kb[0][0].Data != "meme_sfx_zap" {
		t.Fatalf("unexpected second page %#v", last)
	}

	press.Data = "menu"
	f.dispatcher.Handle(ctx, press)
	if last := f.messenger.edits[len(f.messenger.edits)-1]; last.kb[0][0].Data != "category_sfx" {
		t.Fatalf("expected categories again, got %#v", last)
	}
}

func TestFlatMenuIsPaged(t *testing.T) {
	var raw strings.Builder
	raw.WriteString("{")
	for i := range 150 {
		if i > 0 {
			raw.WriteString(",")
		}
		fmt.Fprintf(&raw, `"k%03d": "k%03d.ogg"`, i, i)
	}
	raw.WriteString("}")
	f := newFixture(t, raw.String())
	ctx := context.Background()

	f.dispatcher.Handle(ctx, command("menu", ""))
	if len(f.messenger.menus) != 1 {
		t.Fatal("expected a menu")
	}
	menu := f.messenger.menus[0]
	if len(menu.kb) != 3 || menu.kb[0][0].Data != "meme__k000" {
		t.Fatalf("expected two keys and a nav row, got %#v", menu.kb)
	}
	if menu.text != "📂 Memes (1/75)" {
		t.Fatalf("unexpected title %q", menu.text)
	}
	nav := menu.kb[len(menu.kb)-1]
	if nav[len(nav)-1].Data != "page__1" {
		t.Fatalf("expected next page button, got %#v", nav)
	}

	press := Event{Kind: EventCallback, From: User{ID: 1}, Chat: 10, MessageID: 77, CallbackID: "cb", Data: "page__74"}
	f.dispatcher.Handle(ctx, press)
	last := f.messenger.edits[len(f.messenger.edits)-1]
	if last.kb[0][0].Data != "meme__k148" || last.text != "📂 Memes (75/75)" {
		t.Fatalf("unexpected last page %q %#v", last.text, last.kb)
	}
}

func TestMenuTitle(t *testing.T) {
	nested := lookup.Menu{Options: []lookup.Option{{Kind: lookup.OptionCategory, Label: "sfx", Category: "sfx"}}, Pages: 1}
	if got := menuTitle(nested); got != "📂 Choose a category" {
		t.Fatalf("unexpected nested title %q", got)
	}
	flat := lookup.Menu{Options: []lookup.Option{{Kind: lookup.OptionMeme, Label: "a", Key: "a"}}, Pages: 1}
	if got := menuTitle(flat); got != "📂 Memes" {
		t.Fatalf("unexpected flat title %q", got)
	}
	category := lookup.Menu{Category: "sfx", Page: 1, Pages: 3}
	if got := menuTitle(category); got != "📂 sfx (2/3)" {
		t.Fatalf("unexpected category title %q", got)
	}
}

func TestMalformedCallbackAnswered(t *testing.T) {
	f := newFixture(t, "")
	f.dispatcher.Handle(context.Background(), Event{Kind: EventCallback, Chat: 10, CallbackID: "cb", Data: "garbage"})
	if len(f.messenger.callbacks) != 1 || !strings.Contains(f.messenger.callbacks[0], "no longer valid") {
		t.Fatalf("unexpected callback answers %v", f.messenger.callbacks)
	}
	if len(f.messenger.texts) != 0 {
		t.Fatal("callback errors must not post chat messages")
	}
}

func TestInlineMenuAndSearch(t *testing.T) {
	f := newFixture(t, `{"sfx": {"boing": "boing.ogg"}, "music": {"drum": "drum.ogg"}}`, "boing.ogg", "drum.ogg")
	ctx := context.Background()

	f.dispatcher.Handle(ctx, Event{Kind: EventInline, InlineID: "q1", Query: ""})
	menu := f.messenger.inline[0]
	if len(menu) != 2 || menu[0].Kind != InlineArticle || menu[0].Title != "📂 sfx" {
		t.Fatalf("unexpected inline menu %#v", menu)
	}
	if got := menu[0].Keyboard[0][0].SwitchInline; got != "sfx boing" {
		t.Fatalf("unexpected switch query %q", got)
	}

	f.dispatcher.Handle(ctx, Event{Kind: EventInline, InlineID: "q2", Query: "sfx boin"})
	results := f.messenger.inline[1]
	if len(results) != 1 || results[0].Kind != InlineVoice {
		t.Fatalf("unexpected search results %#v", results)
	}
	if results[0].URL != "https://memes.example.com/memes/boing.ogg" || results[0].Title != "🎤 boing" {
		t.Fatalf("unexpected result %#v", results[0])
	}
}

func TestAddFlowRegistersReply(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	f.dispatcher.Handle(ctx, command("add", "laugh"))
	if len(f.messenger.prompts) != 1 {
		t.Fatalf("expected prompt, texts=%v", f.messenger.texts)
	}
	promptID := 1000 + f.messenger.nextID

	// A reply to some other message is not an ingestion.
	f.dispatcher.Handle(ctx, Event{
		Kind: EventAudio, From: User{ID: 1}, Chat: 10, ReplyTo: 3,
		Upload: &ingest.Upload{FileID: "voice-1"},
	})
	if _, err := f.registry.LookupExact("laugh"); err == nil {
		t.Fatal("unrelated reply must not register")
	}

	f.dispatcher.Handle(ctx, Event{
		Kind: EventAudio, From: User{ID: 1}, Chat: 10, ReplyTo: promptID,
		Upload: &ingest.Upload{FileID: "voice-1", FileName: "laugh.ogg"},
	})
	entry, err := f.registry.LookupExact("laugh")
	if err != nil || entry.Asset != "laugh_1700000000.ogg" {
		t.Fatalf("expected registered laugh, got %#v %v", entry, err)
	}
	if got := f.messenger.lastText(t); !strings.Contains(got, "Added") {
		t.Fatalf("unexpected confirmation %q", got)
	}

	f.dispatcher.Handle(ctx, command("add", "laugh"))
	if got := f.messenger.lastText(t); !strings.Contains(got, "already exists") {
		t.Fatalf("expected duplicate rejection, got %q", got)
	}
}

func TestSecondAddDoesNotPrompt(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	f.dispatcher.Handle(ctx, command("add", "laugh"))
	f.dispatcher.Handle(ctx, command("add", "giggle"))
	if len(f.messenger.prompts) != 1 {
		t.Fatalf("expected a single prompt, got %d", len(f.messenger.prompts))
	}
	if got := f.messenger.lastText(t); !strings.Contains(got, "still waiting") {
		t.Fatalf("expected pending-prompt notice, got %q", got)
	}

	// The refused key was never reserved.
	other := command("add", "giggle")
	other.From = User{ID: 2, Name: "bob"}
	f.dispatcher.Handle(ctx, other)
	if len(f.messenger.prompts) != 2 {
		t.Fatalf("another requester should be able to add giggle, texts=%v", f.messenger.texts)
	}
}

func TestAddIntoExistingCategory(t *testing.T) {
	f := newFixture(t, `{"sfx": {"boing": "b.ogg"}}`, "b.ogg")
	ctx := context.Background()

	f.dispatcher.Handle(ctx, command("add", "sfx zap"))
	promptID := 1000 + f.messenger.nextID
	f.dispatcher.Handle(ctx, Event{
		Kind: EventAudio, From: User{ID: 1}, Chat: 10, ReplyTo: promptID,
		Upload: &ingest.Upload{FileID: "voice-1"},
	})
	if _, err := f.registry.LookupInCategory("sfx", "zap"); err != nil {
		t.Fatalf("expected sfx/zap: %v", err)
	}
}

func TestCancelCommand(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	f.dispatcher.Handle(ctx, command("cancel", ""))
	if got := f.messenger.lastText(t); got != "Nothing to cancel." {
		t.Fatalf("unexpected reply %q", got)
	}
	f.dispatcher.Handle(ctx, command("add", "laugh"))
	f.dispatcher.Handle(ctx, command("cancel", ""))
	if got := f.messenger.lastText(t); !strings.Contains(got, "Cancelled") {
		t.Fatalf("unexpected reply %q", got)
	}
	f.dispatcher.Handle(ctx, command("add", "laugh"))
	if len(f.messenger.prompts) != 2 {
		t.Fatal("key should be available again after cancel")
	}
}

func TestRenameCommand(t *testing.T) {
	f := newFixture(t, `{"laugh": "l.ogg", "sfx": {"boing": "b.ogg"}}`, "l.ogg", "b.ogg")
	ctx := context.Background()

	f.dispatcher.Handle(ctx, command("rename", "laugh giggle"))
	if _, err := f.registry.LookupExact("giggle"); err != nil {
		t.Fatalf("expected giggle: %v", err)
	}
	f.dispatcher.Handle(ctx, command("rename", "sfx boing bounce"))
	if _, err := f.registry.LookupInCategory("sfx", "bounce"); err != nil {
		t.Fatalf("expected sfx/bounce: %v", err)
	}
	f.dispatcher.Handle(ctx, command("rename", "nothing"))
	if got := f.messenger.lastText(t); !strings.HasPrefix(got, "Usage") {
		t.Fatalf("expected usage, got %q", got)
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	f := newFixture(t, "")
	f.messenger.panicOn = "No memes"
	f.dispatcher.Handle(context.Background(), command("list", ""))

	f.messenger.panicOn = ""
	f.dispatcher.Handle(context.Background(), command("list", ""))
	if got := f.messenger.lastText(t); got != "No memes yet." {
		t.Fatalf("dispatcher should keep working after a panic, got %q", got)
	}
}

type chanSource struct {
	ch chan Event
}

func (s chanSource) Updates(context.Context) (<-chan Event, error) {
	return s.ch, nil
}

func TestRunHandlesEventsUntilSourceCloses(t *testing.T) {
	f := newFixture(t, `{"airhorn": "a.ogg"}`, "a.ogg")
	src := chanSource{ch: make(chan Event, 3)}
	for range 3 {
		src.ch <- command("play", "airhorn")
	}
	close(src.ch)

	if err := f.dispatcher.Run(context.Background(), src); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(f.messenger.voices) != 3 {
		t.Fatalf("expected 3 voices, got %d", len(f.messenger.voices))
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("wrap: %w", catalogue.ErrAssetMissing), "missing"},
		{catalogue.ErrKeyNotFound, "not found"},
		{fmt.Errorf("%w: ffmpeg", transcode.ErrTranscodeFailed), "convert"},
		{ingest.ErrIngestionTimeout, "No audio received"},
		{usage("Usage: /x"), "Usage: /x"},
		{errors.New("disk on fire"), "Something went wrong"},
	}
	for _, tc := range tests {
		if got := userMessage(tc.err); !strings.Contains(got, tc.want) {
			t.Fatalf("userMessage(%v) = %q, want substring %q", tc.err, got, tc.want)
		}
	}
	if isUserError(errors.New("disk on fire")) || !isUserError(catalogue.ErrKeyExists) {
		t.Fatal("unexpected isUserError classification")
	}
}

func TestChunkLines(t *testing.T) {
	chunks := chunkLines([]string{"aaaa", "bbbb", "cc"}, 9)
	if len(chunks) != 2 || chunks[0] != "aaaa\nbbbb" || chunks[1] != "cc" {
		t.Fatalf("unexpected chunks %q", chunks)
	}
}
