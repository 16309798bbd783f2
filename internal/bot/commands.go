package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"memebox/internal/catalogue"
	"memebox/internal/ingest"
	"memebox/internal/logging"
	"memebox/internal/textutil"
)

// maxMessageLength stays under the platform's 4096 character limit.
const maxMessageLength = 4000

func (d *Dispatcher) handleStart(ctx context.Context, ev Event) error {
	mention := "my @username"
	if d.botName != "" {
		mention = "@" + d.botName
	}
	text := fmt.Sprintf("Hi! Type %s menu in any chat to pick a meme by category, "+
		"or %s <text> to search.\n\n"+
		"/list shows every meme, /play <key> plays one, /menu opens the category buttons.\n"+
		"/add [category] <key> adds a new meme: reply to my prompt with the audio.",
		mention, mention)
	_, err := d.messenger.SendText(ctx, ev.Chat, text)
	return err
}

func (d *Dispatcher) handleList(ctx context.Context, ev Event) error {
	entries := d.lookup.List()
	if len(entries) == 0 {
		_, err := d.messenger.SendText(ctx, ev.Chat, "No memes yet.")
		return err
	}

	seen := make(map[catalogue.Key]struct{}, len(entries))
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, "🎤 Available memes:")
	for _, e := range entries {
		if _, dup := seen[e.Key]; dup {
			continue
		}
		seen[e.Key] = struct{}{}
		lines = append(lines, "/play "+string(e.Key))
	}
	for _, chunk := range chunkLines(lines, maxMessageLength) {
		if _, err := d.messenger.SendText(ctx, ev.Chat, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) handlePlay(ctx context.Context, ev Event) error {
	args := strings.TrimSpace(ev.Args)
	if args == "" {
		return usage("Usage: /play <key>")
	}
	asset, err := d.lookup.Play(args)
	if errors.Is(err, catalogue.ErrKeyNotFound) {
		if category, key, ok := d.splitCategory(args); ok {
			asset, err = d.lookup.PlayInCategory(category, key)
		}
	}
	if err != nil {
		return err
	}
	return d.sendVoice(ctx, ev.Chat, asset)
}

func (d *Dispatcher) handleMenu(ctx context.Context, ev Event) error {
	menu := d.lookup.Categories()
	if len(menu.Options) == 0 {
		_, err := d.messenger.SendText(ctx, ev.Chat, "No memes yet.")
		return err
	}
	_, err := d.messenger.SendMenu(ctx, ev.Chat, menuTitle(menu), menuKeyboard(menu))
	return err
}

func (d *Dispatcher) handleAdd(ctx context.Context, ev Event) error {
	return d.startIngestion(ctx, ev, false, "Usage: /add [category] <key>")
}

func (d *Dispatcher) handleReplace(ctx context.Context, ev Event) error {
	return d.startIngestion(ctx, ev, true, "Usage: /replace [category] <key>")
}

// startIngestion reserves the key, prompts for audio and subscribes to the
// reply. The first word selects a category only when it names an existing
// one; otherwise the whole argument is a root key. A requester with a
// pending prompt in the chat is refused before anything is reserved.
func (d *Dispatcher) startIngestion(ctx context.Context, ev Event, replace bool, help string) error {
	args := strings.TrimSpace(ev.Args)
	if args == "" {
		return usage(help)
	}
	if d.pipeline.Waiting(ev.From.ID, ev.Chat) {
		return ingest.ErrAlreadyWaiting
	}
	category, key, ok := d.splitCategory(args)
	if !ok {
		category, key = catalogue.Root, args
	}

	ticket, err := d.pipeline.Reserve(ctx, ingest.Request{
		Category:     category,
		Key:          key,
		Replace:      replace,
		Requester:    requesterLabel(ev.From),
		Conversation: strconv.FormatInt(ev.Chat, 10),
	})
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("🎙 Reply to this message with the audio for %q within %s.",
		string(ticket.Key), d.pipeline.AwaitTimeout())
	promptID, err := d.messenger.SendPrompt(ctx, ev.Chat, ev.MessageID, prompt)
	if err != nil {
		d.pipeline.Abandon(ctx, ticket, "prompt could not be sent")
		return fmt.Errorf("send prompt: %w", err)
	}

	chat := ev.Chat
	sub := ingest.SubscriptionKey{Requester: ev.From.ID, Conversation: chat, Prompt: promptID}
	onExpire := func(t ingest.Ticket) {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), expiryNoticeTimeout)
		defer cancel()
		text := fmt.Sprintf("⌛ No audio received for %q. Send /add again when you're ready.", string(t.Key))
		if _, err := d.messenger.SendText(notifyCtx, chat, text); err != nil {
			d.logger.Warn("failed to send expiry notice", logging.Error(err))
		}
	}
	return d.pipeline.Await(ticket, sub, onExpire)
}

func (d *Dispatcher) handleAudio(ctx context.Context, ev Event) error {
	if ev.Upload == nil || ev.ReplyTo == 0 {
		return nil
	}
	key := ingest.SubscriptionKey{Requester: ev.From.ID, Conversation: ev.Chat, Prompt: ev.ReplyTo}
	entry, ok, err := d.pipeline.Deliver(ctx, key, *ev.Upload)
	if !ok {
		return nil
	}
	if err != nil {
		return err
	}
	text := fmt.Sprintf("✅ Added %q. Play it with /play %s", string(entry.Key), string(entry.Key))
	if entry.Category != catalogue.Root {
		text = fmt.Sprintf("✅ Added %q to %s. Play it with /play %s", string(entry.Key), entry.Category, string(entry.Key))
	}
	_, err = d.messenger.SendText(ctx, ev.Chat, text)
	return err
}

// handleRename accepts "<old> <new>" or "<category> <old> <new>". Keys with
// spaces cannot be renamed from chat; the CLI handles those.
func (d *Dispatcher) handleRename(ctx context.Context, ev Event) error {
	fields := strings.Fields(ev.Args)
	snap := d.registry.Snapshot()

	var (
		category string
		from, to catalogue.Key
	)
	switch {
	case len(fields) == 3 && snap.HasCategory(textutil.NormalizeLabel(fields[0])):
		category = textutil.NormalizeLabel(fields[0])
		from, to = catalogue.Key(fields[1]), catalogue.Key(fields[2])
	case len(fields) == 2:
		from, to = catalogue.Key(textutil.NormalizeLabel(fields[0])), catalogue.Key(fields[1])
		entry, ok := snap.Lookup(from)
		if !ok {
			return fmt.Errorf("%w: %q", catalogue.ErrKeyNotFound, from)
		}
		category = entry.Category
	default:
		return usage("Usage: /rename [category] <old> <new>")
	}

	if err := d.registry.Rename(ctx, category, from, to); err != nil {
		return err
	}
	_, err := d.messenger.SendText(ctx, ev.Chat, fmt.Sprintf("✏️ Renamed %q to %q.",
		textutil.NormalizeLabel(string(from)), textutil.NormalizeLabel(string(to))))
	return err
}

func (d *Dispatcher) handleCancel(ctx context.Context, ev Event) error {
	ticket, ok := d.pipeline.Cancel(ctx, ev.From.ID, ev.Chat)
	text := "Nothing to cancel."
	if ok {
		text = fmt.Sprintf("🚫 Cancelled adding %q.", string(ticket.Key))
	}
	_, err := d.messenger.SendText(ctx, ev.Chat, text)
	return err
}

// splitCategory splits "<category> <rest>" when the first word names an
// existing category.
func (d *Dispatcher) splitCategory(args string) (string, string, bool) {
	head, rest, found := strings.Cut(strings.TrimSpace(args), " ")
	rest = strings.TrimSpace(rest)
	if !found || rest == "" {
		return "", "", false
	}
	category := textutil.NormalizeLabel(head)
	if !d.registry.Snapshot().HasCategory(category) {
		return "", "", false
	}
	return category, rest, true
}

func requesterLabel(u User) string {
	if u.Name != "" {
		return u.Name
	}
	return strconv.FormatInt(u.ID, 10)
}

// chunkLines joins lines with newlines into messages no longer than limit.
func chunkLines(lines []string, limit int) []string {
	var (
		chunks  []string
		current strings.Builder
	)
	for _, line := range lines {
		if current.Len() > 0 && current.Len()+1+len(line) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
