package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"memebox/internal/config"
)

const userAgent = "memebox/0.1.0"

// Event identifies a notification-worthy milestone.
type Event string

const (
	EventIngestionCompleted Event = "ingestion_completed"
	EventIngestionFailed    Event = "ingestion_failed"
	EventIngestionExpired   Event = "ingestion_expired"
	EventCatalogueRepaired  Event = "catalogue_repaired"
	EventError              Event = "error"
	EventTest               Event = "test"
)

// Payload carries event specific values keyed by name.
type Payload map[string]any

// Service publishes events to the configured notification channel.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		ingestion: cfg.Notifications.Ingestion,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	ingestion bool
	errors    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	msg, ok := n.format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventIngestionCompleted:
		if !n.ingestion {
			return payload{}, false
		}
		key := label(data, "key")
		if category := label(data, "category"); category != "" {
			key = category + "/" + key
		}
		message := fmt.Sprintf("🔊 New meme: %s", key)
		if requester := label(data, "requester"); requester != "" {
			message = fmt.Sprintf("%s (added by %s)", message, requester)
		}
		return payload{
			title:   "memebox - Meme Added",
			message: message,
			tags:    []string{"memebox", "ingest", "completed"},
		}, true
	case EventIngestionFailed:
		if !n.errors {
			return payload{}, false
		}
		return payload{
			title:   "memebox - Ingestion Failed",
			message: fmt.Sprintf("Could not add %s: %s", label(data, "key"), orUnknown(label(data, "error"))),
			tags:    []string{"memebox", "ingest", "failed"},
		}, true
	case EventCatalogueRepaired:
		if !n.errors {
			return payload{}, false
		}
		return payload{
			title:   "memebox - Catalogue Repaired",
			message: fmt.Sprintf("Normalized %s catalogue entries on load", orUnknown(label(data, "count"))),
			tags:    []string{"memebox", "catalogue", "repaired"},
		}, true
	case EventError:
		if !n.errors {
			return payload{}, false
		}
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if contextLabel := label(data, "context"); contextLabel != "" {
			builder.WriteString(" with ")
			builder.WriteString(contextLabel)
		}
		builder.WriteString(": ")
		builder.WriteString(orUnknown(label(data, "error")))
		return payload{
			title:    "memebox - Error",
			message:  builder.String(),
			tags:     []string{"memebox", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "memebox - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"memebox", "test"},
			priority: "low",
		}, true
	default:
		// Expired ingestions are routine and only logged.
		return payload{}, false
	}
}

func label(data Payload, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
