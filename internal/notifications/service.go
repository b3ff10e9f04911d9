package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"gavel/internal/config"
)

const userAgent = "gavel/1.0"

// Event identifies a pipeline milestone worth pushing to operators.
type Event string

const (
	EventHearingPublished Event = "hearing_published"
	EventHearingStalled   Event = "hearing_stalled"
	EventDaemonError      Event = "daemon_error"
	EventTest             Event = "test"
)

// Payload carries the fields interpolated into the outgoing message.
type Payload map[string]string

// Service is the notification surface exposed to the pipeline and stages.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
	Test(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when a topic is
// configured. Without a topic, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventHearingPublished: cfg.Notifications.Published,
			EventHearingStalled:   cfg.Notifications.Stalled,
			EventDaemonError:      cfg.Notifications.Errors,
			EventTest:             true,
		},
		dedupWindow: time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		lastSent:    make(map[string]time.Time),
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	enabled     map[Event]bool
	dedupWindow time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// Publish formats and sends the event. Disabled events and repeats inside
// the dedup window return nil without a request.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	if !n.enabled[event] {
		return nil
	}
	msg, ok := formatEvent(event, payload)
	if !ok {
		return nil
	}
	if event != EventTest && n.suppressed(event, msg) {
		return nil
	}
	return n.send(ctx, msg)
}

// Test sends a low-priority probe so operators can verify their topic.
func (n *ntfyService) Test(ctx context.Context) error {
	return n.Publish(ctx, EventTest, nil)
}

func (n *ntfyService) suppressed(event Event, msg message) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	key := string(event) + "|" + msg.body
	now := time.Now()

	n.mu.Lock()
	defer n.mu.Unlock()
	for k, sent := range n.lastSent {
		if now.Sub(sent) >= n.dedupWindow {
			delete(n.lastSent, k)
		}
	}
	if sent, ok := n.lastSent[key]; ok && now.Sub(sent) < n.dedupWindow {
		return true
	}
	n.lastSent[key] = now
	return false
}

func formatEvent(event Event, payload Payload) (message, bool) {
	get := func(key string) string {
		return strings.TrimSpace(payload[key])
	}

	switch event {
	case EventHearingPublished:
		title := get("title")
		if title == "" {
			title = "hearing"
		}
		body := fmt.Sprintf("Published: %s", title)
		if committee := get("committee"); committee != "" {
			body = fmt.Sprintf("Published: %s (%s)", title, committee)
		}
		if dir := get("directory"); dir != "" {
			body = fmt.Sprintf("%s\nLibrary: %s", body, dir)
		}
		return message{
			title: "Gavel - Published",
			body:  body,
			tags:  []string{"gavel", "publish", "completed"},
		}, true
	case EventHearingStalled:
		title := get("title")
		if title == "" {
			title = "hearing"
		}
		stage := get("stage")
		if stage == "" {
			stage = "unknown stage"
		}
		body := fmt.Sprintf("Stalled at %s: %s", stage, title)
		if reason := get("error"); reason != "" {
			body = fmt.Sprintf("%s\n%s", body, reason)
		}
		body = body + "\nRun gavel reset to resume attempts"
		return message{
			title:    "Gavel - Stalled",
			body:     body,
			tags:     []string{"gavel", "stalled", "alert"},
			priority: "high",
		}, true
	case EventDaemonError:
		var builder strings.Builder
		builder.WriteString("Error")
		if label := get("context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if detail := get("error"); detail != "" {
			builder.WriteString(detail)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Gavel - Error",
			body:     builder.String(),
			tags:     []string{"gavel", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Gavel - Test",
			body:     "Notification system test",
			tags:     []string{"gavel", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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
func (noopService) Test(context.Context) error                    { return nil }
