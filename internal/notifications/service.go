package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"camrelay/internal/config"
)

const userAgent = "camrelay/0.1.0"

// Event identifies what happened in the relay.
type Event string

const (
	EventEncodeFailed     Event = "encode_failed"
	EventDeliveryFailed   Event = "delivery_failed"
	EventTimingCorrected  Event = "timing_corrected"
	EventCorrectionFailed Event = "correction_failed"
	EventSegmentDelivered Event = "segment_delivered"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries event fields keyed by name.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
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
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		errors:      cfg.Notifications.Errors,
		corrections: cfg.Notifications.Corrections,
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
	errors      bool
	corrections bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	segment := payload.text("segment")
	switch event {
	case EventEncodeFailed:
		if !n.errors {
			return message{}, false
		}
		return message{
			title:    "camrelay - Encode Failed",
			body:     fmt.Sprintf("❌ Encode failed: %s\n%s", segment, payload.text("error")),
			tags:     []string{"camrelay", "encode", "failed"},
			priority: "high",
		}, true
	case EventDeliveryFailed:
		if !n.errors {
			return message{}, false
		}
		return message{
			title: "camrelay - Delivery Failed",
			body:  fmt.Sprintf("📭 Telegram upload failed: %s\n%s", segment, payload.text("error")),
			tags:  []string{"camrelay", "telegram", "failed"},
		}, true
	case EventTimingCorrected:
		if !n.corrections {
			return message{}, false
		}
		return message{
			title: "camrelay - Timing Corrected",
			body: fmt.Sprintf("⏱️ Corrected %s: expected %ss, got %ss, multiplier %s",
				segment, payload.text("expected"), payload.text("actual"), payload.text("multiplier")),
			tags: []string{"camrelay", "timing", "corrected"},
		}, true
	case EventCorrectionFailed:
		if !n.corrections && !n.errors {
			return message{}, false
		}
		return message{
			title: "camrelay - Correction Failed",
			body:  fmt.Sprintf("⚠️ Timing correction failed for %s; uncorrected file delivered", segment),
			tags:  []string{"camrelay", "timing", "failed"},
		}, true
	case EventError:
		if !n.errors {
			return message{}, false
		}
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := payload.text("context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if errText := payload.text("error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "camrelay - Error",
			body:     b.String(),
			tags:     []string{"camrelay", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "camrelay - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"camrelay", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
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

func (p Payload) text(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case error:
		return strings.TrimSpace(val.Error())
	case float64:
		return fmt.Sprintf("%.3f", val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
