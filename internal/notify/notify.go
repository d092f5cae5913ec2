// Package notify delivers escalation directives to a human operator through
// side channels outside the file-backed outbox: a native desktop toast and
// an outbound webhook. Neither channel is authoritative — the escalation
// directive file under outbox/escalation/ remains the system of record,
// these are best-effort pings that something needs attention.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/go-toast/toast"

	"github.com/coordctl/coordctl/internal/protocol"
)

// Channel delivers one escalation directive through one medium.
type Channel interface {
	Name() string
	Notify(d protocol.Directive) error
}

// Notifier fans an escalation directive out to every configured channel,
// logging but not failing the caller when an individual channel errors —
// a broken webhook must never block the Controller's escalation path.
type Notifier struct {
	channels []Channel
	logger   *log.Logger
}

// New builds a Notifier from zero or more channels. A nil logger falls back
// to log.Default().
func New(logger *log.Logger, channels ...Channel) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{channels: channels, logger: logger}
}

// AddChannel appends ch to the set of channels notified on escalation.
func (n *Notifier) AddChannel(ch Channel) {
	n.channels = append(n.channels, ch)
}

// NotifyEscalation delivers d to every channel. It returns nothing; per
// channel failures are logged, never propagated, so a notification outage
// cannot stall escalation handling.
func (n *Notifier) NotifyEscalation(d protocol.Directive) {
	for _, ch := range n.channels {
		if err := ch.Notify(d); err != nil {
			n.logger.Printf("[NOTIFY] %s channel failed for directive %s: %v", ch.Name(), d.DirectiveID, err)
			continue
		}
		n.logger.Printf("[NOTIFY] %s channel delivered directive %s", ch.Name(), d.DirectiveID)
	}
}

// ToastChannel raises a native desktop toast for an escalation directive.
// Supported on Windows only; Notify is a silent no-op elsewhere, matching
// the platform gate the teacher's toast notifier uses.
type ToastChannel struct {
	appID        string
	dashboardURL string
}

// NewToastChannel builds a ToastChannel. appID defaults to "coordctl" and
// dashboardURL to the local dashboard root when empty.
func NewToastChannel(appID, dashboardURL string) *ToastChannel {
	if appID == "" {
		appID = "coordctl"
	}
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8088"
	}
	return &ToastChannel{appID: appID, dashboardURL: dashboardURL}
}

func (c *ToastChannel) Name() string { return "toast" }

// IsSupported reports whether this platform can raise a toast.
func (c *ToastChannel) IsSupported() bool { return runtime.GOOS == "windows" }

func (c *ToastChannel) Notify(d protocol.Directive) error {
	if !c.IsSupported() {
		return nil
	}
	notification := toast.Notification{
		AppID:   c.appID,
		Title:   fmt.Sprintf("Escalation: %s", escalationReason(d)),
		Message: fmt.Sprintf("task=%v agent=%v team=%v", d.Parameters["original_task_id"], d.Parameters["failed_agent"], d.Parameters["team"]),
		Audio:   toast.IM,
		Actions: []toast.Action{
			{Type: "protocol", Label: "Open Dashboard", Arguments: c.dashboardURL},
		},
	}
	return notification.Push()
}

func escalationReason(d protocol.Directive) string {
	if reason, ok := d.Parameters["reason"].(string); ok && reason != "" {
		return reason
	}
	return d.Command
}

// WebhookChannel posts an escalation directive as a JSON payload to an
// arbitrary webhook URL (Slack incoming-webhooks, a generic on-call
// endpoint, or anything else that accepts a POST body).
type WebhookChannel struct {
	url      string
	client   *http.Client
	username string
}

// NewWebhookChannel builds a WebhookChannel posting to url. username, if
// set, is echoed into the payload for webhooks that render a sender name
// (e.g. Slack).
func NewWebhookChannel(url, username string) *WebhookChannel {
	return &WebhookChannel{
		url:      url,
		username: username,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Notify(d protocol.Directive) error {
	if w.url == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	payload := map[string]any{
		"text": fmt.Sprintf("coordctl escalation: %s", escalationReason(d)),
		"attachments": []map[string]any{
			{
				"color": "danger",
				"title": fmt.Sprintf("%s directive for %s", d.Command, d.TargetAgent),
				"fields": []map[string]any{
					{"title": "directive_id", "value": d.DirectiveID, "short": true},
					{"title": "issued_by", "value": d.IssuedBy, "short": true},
					{"title": "issued_at", "value": d.IssuedAtUTC, "short": true},
					{"title": "parameters", "value": fmt.Sprintf("%v", d.Parameters), "short": false},
				},
			},
		},
	}
	if w.username != "" {
		payload["username"] = w.username
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
