package notify

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/coordctl/coordctl/internal/protocol"
)

func testDirective() protocol.Directive {
	return protocol.Directive{
		DirectiveID: "dir-1",
		TargetAgent: "operator",
		Command:     "escalate",
		IssuedBy:    "controller-01",
		IssuedAtUTC: "2026-07-31T00:00:00Z",
		Parameters: map[string]any{
			"original_task_id": "task-1",
			"failed_agent":     "sheets-worker-01",
			"team":             "sheets-team",
			"reason":           "max retries exhausted",
		},
	}
}

func TestToastChannelNoopsOffWindows(t *testing.T) {
	ch := NewToastChannel("", "")
	if ch.IsSupported() {
		t.Skip("running on a platform where toast notifications are supported")
	}
	if err := ch.Notify(testDirective()); err != nil {
		t.Fatalf("expected unsupported platforms to no-op, got %v", err)
	}
}

func TestWebhookChannelPostsEscalationPayload(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatal(err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, "coordctl-bot")
	if err := ch.Notify(testDirective()); err != nil {
		t.Fatal(err)
	}

	if received["username"] != "coordctl-bot" {
		t.Fatalf("expected username in payload, got %v", received["username"])
	}
	text, _ := received["text"].(string)
	if text == "" {
		t.Fatal("expected non-empty text field")
	}
}

func TestWebhookChannelRequiresURL(t *testing.T) {
	ch := NewWebhookChannel("", "")
	if err := ch.Notify(testDirective()); err == nil {
		t.Fatal("expected error when webhook URL is unset")
	}
}

func TestWebhookChannelSurfacesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, "")
	if err := ch.Notify(testDirective()); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestNotifierDeliversToAllChannelsAndNeverFails(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	failing := NewWebhookChannel("", "")
	ok := NewWebhookChannel(srv.URL, "")

	n := New(log.Default(), failing, ok)
	n.NotifyEscalation(testDirective())

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected the working channel to receive 1 delivery after the failing one, got %d", got)
	}
}
