package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// TestEmbeddedServerQueueStreamRoundTrip exercises the two pieces of this
// package that cmd/queuebridge actually wires together: an EmbeddedServer
// with JetStream enabled, and SetupQueueStream provisioning a durable
// stream over the queue's subject prefix, verified end to end with the
// real nats.go client (the same client queuebridge itself connects with).
func TestEmbeddedServerQueueStreamRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	srv, err := NewEmbeddedServer(EmbeddedServerConfig{
		Port:      14310,
		JetStream: true,
		DataDir:   tmpDir,
	})
	if err != nil {
		t.Fatalf("failed to create embedded server: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start embedded server: %v", err)
	}
	defer srv.Shutdown()

	nc, err := nats.Connect(srv.URL())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		t.Fatalf("failed to get JetStream context: %v", err)
	}

	streams, err := NewStreamManager(nc)
	if err != nil {
		t.Fatalf("failed to create stream manager: %v", err)
	}
	if err := streams.SetupQueueStream("coordctl.queue"); err != nil {
		t.Fatalf("failed to set up queue stream: %v", err)
	}

	info, err := streams.GetStreamInfo("COORDCTL_QUEUE")
	if err != nil {
		t.Fatalf("failed to get stream info: %v", err)
	}
	if len(info.Config.Subjects) != 1 || info.Config.Subjects[0] != "coordctl.queue.>" {
		t.Fatalf("unexpected stream subjects: %v", info.Config.Subjects)
	}

	// Publish through JetStream and confirm the stream actually persisted it.
	if _, err := js.Publish("coordctl.queue.reports", []byte(`{"task_id":"t-1"}`)); err != nil {
		t.Fatalf("failed to publish into stream: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		info, err := streams.GetStreamInfo("COORDCTL_QUEUE")
		if err != nil {
			t.Fatalf("failed to get stream info: %v", err)
		}
		if info.State.Msgs == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 message in stream, got %d", info.State.Msgs)
		}
		time.Sleep(20 * time.Millisecond)
	}

	// Re-running SetupQueueStream against the same name must update, not fail.
	if err := streams.SetupQueueStream("coordctl.queue"); err != nil {
		t.Fatalf("idempotent SetupQueueStream call failed: %v", err)
	}

	if err := streams.DeleteStream("COORDCTL_QUEUE"); err != nil {
		t.Fatalf("failed to delete stream: %v", err)
	}
}
