// Command queuebridge stands up an embedded NATS server with JetStream for
// local/dev runs, so internal/queue.BrokerAdapter and internal/lock.KVBackend
// have somewhere to talk to without requiring an external NATS deployment.
// Adapted from cmd/nats-bridge/main.go: where the teacher's bridge relayed
// between two already-running NATS servers, this one starts the server
// itself and additionally provisions the JetStream KV bucket the
// distributed lock backend needs.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/coordctl/coordctl/internal/logging"
	natsembed "github.com/coordctl/coordctl/internal/nats"
)

var log = logging.New("queuebridge")

func main() {
	os.Exit(run())
}

func run() int {
	port := flag.Int("port", 4222, "Port for the embedded NATS server")
	dataDir := flag.String("data-dir", "data/jetstream", "JetStream storage directory")
	bucket := flag.String("lock-bucket", "coordctl_locks", "JetStream KV bucket name for the distributed lock backend")
	lockTTL := flag.Duration("lock-ttl", 120*time.Second, "TTL for lock records in the KV bucket")
	subjectPrefix := flag.String("queue-subject-prefix", "coordctl.queue", "Subject prefix BrokerAdapter publishes report/directive queues under")
	durableQueue := flag.Bool("durable-queue", true, "Provision a JetStream stream over the queue subjects for replay/at-least-once delivery")
	flag.Parse()

	srv, err := natsembed.NewEmbeddedServer(natsembed.EmbeddedServerConfig{
		Port:      *port,
		JetStream: true,
		DataDir:   *dataDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure embedded NATS server: %v\n", err)
		return 1
	}
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start embedded NATS server: %v\n", err)
		return 1
	}
	defer srv.Shutdown()
	log.Printf("embedded NATS server listening at %s", srv.URL())

	nc, err := nats.Connect(srv.URL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to embedded server: %v\n", err)
		return 1
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get JetStream context: %v\n", err)
		return 1
	}
	if _, err := js.KeyValue(*bucket); err != nil {
		if _, err := js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: *bucket,
			TTL:    *lockTTL,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create lock KV bucket %s: %v\n", *bucket, err)
			return 1
		}
		log.Printf("created JetStream KV bucket %q (ttl=%s)", *bucket, *lockTTL)
	} else {
		log.Printf("JetStream KV bucket %q already exists", *bucket)
	}

	if *durableQueue {
		streams, err := natsembed.NewStreamManager(nc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to get JetStream context for stream setup: %v\n", err)
			return 1
		}
		if err := streams.SetupQueueStream(*subjectPrefix); err != nil {
			fmt.Fprintf(os.Stderr, "failed to provision queue stream: %v\n", err)
			return 1
		}
	}

	log.Printf("queuebridge ready: set QUEUE_BROKER_URL/COORDCTL_BROKER_URL to %s", srv.URL())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received, stopping")
	return 0
}
