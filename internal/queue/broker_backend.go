package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/coordctl/coordctl/internal/logging"
)

var log = logging.New("queue")

const (
	maxReconnectAttempts = 5
	baseReconnectDelay   = time.Second
	maxReconnectDelay    = 30 * time.Second
)

// BrokerAdapter pushes/pops queue items over a NATS connection, using a
// subject per queue name (publish for push, a plain subscription drained
// with a timeout for pop). Grounded on internal/nats/client.go's
// reconnect-handler pattern, generalized from Redis's RPUSH/BLPOP shape in
// original_source/infra/redis_adapter.py to NATS's pub/sub primitives.
type BrokerAdapter struct {
	nc     *nats.Conn
	prefix string
}

// NewBrokerAdapter wraps an already-connected *nats.Conn. Use
// queue.Connect to build one with the teacher's reconnect policy.
func NewBrokerAdapter(nc *nats.Conn, subjectPrefix string) *BrokerAdapter {
	return &BrokerAdapter{nc: nc, prefix: subjectPrefix}
}

// Connect opens a NATS connection configured like
// internal/nats/client.go: unlimited reconnects with a 2s wait, and logs on
// disconnect/reconnect/close.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("reconnected to %s", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("queue: connect %s: %w", url, err)
	}
	return nc, nil
}

func (b *BrokerAdapter) subject(queueName string) string {
	return b.prefix + "." + queueName
}

// Push publishes obj to the queue's subject, retrying on transient errors
// with exponential backoff up to maxReconnectAttempts.
func (b *BrokerAdapter) Push(queueName string, obj map[string]any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	subject := b.subject(queueName)

	var lastErr error
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		if err := b.nc.Publish(subject, data); err == nil {
			return nil
		} else {
			lastErr = err
		}
		sleepBackoff(attempt)
	}
	return fmt.Errorf("queue: publish %s after %d attempts: %w", subject, maxReconnectAttempts, lastErr)
}

// Pop subscribes to the queue's subject and waits up to timeout for one
// message, unsubscribing afterward. Returns nil if nothing arrives.
func (b *BrokerAdapter) Pop(queueName string, timeout time.Duration) (map[string]any, error) {
	subject := b.subject(queueName)
	sub, err := b.nc.SubscribeSync(subject)
	if err != nil {
		return nil, fmt.Errorf("queue: subscribe %s: %w", subject, err)
	}
	defer sub.Unsubscribe()

	msg, err := sub.NextMsg(timeout)
	if err == nats.ErrTimeout {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: pop %s: %w", subject, err)
	}

	var obj map[string]any
	if err := json.Unmarshal(msg.Data, &obj); err != nil {
		return nil, fmt.Errorf("queue: decode message on %s: %w", subject, err)
	}
	return obj, nil
}

func sleepBackoff(attempt int) {
	delay := baseReconnectDelay * time.Duration(1<<uint(attempt))
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	time.Sleep(delay)
}
