// Package lock implements the per-resource advisory lock manager described
// in spec.md §4.4: at most one holder per resource id within a backend
// namespace, with staleness recovery so a crashed holder does not
// permanently block progress.
//
// Grounded on original_source/Controller/lock_manager.py: two coexisting
// namespaces (owner-centric, used for Controller-held team-inbox locks, and
// resource-centric, used for Agent per-resource locks), a safe-key
// transform that replaces path separators with underscores (collision risk
// preserved deliberately, see DESIGN.md Open Questions), staleness-by-age
// override, and same-owner refresh.
package lock

import (
	"errors"
	"strings"
	"time"
)

// ErrLockContended is returned by Backend.TryAcquire when the resource is
// held by someone else and not yet stale.
var ErrLockContended = errors.New("lock: resource is held and not stale")

// ErrNotAcquired is the sentinel Manager.Acquire returns after exhausting
// its retry budget.
type ErrNotAcquired struct {
	ResourceID string
	Attempts   int
}

func (e *ErrNotAcquired) Error() string {
	return "lock: could not acquire " + e.ResourceID + " after retries"
}

// Record is the persisted shape of one lock.
type Record struct {
	ResourceID string    `json:"resource_id"`
	OwnerID    string    `json:"owner,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	TeamID     string    `json:"team_id,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status,omitempty"`
}

// Backend is the narrow capability a lock storage mechanism must provide.
// File and distributed (NATS JetStream KV) implementations both satisfy it.
type Backend interface {
	// TryAcquire attempts to claim resourceID for ownerID. It returns
	// ErrLockContended if the resource is held by a different owner and
	// not yet stale given timeout. Re-acquiring your own lock always
	// succeeds and refreshes the timestamp.
	TryAcquire(resourceID, ownerID string, rec Record, timeout time.Duration) error
	// Release removes the record if it is owned by ownerID; otherwise it
	// is a no-op.
	Release(resourceID, ownerID string) error
	// Read returns the current record, or (Record{}, false) if absent.
	Read(resourceID string) (Record, bool)
}

// Manager coordinates acquire/release/staleness against a Backend, applying
// exponential backoff on contention.
type Manager struct {
	backend    Backend
	namespace  string // prefix applied to the safe key, e.g. "ctrl_" for owner-centric locks
	ownerID    string
	timeout    time.Duration
	maxRetries int
	backoffBase time.Duration

	held map[string]bool
}

// New returns a Manager. namespace is prepended to the safe-key form of
// every resource id (pass "" for the bare resource-centric namespace, or a
// prefix like "ctrl_" for the owner-centric namespace).
func New(backend Backend, namespace, ownerID string, timeout time.Duration, maxRetries int, backoffBase time.Duration) *Manager {
	return &Manager{
		backend:     backend,
		namespace:   namespace,
		ownerID:     ownerID,
		timeout:     timeout,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		held:        map[string]bool{},
	}
}

// SafeKey replaces path separators with underscores. This can in principle
// collide two different resource ids into the same key — the source makes
// no claim of collision-freedom and this implementation preserves that
// behavior rather than disambiguating it.
func SafeKey(resourceID string) string {
	r := strings.ReplaceAll(resourceID, "/", "_")
	r = strings.ReplaceAll(r, "\\", "_")
	return r
}

func (m *Manager) key(resourceID string) string {
	return m.namespace + SafeKey(resourceID)
}

// Acquire claims resourceID for taskID, retrying with base-2 exponential
// backoff up to maxRetries on contention. It fails with *ErrNotAcquired on
// exhaustion.
func (m *Manager) Acquire(resourceID, taskID string) error {
	key := m.key(resourceID)
	rec := Record{
		ResourceID: resourceID,
		OwnerID:    m.ownerID,
		TaskID:     taskID,
		Timestamp:  time.Now().UTC(),
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		err := m.backend.TryAcquire(key, m.ownerID, rec, m.timeout)
		if err == nil {
			m.held[key] = true
			return nil
		}
		lastErr = err
		if attempt < m.maxRetries {
			time.Sleep(m.backoffBase * time.Duration(1<<uint(attempt)))
		}
	}
	_ = lastErr
	return &ErrNotAcquired{ResourceID: resourceID, Attempts: m.maxRetries + 1}
}

// Release removes the lock on resourceID if this Manager's ownerID holds
// it; otherwise it is a no-op.
func (m *Manager) Release(resourceID string) error {
	key := m.key(resourceID)
	if err := m.backend.Release(key, m.ownerID); err != nil {
		return err
	}
	delete(m.held, key)
	return nil
}

// ReleaseAll releases every resource this Manager instance currently holds.
func (m *Manager) ReleaseAll() {
	for key := range m.held {
		_ = m.backend.Release(key, m.ownerID)
		delete(m.held, key)
	}
}

// IsHeld reports whether this Manager instance believes it holds resourceID.
func (m *Manager) IsHeld(resourceID string) bool {
	return m.held[m.key(resourceID)]
}

// Check returns the current on-disk/backend record for resourceID.
func (m *Manager) Check(resourceID string) (Record, bool) {
	return m.backend.Read(m.key(resourceID))
}
