// Package retry implements per-task retry tracking with exponential
// backoff and escalation-directive emission, grounded on
// original_source/Controller/retry_manager.py.
package retry

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/coordctl/coordctl/internal/protocol"
	"github.com/coordctl/coordctl/internal/statestore"
)

// Status is a task's retry-tracking state.
type Status string

const (
	StatusRetrying  Status = "retrying"
	StatusExhausted Status = "exhausted"
)

// Entry tracks retry state for a single failed task.
type Entry struct {
	TaskID      string    `json:"task_id"`
	Agent       string    `json:"agent"`
	Team        string    `json:"team"`
	RetryCount  int       `json:"retry_count"`
	MaxRetries  int       `json:"max_retries"`
	LastRetryTS time.Time `json:"last_retry_ts"`
	Status      Status    `json:"status"`
}

// Manager tracks retry state for every task, persisted as a single JSON
// map keyed by task id.
type Manager struct {
	statePath    string
	outboxDir    string
	controllerID string
	defaultMax   int
	backoffBase  float64
	state        map[string]Entry
}

// New returns a Manager whose state lives at statePath and whose
// directives are written under outboxDir/<team>/<agent>/ or
// outboxDir/escalation/.
func New(statePath, outboxDir, controllerID string, defaultMaxRetries int, backoffBase float64) *Manager {
	m := &Manager{
		statePath:    statePath,
		outboxDir:    outboxDir,
		controllerID: controllerID,
		defaultMax:   defaultMaxRetries,
		backoffBase:  backoffBase,
	}
	m.load()
	return m
}

func (m *Manager) load() {
	state, _ := statestore.Load(m.statePath, map[string]Entry{})
	if state == nil {
		state = map[string]Entry{}
	}
	m.state = state
}

func (m *Manager) save() error {
	return statestore.Save(m.statePath, m.state)
}

// ShouldRetry reports whether taskID should be retried: true if there is
// no prior entry (first failure), false once retry_count has reached
// max_retries, and otherwise gated by exponential backoff since the last
// retry.
func (m *Manager) ShouldRetry(taskID string) bool {
	entry, ok := m.state[taskID]
	if !ok {
		return true
	}
	if entry.RetryCount >= entry.MaxRetries {
		return false
	}
	if !entry.LastRetryTS.IsZero() {
		elapsed := time.Since(entry.LastRetryTS).Seconds()
		backoff := math.Pow(m.backoffBase, float64(entry.RetryCount))
		if elapsed < backoff {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of every tracked retry entry, for read-only
// status surfaces (the dashboard) that must never mutate retry state.
func (m *Manager) Snapshot() map[string]Entry {
	out := make(map[string]Entry, len(m.state))
	for k, v := range m.state {
		out[k] = v
	}
	return out
}

// RecordFailure increments the retry counter for taskID, creating a new
// entry on first failure, and persists the state.
func (m *Manager) RecordFailure(taskID, agent, team string) (Entry, error) {
	now := time.Now().UTC()

	entry, exists := m.state[taskID]
	if exists {
		entry.RetryCount++
		entry.LastRetryTS = now
	} else {
		entry = Entry{
			TaskID:      taskID,
			Agent:       agent,
			Team:        team,
			RetryCount:  1,
			MaxRetries:  m.defaultMax,
			LastRetryTS: now,
		}
	}
	if entry.RetryCount >= entry.MaxRetries {
		entry.Status = StatusExhausted
	} else {
		entry.Status = StatusRetrying
	}
	m.state[taskID] = entry

	return entry, m.save()
}

// RecordSuccess clears retry tracking for taskID.
func (m *Manager) RecordSuccess(taskID string) error {
	if _, ok := m.state[taskID]; !ok {
		return nil
	}
	delete(m.state, taskID)
	return m.save()
}

// GetEntry returns the retry entry for a task, if any.
func (m *Manager) GetEntry(taskID string) (Entry, bool) {
	e, ok := m.state[taskID]
	return e, ok
}

// RetryDirective builds the retry_task directive described in spec.md
// §4.10, signed over its canonical payload.
func RetryDirective(entry Entry, controllerID string) (protocol.Directive, error) {
	d := protocol.Directive{
		DirectiveID: fmt.Sprintf("retry-%s-%d", entry.TaskID, entry.RetryCount),
		TargetAgent: entry.Agent,
		Command:     "retry_task",
		Parameters: map[string]any{
			"original_task_id": entry.TaskID,
			"retry_count":      entry.RetryCount,
			"max_retries":      entry.MaxRetries,
		},
		IssuedBy:    controllerID,
		IssuedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}
	return d.Sign()
}

// EscalationDirective builds the escalate directive described in spec.md
// §4.10, signed over its canonical payload.
func EscalationDirective(entry Entry, reason, controllerID string) (protocol.Directive, error) {
	d := protocol.Directive{
		DirectiveID: fmt.Sprintf("escalate-%s", entry.TaskID),
		TargetAgent: "operator",
		Command:     "escalate",
		Parameters: map[string]any{
			"original_task_id": entry.TaskID,
			"failed_agent":     entry.Agent,
			"team":             entry.Team,
			"retry_count":      entry.RetryCount,
			"reason":           reason,
		},
		IssuedBy:    controllerID,
		IssuedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}
	return d.Sign()
}

// RetryDirectivePath returns the outbox path a retry directive for entry
// should be written to.
func (m *Manager) RetryDirectivePath(entry Entry, ts time.Time) string {
	name := fmt.Sprintf("%s_retry_directive.json", ts.UTC().Format("20060102T150405Z"))
	return filepath.Join(m.outboxDir, entry.Team, entry.Agent, name)
}

// EscalationDirectivePath returns the outbox path an escalation directive
// should be written to.
func (m *Manager) EscalationDirectivePath(ts time.Time) string {
	name := fmt.Sprintf("%s_escalation.json", ts.UTC().Format("20060102T150405Z"))
	return filepath.Join(m.outboxDir, "escalation", name)
}

// CleanupStaleEntries removes entries whose last retry timestamp is older
// than maxAge, returning the count removed.
func (m *Manager) CleanupStaleEntries(maxAge time.Duration) (int, error) {
	now := time.Now().UTC()
	var stale []string
	for taskID, entry := range m.state {
		if entry.LastRetryTS.IsZero() || now.Sub(entry.LastRetryTS) > maxAge {
			stale = append(stale, taskID)
		}
	}
	for _, taskID := range stale {
		delete(m.state, taskID)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	return len(stale), m.save()
}
