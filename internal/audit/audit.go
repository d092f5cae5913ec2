// Package audit writes one structured record per agent invocation, grounded
// on original_source/Controller/controller_audit_logger.py's entry shape
// (op_steps, checksums, runtime metrics, typed error) adapted from a
// per-cycle Controller record to the per-agent record of spec.md §4.7.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coordctl/coordctl/internal/hashmgr"
	"github.com/coordctl/coordctl/internal/statestore"
)

// SchemaVersion is stamped on every audit entry so future readers can
// distinguish record shapes across releases.
const SchemaVersion = 1

// OpStep is one named step in an invocation, with its own timestamp.
type OpStep struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorInfo captures a typed failure: class name, message, and stack.
// Record fills Type and Message only; Stack is left empty.
type ErrorInfo struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Stack   []string `json:"stack,omitempty"`
}

// Metrics is the runtime-metrics block of an audit entry.
type Metrics struct {
	DurationMs float64 `json:"duration_ms"`
}

// Entry is one audit record for a single agent invocation.
type Entry struct {
	SchemaVersion    int       `json:"schema_version"`
	TimestampUTC     time.Time `json:"timestamp_utc"`
	TaskID           string    `json:"task_id"`
	AgentID          string    `json:"agent_id"`
	UserID           string    `json:"user_id"`
	TeamID           string    `json:"team_id"`
	ConfigVersion    string    `json:"config_version"`
	OpSteps          []OpStep  `json:"op_steps"`
	ReportRef        string    `json:"report_ref,omitempty"`
	ReportChecksum   *string   `json:"report_checksum"`
	Error            *ErrorInfo `json:"error"`
	RuntimeMetrics   Metrics   `json:"runtime_metrics"`
}

// Logger writes one JSON file per invocation under baseDir/<agent_id>/.
type Logger struct {
	baseDir string
}

// New returns a Logger rooted at baseDir.
func New(baseDir string) *Logger {
	return &Logger{baseDir: baseDir}
}

// Record builds and writes an Entry. report may be nil (no report was
// generated, e.g. the task failed before one could be built); when
// non-nil, its SHA-256 canonical-JSON hash becomes ReportChecksum. invErr
// may be nil.
func (l *Logger) Record(agentID, taskID, userID, teamID, configVersion string, steps []OpStep, reportRef string, report map[string]any, invErr error, duration time.Duration) (string, error) {
	entry := Entry{
		SchemaVersion:  SchemaVersion,
		TimestampUTC:   time.Now().UTC(),
		TaskID:         taskID,
		AgentID:        agentID,
		UserID:         userID,
		TeamID:         teamID,
		ConfigVersion:  configVersion,
		OpSteps:        steps,
		ReportRef:      reportRef,
		RuntimeMetrics: Metrics{DurationMs: float64(duration.Microseconds()) / 1000.0},
	}

	if report != nil {
		sum, err := hashmgr.Compute(report)
		if err != nil {
			return "", err
		}
		entry.ReportChecksum = &sum
	}

	if invErr != nil {
		entry.Error = &ErrorInfo{
			Type:    fmt.Sprintf("%T", invErr),
			Message: invErr.Error(),
		}
	}

	dir := filepath.Join(l.baseDir, agentID)
	tsSlug := entry.TimestampUTC.Format("20060102T150405Z")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", tsSlug, taskID))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := statestore.Save(path, entry); err != nil {
		return "", err
	}
	return path, nil
}
