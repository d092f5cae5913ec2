// Package hashmgr computes deterministic SHA-256 digests over canonical JSON
// and appends one audit record per line to an append-only log file, with an
// explicit fsync on every append.
//
// This hash is distinct from the authoritative state document's own
// checksum (internal/statedoc.Checksum), which hashes the rendered markdown
// text directly rather than a canonical-JSON encoding of a value. The two
// conventions come from different parts of the original system and are
// preserved as separate functions rather than unified — see DESIGN.md.
package hashmgr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/coordctl/coordctl/internal/canonjson"
)

// Manager appends audit records to a single JSONL file.
type Manager struct {
	logPath string
}

// New returns a Manager that appends to logPath, creating parent
// directories on first write.
func New(logPath string) *Manager {
	return &Manager{logPath: logPath}
}

// Compute returns the hex-encoded SHA-256 digest of the canonical JSON
// encoding of value (object keys sorted), independent of the original
// map-key insertion order or incidental whitespace.
func Compute(value any) (string, error) {
	canonical, err := canonjson.Marshal(value)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Entry is one line appended to the audit log.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Hash      string `json:"hash"`
	Operation string `json:"operation"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Log appends one JSON object describing a hashed operation outcome.
// status is "ok" on success or "error" with a non-empty errMsg on failure.
func (m *Manager) Log(hash, operation, requestID, status, errMsg string) error {
	if err := os.MkdirAll(filepath.Dir(m.logPath), 0o755); err != nil {
		return err
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Hash:      hash,
		Operation: operation,
		RequestID: requestID,
		Status:    status,
		Error:     errMsg,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	f, err := os.OpenFile(m.logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return err
	}
	return f.Sync()
}

