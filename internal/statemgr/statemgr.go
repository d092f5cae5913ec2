// Package statemgr wraps internal/statedoc with the full authoritative
// document update pipeline of spec.md §4.11: lock, backup, validate,
// apply, save+checksum, health/changelog append, and rollback-on-error.
// Grounded on original_source/Orchestrator/state_manager.py.
package statemgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coordctl/coordctl/internal/hashmgr"
	"github.com/coordctl/coordctl/internal/lock"
	"github.com/coordctl/coordctl/internal/logging"
	"github.com/coordctl/coordctl/internal/statedoc"
)

func marshalLine(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

var log = logging.New("statemgr")

// maxBackups mirrors state_processor.py's MAX_BACKUPS.
const maxBackups = 100

const stateLockResourceID = "authoritative_state_document"

// UpdateRequest carries one State-affecting change batch from the
// Controller. Origin must equal "controller" — enforced by the caller,
// this package only records it.
type UpdateRequest struct {
	Origin    string
	Changes   []statedoc.Change
	Reason    string
	RequestID string
}

// UpdateResult is the outcome of Manager.Update.
type UpdateResult struct {
	Success   bool
	RequestID string
	StateHash string
	Errors    []string
	Warnings  []string
}

// Manager owns the single authoritative state document and every path
// derived from it: backups, the companion checksum file, the audit log,
// and the three append-only side logs (health, changelog, mistake).
type Manager struct {
	statePath     string
	backupDir     string
	healthPath    string
	changelogPath string
	mistakePath   string

	locker *lock.Manager
	hasher *hashmgr.Manager
}

// New returns a Manager. locker should be configured with a timeout and
// owner id appropriate for the Controller process; it is used solely to
// serialize access to the document itself.
func New(statePath, backupDir, healthPath, changelogPath, mistakePath string, locker *lock.Manager, hasher *hashmgr.Manager) *Manager {
	return &Manager{
		statePath:     statePath,
		backupDir:     backupDir,
		healthPath:    healthPath,
		changelogPath: changelogPath,
		mistakePath:   mistakePath,
		locker:        locker,
		hasher:        hasher,
	}
}

// LoadState parses the current document from disk, or returns a fresh
// empty one if the file does not yet exist.
func (m *Manager) LoadState() (statedoc.Document, error) {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			now := time.Now().UTC()
			return statedoc.NewEmpty(now.Format(time.RFC3339), now.Format("2006-01-02")), nil
		}
		return statedoc.Document{}, err
	}
	return statedoc.Parse(string(data)), nil
}

// SaveState renders doc and writes it atomically, then writes the
// companion checksum file. Returns the checksum.
func (m *Manager) SaveState(doc statedoc.Document) (string, error) {
	content := statedoc.Render(doc)
	hash := statedoc.Checksum(content)

	if err := os.MkdirAll(filepath.Dir(m.statePath), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.statePath), filepath.Base(m.statePath)+".*.tmp")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, m.statePath); err != nil {
		return "", err
	}

	hashPath := m.hashPath()
	if err := os.WriteFile(hashPath, []byte(hash+"\n"), 0o644); err != nil {
		return "", err
	}
	return hash, nil
}

func (m *Manager) hashPath() string {
	return strings.TrimSuffix(m.statePath, filepath.Ext(m.statePath)) + ".md.hash"
}

// BackupState copies the current document to a timestamped file in
// backupDir, pruning old backups beyond maxBackups.
func (m *Manager) BackupState() (string, error) {
	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return "", err
	}

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		return "", err
	}

	ts := time.Now().UTC().Format("20060102T150405Z")
	backupPath := filepath.Join(m.backupDir, fmt.Sprintf(".state_backup_%s.md", ts))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", err
	}

	m.pruneBackups()
	return backupPath, nil
}

func (m *Manager) pruneBackups() {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), ".state_backup_") && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) <= maxBackups {
		return
	}
	for _, old := range names[:len(names)-maxBackups] {
		_ = os.Remove(filepath.Join(m.backupDir, old))
	}
}

// RestoreState overwrites the live document with the contents of backupPath.
func (m *Manager) RestoreState(backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return err
	}
	return os.WriteFile(m.statePath, data, 0o644)
}

// VerifyIntegrity checks the live document for structural and referential
// consistency and, when the companion checksum file exists, reports a
// "Checksum mismatch" error if the document text no longer matches it.
func (m *Manager) VerifyIntegrity() (statedoc.VerifyResult, error) {
	doc, err := m.LoadState()
	if err != nil {
		return statedoc.VerifyResult{}, err
	}
	result := statedoc.Verify(doc)
	if data, err := os.ReadFile(m.statePath); err == nil {
		if want, err := os.ReadFile(m.hashPath()); err == nil {
			expected := strings.TrimSpace(string(want))
			if got := statedoc.Checksum(string(data)); got != expected {
				result.Errors = append(result.Errors, fmt.Sprintf("Checksum mismatch: expected %s, got %s", expected, got))
				result.OK = false
			}
		}
	}
	return result, nil
}

// safeAppend appends content to path with an explicit fsync, creating
// parent directories on first write — the Go equivalent of
// state_manager.py's module-level _safe_append.
func safeAppend(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return err
	}
	return f.Sync()
}

func (m *Manager) appendHealth(status, stateHash string, errs []string) {
	entry := struct {
		Timestamp string   `json:"timestamp"`
		Status    string   `json:"status"`
		StateHash string   `json:"state_hash"`
		Errors    []string `json:"errors"`
	}{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		StateHash: stateHash,
		Errors:    errs,
	}
	line, err := marshalLine(entry)
	if err != nil {
		log.Printf("marshal health entry: %v", err)
		return
	}
	if err := safeAppend(m.healthPath, line); err != nil {
		log.Printf("append health entry: %v", err)
	}
}

func (m *Manager) appendChangelog(req UpdateRequest, changeCount int) {
	now := time.Now().UTC().Format(time.RFC3339)
	entry := fmt.Sprintf(
		"\n## [%s] %s\n- **operation**: state_update\n- **origin**: %s\n- **changes**: %d\n- **reason**: %s\n",
		now, req.RequestID, req.Origin, changeCount, req.Reason,
	)
	if err := safeAppend(m.changelogPath, entry); err != nil {
		log.Printf("append changelog entry: %v", err)
	}
}

func (m *Manager) appendMistake(requestID, errMsg string) {
	now := time.Now().UTC().Format(time.RFC3339)
	entry := fmt.Sprintf(
		"\n## [%s] %s\n- **error**: %s\n- **operation**: state_update\n- **remediation**: review change validity and retry\n",
		now, requestID, errMsg,
	)
	if err := safeAppend(m.mistakePath, entry); err != nil {
		log.Printf("append mistake entry: %v", err)
	}
}
