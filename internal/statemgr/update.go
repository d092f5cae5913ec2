package statemgr

import (
	"os"
	"strings"

	"github.com/coordctl/coordctl/internal/statedoc"
)

// Update runs the full ten-step authoritative document update pipeline of
// spec.md §4.11. Any failure from step 3 onward triggers rollback: restore
// from the step-2 backup, log the error, append a mistake entry and a
// degraded health entry, then release the lock.
func (m *Manager) Update(req UpdateRequest) UpdateResult {
	// 1 — acquire the state-document lock.
	if err := m.locker.Acquire(stateLockResourceID, req.RequestID); err != nil {
		return UpdateResult{Success: false, RequestID: req.RequestID, Errors: []string{err.Error()}}
	}
	defer m.locker.Release(stateLockResourceID)

	var backupPath string
	fail := func(errMsg string) UpdateResult {
		if backupPath != "" {
			if err := m.RestoreState(backupPath); err != nil {
				log.Printf("restore backup %s failed: %v", backupPath, err)
			}
		}
		if err := m.hasher.Log("", "update", req.RequestID, "error", errMsg); err != nil {
			log.Printf("log error entry: %v", err)
		}
		m.appendMistake(req.RequestID, errMsg)
		m.appendHealth("degraded", "", []string{errMsg})
		return UpdateResult{Success: false, RequestID: req.RequestID, Errors: []string{errMsg}}
	}

	// 2 — backup the current document, if one exists.
	if _, err := os.Stat(m.statePath); err == nil {
		bp, err := m.BackupState()
		if err != nil {
			return fail(err.Error())
		}
		backupPath = bp
	}

	// 3 — load and parse the current document.
	current, err := m.LoadState()
	if err != nil {
		return fail(err.Error())
	}

	// 4 — validate changes against the current document.
	validation := statedoc.ValidateChanges(current, req.Changes)
	if !validation.Valid {
		return fail(strings.Join(validation.Errors, "; "))
	}

	// 5 — apply changes.
	statedoc.Apply(&current, req.Changes)

	// 6 — render and save atomically.
	stateHash, err := m.SaveState(current)
	if err != nil {
		return fail(err.Error())
	}

	// 7 — log the hash to the audit log.
	if err := m.hasher.Log(stateHash, "update", req.RequestID, "ok", ""); err != nil {
		return fail(err.Error())
	}

	// 8 — append a health entry.
	m.appendHealth("healthy", stateHash, nil)

	// 9 — append a changelog entry.
	m.appendChangelog(req, len(req.Changes))

	// 10 — release happens via the deferred call above.
	return UpdateResult{Success: true, RequestID: req.RequestID, StateHash: stateHash, Warnings: validation.Warnings}
}
