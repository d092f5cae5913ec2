package controller

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coordctl/coordctl/internal/audit"
	"github.com/coordctl/coordctl/internal/hashmgr"
	"github.com/coordctl/coordctl/internal/schema"
	"github.com/coordctl/coordctl/internal/statestore"
)

// ProcessedReport summarizes the outcome of handling one inbox report file.
type ProcessedReport struct {
	File     string   `json:"file"`
	Agent    string   `json:"agent,omitempty"`
	TaskID   string   `json:"task_id,omitempty"`
	Status   string   `json:"status,omitempty"`
	Checksum string   `json:"checksum,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// StateChange is one state-affecting event recorded during a cycle.
type StateChange struct {
	Type        string `json:"type"`
	Team        string `json:"team,omitempty"`
	Agent       string `json:"agent,omitempty"`
	TaskID      string `json:"task_id,omitempty"`
	CandidateID string `json:"candidate_id,omitempty"`
	Status      string `json:"status,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// SelfReport is the Controller's own processing summary, written to its
// inbox folder at the end of every cycle — mirrors
// controller_report_generator.py's generate_processing_report shape.
type SelfReport struct {
	Agent             string            `json:"agent"`
	ControllerID      string            `json:"controller_id"`
	TaskID            string            `json:"task_id"`
	Status            string            `json:"status"`
	Summary           string            `json:"summary"`
	ProcessedReports  []ProcessedReport `json:"processed_reports"`
	DirectivesEmitted []string          `json:"directives_emitted"`
	StateChanges      []StateChange     `json:"state_changes"`
	Errors            []string          `json:"errors"`
	Metrics           map[string]int    `json:"metrics"`
	TimestampUTC      string            `json:"timestamp_utc"`
	Version           int               `json:"version"`
}

func nowUTC() time.Time { return time.Now().UTC() }

func newCycleTaskID() string {
	return "ctrl-" + nowUTC().Format("20060102T150405Z")
}

// RunOnce scans the inbox once, processes every eligible report, emits
// directives and a self-report, writes the audit record, and runs a
// system-wide health check. Returns true if at least one report was
// processed. teamFilter, if non-empty, restricts the scan to that team.
func (c *Controller) RunOnce(teamFilter string) (bool, error) {
	t0 := time.Now()
	taskID := newCycleTaskID()

	var opSteps []audit.OpStep
	step := func(name string) {
		opSteps = append(opSteps, audit.OpStep{Name: name, Timestamp: time.Now().UTC()})
	}

	lockedResources := map[string]bool{}
	defer func() {
		for resourceID := range lockedResources {
			if err := c.lockMgr.Release(resourceID); err != nil {
				log.Printf("release %s failed: %v", resourceID, err)
			}
		}
	}()

	step("scan_inbox")
	reportPaths, err := c.scanInbox(teamFilter)
	if err != nil {
		return false, err
	}

	if len(reportPaths) == 0 {
		log.Printf("no reports found in inbox — nothing to do")
		c.runHealthSideEffects()
		return false, nil
	}
	log.Printf("found %d report(s) to process", len(reportPaths))

	var processed []ProcessedReport
	var directivesEmitted []string
	var stateChanges []StateChange

	for _, reportPath := range reportPaths {
		team := c.extractTeam(reportPath)
		resourceID := "inbox-global"
		if team != "" {
			resourceID = "inbox-" + team
		}

		if !lockedResources[resourceID] {
			step("acquire_lock_" + resourceID)
			if err := c.lockMgr.Acquire(resourceID, taskID); err != nil {
				log.Printf("cannot lock %s, skipping: %v", resourceID, err)
				continue
			}
			lockedResources[resourceID] = true
		}

		name := filepath.Base(reportPath)

		step("verify_" + name)
		data, checksum, ok, err := c.verifyReport(reportPath)
		if err != nil {
			log.Printf("reading %s failed: %v", reportPath, err)
			continue
		}
		if !ok {
			log.Printf("report %s failed integrity check (hash %s), skipping", reportPath, checksum)
			processed = append(processed, ProcessedReport{File: name, Status: "tampered", Checksum: checksum})
			continue
		}

		step("parse_" + name)
		result := schema.ValidateReport(data)
		if !result.OK {
			log.Printf("report %s validation failed: %v", reportPath, result.Errors)
			processed = append(processed, ProcessedReport{File: name, Status: "invalid", Errors: result.Errors})
			continue
		}

		agentName, _ := data["agent"].(string)
		if agentName == "" {
			agentName = "unknown"
		}
		reportTaskID, _ := data["task_id"].(string)
		if reportTaskID == "" {
			reportTaskID = "unknown"
		}
		reportStatus, _ := data["status"].(string)
		if reportStatus == "" {
			reportStatus = "unknown"
		}

		step("process_" + name)
		processed = append(processed, ProcessedReport{
			File: name, Agent: agentName, TaskID: reportTaskID, Status: reportStatus, Checksum: checksum,
		})

		reportTeam := team
		if reportTeam == "" {
			reportTeam = "unknown"
		}
		directivesEmitted = append(directivesEmitted, c.dispatchByStatus(reportStatus, reportTaskID, agentName, reportTeam, data, &stateChanges)...)

		hashPath := reportPath + ".hash"
		if _, err := os.Stat(hashPath); os.IsNotExist(err) {
			if err := os.WriteFile(hashPath, []byte(checksum), 0o644); err != nil {
				log.Printf("write hash companion for %s failed: %v", reportPath, err)
			}
		}

		stateChanges = append(stateChanges, StateChange{
			Type:      "report_processed",
			Team:      reportTeam,
			Agent:     agentName,
			TaskID:    reportTaskID,
			Status:    reportStatus,
			Timestamp: nowUTC().Format(time.RFC3339),
		})

		if err := c.markProcessed(reportPath); err != nil {
			log.Printf("marking %s processed failed: %v", reportPath, err)
		}
		log.Printf("processed report from %s (task %s, status=%s)", agentName, reportTaskID, reportStatus)
	}

	step("generate_report")
	selfReport := SelfReport{
		Agent:             "controller",
		ControllerID:      c.cfg.ControllerID,
		TaskID:            taskID,
		Status:            "success",
		Summary:           fmt.Sprintf("Processed %d reports, emitted %d directives", len(processed), len(directivesEmitted)),
		ProcessedReports:  processed,
		DirectivesEmitted: directivesEmitted,
		StateChanges:      stateChanges,
		Errors:            []string{},
		Metrics:           map[string]int{"reports_processed": len(processed), "directives_emitted": len(directivesEmitted)},
		TimestampUTC:      nowUTC().Format("2006-01-02T15:04:05Z"),
		Version:           c.cfg.Version,
	}

	step("write_self_report")
	selfReportPath := filepath.Join(c.cfg.InboxDir(), "controller", nowUTC().Format("20060102T150405Z")+"_self_report.json")
	if err := statestore.Save(selfReportPath, selfReport); err != nil {
		log.Printf("writing self-report failed: %v", err)
	}

	step("finalize")
	var reportMap map[string]any
	if b, err := json.Marshal(selfReport); err == nil {
		_ = json.Unmarshal(b, &reportMap)
	}
	if _, err := c.audit.Record(c.cfg.ControllerID, taskID, "", "", fmt.Sprint(c.cfg.Version), opSteps, selfReportPath, reportMap, nil, time.Since(t0)); err != nil {
		log.Printf("writing audit record failed: %v", err)
	}

	c.runHealthSideEffects()

	return len(processed) > 0, nil
}

// runHealthSideEffects runs the system-wide health check and escalates any
// agent classified as down.
func (c *Controller) runHealthSideEffects() {
	summary := c.health.CheckAll()
	if err := c.health.WriteSystemHealthReport(c.cfg.SystemHealthFile(), summary); err != nil {
		log.Printf("writing system health report failed: %v", err)
	}

	for _, downAgent := range summary.Down {
		reason := fmt.Sprintf("agent %s is down", downAgent)
		healthTaskID := "health-" + downAgent

		entry, err := c.retry.RecordFailure(healthTaskID, downAgent, "system")
		if err != nil {
			log.Printf("recording health-failure entry for %s failed: %v", downAgent, err)
			continue
		}
		directive, err := c.retry.EscalationDirective(entry, reason, c.cfg.ControllerID)
		if err != nil {
			log.Printf("building escalation directive for %s failed: %v", downAgent, err)
			continue
		}
		path := c.retry.EscalationDirectivePath(nowUTC())
		if err := statestore.Save(path, directive); err != nil {
			log.Printf("writing escalation directive for %s failed: %v", downAgent, err)
			continue
		}
		c.notify.NotifyEscalation(directive)
		log.Printf("escalation emitted: %s", reason)
	}
}

// dispatchByStatus applies the per-status handling of spec.md §4.12 step 6
// and returns the filenames of any directives emitted for this report.
func (c *Controller) dispatchByStatus(status, taskID, agent, team string, data map[string]any, stateChanges *[]StateChange) []string {
	switch status {
	case "success":
		if err := c.retry.RecordSuccess(taskID); err != nil {
			log.Printf("recording success for %s failed: %v", taskID, err)
		}
		return nil

	case "error", "failure":
		if c.retry.ShouldRetry(taskID) {
			entry, err := c.retry.RecordFailure(taskID, agent, team)
			if err != nil {
				log.Printf("recording failure for %s failed: %v", taskID, err)
				return nil
			}
			directive, err := c.retry.RetryDirective(entry, c.cfg.ControllerID)
			if err != nil {
				log.Printf("signing retry directive failed: %v", err)
				return nil
			}
			path := c.retry.RetryDirectivePath(entry, nowUTC())
			if err := statestore.Save(path, directive); err != nil {
				log.Printf("writing retry directive failed: %v", err)
				return nil
			}
			log.Printf("retry directive emitted for task %s (attempt %d/%d)", taskID, entry.RetryCount, entry.MaxRetries)
			return []string{filepath.Base(path)}
		}

		entry, err := c.retry.RecordFailure(taskID, agent, team)
		if err != nil {
			log.Printf("recording failure for %s failed: %v", taskID, err)
			return nil
		}
		reason := fmt.Sprintf("max retries (%d) exhausted for task %s on agent %s", entry.MaxRetries, taskID, agent)
		directive, err := c.retry.EscalationDirective(entry, reason, c.cfg.ControllerID)
		if err != nil {
			log.Printf("building escalation directive failed: %v", err)
			return nil
		}
		path := c.retry.EscalationDirectivePath(nowUTC())
		if err := statestore.Save(path, directive); err != nil {
			log.Printf("writing escalation directive failed: %v", err)
			return nil
		}
		c.notify.NotifyEscalation(directive)
		log.Printf("escalation emitted for task %s: %s", taskID, reason)
		return []string{filepath.Base(path)}

	case "needs_review":
		candidateID, err := c.handleNeedsReview(data, agent, taskID, team, stateChanges)
		if err != nil {
			log.Printf("handling needs_review for %s failed: %v", taskID, err)
			return nil
		}
		log.Printf("report %s from %s queued for human review as %s", taskID, agent, candidateID)
		return nil
	}
	return nil
}

// scanInbox finds unprocessed report JSON files, excluding .processed.json,
// .hash companions, self-reports, and example paths, applying an optional
// team filter (the inbox root's first path segment).
func (c *Controller) scanInbox(teamFilter string) ([]string, error) {
	root := c.cfg.InboxDir()
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var found []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if !strings.HasSuffix(name, ".json") {
			return nil
		}
		if strings.HasSuffix(name, ".processed.json") || strings.HasSuffix(name, ".hash") {
			return nil
		}
		if strings.Contains(name, "_self_report") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && strings.Contains(rel, "example") {
			return nil
		}
		if teamFilter != "" {
			parts := strings.Split(filepath.ToSlash(rel), "/")
			if len(parts) == 0 || parts[0] != teamFilter {
				return nil
			}
		}
		found = append(found, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}

// extractTeam returns the first path segment of reportPath relative to the
// inbox root, or "" if it cannot be determined.
func (c *Controller) extractTeam(reportPath string) string {
	rel, err := filepath.Rel(c.cfg.InboxDir(), reportPath)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// verifyReport reads and decodes reportPath, computes its canonical-JSON
// checksum, and compares it against a companion .hash file if one exists.
func (c *Controller) verifyReport(reportPath string) (map[string]any, string, bool, error) {
	raw, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, "", false, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, "", false, nil
	}

	checksum, err := hashmgr.Compute(data)
	if err != nil {
		return nil, "", false, err
	}

	hashPath := reportPath + ".hash"
	stored, err := os.ReadFile(hashPath)
	if err != nil {
		return data, checksum, true, nil
	}
	if strings.TrimSpace(string(stored)) != checksum {
		return data, checksum, false, nil
	}
	return data, checksum, true, nil
}

// markProcessed renames a report file to "<name-without-ext>.processed.json"
// — append-only, never delete, preserving the audit trail.
func (c *Controller) markProcessed(reportPath string) error {
	ext := filepath.Ext(reportPath)
	base := strings.TrimSuffix(reportPath, ext)
	return os.Rename(reportPath, base+".processed"+ext)
}
