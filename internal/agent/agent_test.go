package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/coordctl/coordctl/internal/config"
	"github.com/coordctl/coordctl/internal/protocol"
)

func newTestRunner(t *testing.T) (*Runner, config.Agent) {
	t.Helper()
	cfg := config.DefaultAgent()
	cfg.ProjectRoot = t.TempDir()
	cfg.AgentID = "sheets-worker-01"
	cfg.AgentKind = "spreadsheet"
	cfg.TeamID = "sheets-team"
	cfg.LockTimeoutSec = 5
	cfg.LockMaxRetries = 1
	cfg.RateRequestsPerMinute = 1000
	cfg.RateRequestsPerDay = 100000
	cfg.RateMaxWaitSec = 1

	return New(cfg), cfg
}

func writeTaskFile(t *testing.T, path string, task map[string]any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func baseTask(taskID string) map[string]any {
	return map[string]any{
		"task_id":    taskID,
		"user_id":    "user-1",
		"team_id":    "sheets-team",
		"agent_kind": "spreadsheet",
		"request": map[string]any{
			"operation":  "update",
			"sheet_id":   "sheet-1",
			"sheet_name": "Sheet1",
			"range":      "A1",
		},
	}
}

func TestRunOnceProcessesFileTaskAndArchivesIt(t *testing.T) {
	r, cfg := newTestRunner(t)

	taskPath := filepath.Join(cfg.InboxDir(), "task1.json")
	writeTaskFile(t, taskPath, baseTask("task-1"))

	processed, err := r.RunOnce()
	if err != nil {
		t.Fatal(err)
	}
	if !processed {
		t.Fatal("expected RunOnce to report processed=true")
	}

	if _, err := os.Stat(filepath.Join(cfg.InboxDir(), "task1.done.json")); err != nil {
		t.Fatalf("expected task to be archived with .done suffix: %v", err)
	}

	entries, err := os.ReadDir(cfg.OutboxDir())
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected exactly one report written, err=%v entries=%v", err, entries)
	}
}

func TestRunOnceNoTaskIsNoop(t *testing.T) {
	r, _ := newTestRunner(t)

	processed, err := r.RunOnce()
	if err != nil {
		t.Fatal(err)
	}
	if processed {
		t.Fatal("expected processed=false when inbox is empty")
	}
}

func TestRunOnceInvalidTaskWritesErrorReport(t *testing.T) {
	r, cfg := newTestRunner(t)

	taskPath := filepath.Join(cfg.InboxDir(), "bad.json")
	writeTaskFile(t, taskPath, map[string]any{"task_id": "task-bad"})

	processed, err := r.RunOnce()
	if err != nil {
		t.Fatal(err)
	}
	if !processed {
		t.Fatal("expected processed=true even for an invalid task (an error report is still written)")
	}

	entries, err := os.ReadDir(cfg.OutboxDir())
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one error report, err=%v entries=%v", err, entries)
	}
	data, err := os.ReadFile(filepath.Join(cfg.OutboxDir(), entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	var rep protocol.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Status != protocol.ReportError {
		t.Fatalf("expected status=error, got %s", rep.Status)
	}
}

func TestRunOnceIsIdempotentWhenReportAlreadyExists(t *testing.T) {
	r, cfg := newTestRunner(t)

	existingReport := protocol.Report{Agent: cfg.AgentID, TaskID: "task-dup", Status: protocol.ReportSuccess}
	data, err := json.Marshal(existingReport)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.OutboxDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.OutboxDir(), "existing_report.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	taskPath := filepath.Join(cfg.InboxDir(), "dup.json")
	writeTaskFile(t, taskPath, baseTask("task-dup"))

	processed, err := r.RunOnce()
	if err != nil {
		t.Fatal(err)
	}
	if !processed {
		t.Fatal("expected idempotent skip to still report processed=true")
	}

	entries, err := os.ReadDir(cfg.OutboxDir())
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected no new report to be written, entries=%v", entries)
	}
	if _, err := os.Stat(filepath.Join(cfg.InboxDir(), "dup.done.json")); err != nil {
		t.Fatalf("expected the duplicate task to still be archived: %v", err)
	}
}

func TestRunOnceAppendsHealthFile(t *testing.T) {
	r, cfg := newTestRunner(t)

	taskPath := filepath.Join(cfg.InboxDir(), "task2.json")
	writeTaskFile(t, taskPath, baseTask("task-2"))

	if _, err := r.RunOnce(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(cfg.HealthFile()); err != nil {
		t.Fatalf("expected health file to be written: %v", err)
	}
}

func TestRunOnceClearRangeProducesNeedsReviewReport(t *testing.T) {
	r, cfg := newTestRunner(t)

	task := baseTask("task-3")
	task["request"].(map[string]any)["operation"] = "clear_range"
	taskPath := filepath.Join(cfg.InboxDir(), "task3.json")
	writeTaskFile(t, taskPath, task)

	if _, err := r.RunOnce(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(cfg.OutboxDir())
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one report, err=%v entries=%v", err, entries)
	}
	data, err := os.ReadFile(filepath.Join(cfg.OutboxDir(), entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	var rep protocol.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Status != protocol.ReportNeedsReview {
		t.Fatalf("expected needs_review for clear_range, got %s", rep.Status)
	}
}
