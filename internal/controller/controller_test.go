package controller

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/coordctl/coordctl/internal/config"
)

func newTestController(t *testing.T) (*Controller, config.Controller) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.ProjectRoot = root
	cfg.ControllerID = "controller-test"
	cfg.LockTimeoutSec = 5
	cfg.LockMaxRetries = 1
	cfg.HealthDegradedFailures = 100
	cfg.HealthDownFailures = 100
	cfg.AgentHealthPaths = map[string]string{}

	return New(cfg), cfg
}

func writeReportFile(t *testing.T, path string, fields map[string]any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func baseReportFields(agent, taskID, status string) map[string]any {
	return map[string]any{
		"agent":    agent,
		"task_id":  taskID,
		"status":   status,
		"summary":  "did some work",
		"metrics":  map[string]any{"duration_ms": 12.5},
		"errors":   []any{},
	}
}

func TestRunOnceProcessesSuccessReport(t *testing.T) {
	c, cfg := newTestController(t)

	reportPath := filepath.Join(cfg.InboxDir(), "teamA", "report1.json")
	writeReportFile(t, reportPath, baseReportFields("agent-1", "task-1", "success"))

	processed, err := c.RunOnce("")
	if err != nil {
		t.Fatal(err)
	}
	if !processed {
		t.Fatal("expected RunOnce to report processed=true")
	}

	if _, err := os.Stat(filepath.Join(cfg.InboxDir(), "teamA", "report1.processed.json")); err != nil {
		t.Fatalf("expected report to be marked processed: %v", err)
	}
	if _, err := os.Stat(reportPath + ".hash"); err != nil {
		t.Fatalf("expected hash companion to be written: %v", err)
	}

	selfReportDir := filepath.Join(cfg.InboxDir(), "controller")
	entries, err := os.ReadDir(selfReportDir)
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected a self-report to be written, err=%v entries=%v", err, entries)
	}
}

func TestRunOnceTamperedReportIsFlaggedAndNotProcessed(t *testing.T) {
	c, cfg := newTestController(t)

	reportPath := filepath.Join(cfg.InboxDir(), "teamA", "report1.json")
	writeReportFile(t, reportPath, baseReportFields("agent-1", "task-1", "success"))
	if err := os.WriteFile(reportPath+".hash", []byte("not-the-real-hash"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := c.RunOnce(""); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(cfg.InboxDir(), "teamA", "report1.processed.json")); err == nil {
		t.Fatal("tampered report should not be marked processed")
	}
	if _, err := os.Stat(reportPath); err != nil {
		t.Fatalf("tampered report should be left in place: %v", err)
	}
}

func TestRunOnceInvalidReportIsSkipped(t *testing.T) {
	c, cfg := newTestController(t)

	reportPath := filepath.Join(cfg.InboxDir(), "teamA", "bad.json")
	writeReportFile(t, reportPath, map[string]any{"agent": "agent-1"})

	if _, err := c.RunOnce(""); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(cfg.InboxDir(), "teamA", "bad.processed.json")); err == nil {
		t.Fatal("invalid report should not be marked processed")
	}
}

func TestRunOnceNeedsReviewWritesCandidate(t *testing.T) {
	c, cfg := newTestController(t)

	fields := baseReportFields("agent-1", "task-2", "needs_review")
	fields["review_reasons"] = []any{"touches production credentials"}
	reportPath := filepath.Join(cfg.InboxDir(), "teamA", "report2.json")
	writeReportFile(t, reportPath, fields)

	if _, err := c.RunOnce(""); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(cfg.CandidatesDir())
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected exactly one candidate file, err=%v entries=%v", err, entries)
	}
}

func TestRunOnceErrorReportEmitsRetryDirective(t *testing.T) {
	c, cfg := newTestController(t)

	fields := baseReportFields("agent-1", "task-3", "error")
	reportPath := filepath.Join(cfg.InboxDir(), "teamA", "report3.json")
	writeReportFile(t, reportPath, fields)

	if _, err := c.RunOnce(""); err != nil {
		t.Fatal(err)
	}

	var found bool
	_ = filepath.Walk(cfg.OutboxDir(), func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			found = true
		}
		return nil
	})
	if !found {
		t.Fatal("expected a retry directive to be written under the outbox")
	}
}

func TestRunOnceNoReportsIsNoop(t *testing.T) {
	c, _ := newTestController(t)

	processed, err := c.RunOnce("")
	if err != nil {
		t.Fatal(err)
	}
	if processed {
		t.Fatal("expected processed=false when the inbox is empty")
	}
}

func TestProcessTaskDispatchesCheckHealth(t *testing.T) {
	c, _ := newTestController(t)

	task := Task{TaskID: "t-1", Skill: "check_health"}
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "task.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := c.ProcessTask(path)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected check_health task to succeed")
	}
}

func TestProcessTaskDispatchesEmitDirective(t *testing.T) {
	c, cfg := newTestController(t)

	task := Task{
		TaskID: "t-2",
		Skill:  "emit_directive",
		Input: map[string]any{
			"directive": map[string]any{
				"target_agent": "agent-1",
				"command":      "run_task",
				"team":         "teamA",
			},
		},
	}
	ok, err := c.dispatchTask(task)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected emit_directive to succeed")
	}

	dir := filepath.Join(cfg.OutboxDir(), "teamA", "agent-1")
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one directive file, err=%v entries=%v", err, entries)
	}
}

func TestProcessTaskDispatchesRerouteTask(t *testing.T) {
	c, cfg := newTestController(t)

	task := Task{
		TaskID: "t-3",
		Skill:  "reroute_task",
		Input: map[string]any{
			"task_id":    "original-task",
			"from_agent": "agent-1",
			"to_agent":   "agent-2",
			"team":       "teamA",
			"reason":     "agent-1 repeatedly timing out",
		},
	}
	ok, err := c.dispatchTask(task)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected reroute_task to succeed")
	}

	dir := filepath.Join(cfg.OutboxDir(), "teamA", "agent-2")
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one reroute directive file, err=%v entries=%v", err, entries)
	}
}

func TestProcessTaskDispatchesAggregateTeamReports(t *testing.T) {
	c, cfg := newTestController(t)

	writeReportFile(t, filepath.Join(cfg.InboxDir(), "teamA", "r1.json"), baseReportFields("agent-1", "task-1", "success"))
	writeReportFile(t, filepath.Join(cfg.InboxDir(), "teamA", "r2.processed.json"), baseReportFields("agent-1", "task-2", "success"))

	task := Task{TaskID: "t-4", Skill: "aggregate_team_reports", Input: map[string]any{"team": "teamA"}}
	ok, err := c.dispatchTask(task)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected aggregate_team_reports to succeed")
	}

	aggPath := filepath.Join(cfg.StateDir(), "team_reports", "teamA_aggregate.json")
	data, err := os.ReadFile(aggPath)
	if err != nil {
		t.Fatal(err)
	}
	var summary map[string]any
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatal(err)
	}
	if summary["pending"].(float64) != 1 {
		t.Fatalf("expected 1 pending report, got %v", summary["pending"])
	}
	if summary["processed"].(float64) != 1 {
		t.Fatalf("expected 1 processed report, got %v", summary["processed"])
	}
}

func TestProcessTaskUnknownSkillReturnsFalse(t *testing.T) {
	c, _ := newTestController(t)

	ok, err := c.dispatchTask(Task{TaskID: "t-5", Skill: "not_a_real_skill"})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected unknown skill to return false, not error")
	}
}

func TestReviewCandidateApproveEmitsDirective(t *testing.T) {
	c, cfg := newTestController(t)

	fields := baseReportFields("agent-1", "task-9", "needs_review")
	fields["review_reasons"] = []any{"high risk operation"}
	fields["proposed_changes"] = []any{map[string]any{"operation": "update", "target": "sheet-1"}}
	reportPath := filepath.Join(cfg.InboxDir(), "teamA", "report9.json")
	writeReportFile(t, reportPath, fields)

	if _, err := c.RunOnce(""); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(cfg.CandidatesDir())
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one candidate, err=%v entries=%v", err, entries)
	}
	candidateID := "cand-task-9"

	ok, err := c.ReviewCandidate(ReviewDecision{
		CandidateID: candidateID,
		Decision:    "approve",
		Reviewer:    "human-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected approve decision to succeed")
	}

	dir := filepath.Join(cfg.OutboxDir(), "teamA", "agent-1")
	dirEntries, err := os.ReadDir(dir)
	if err != nil || len(dirEntries) != 1 {
		t.Fatalf("expected one approved directive, err=%v entries=%v", err, dirEntries)
	}
}

func TestReviewCandidateRejectDoesNotEmitDirective(t *testing.T) {
	c, cfg := newTestController(t)

	fields := baseReportFields("agent-1", "task-10", "needs_review")
	fields["review_reasons"] = []any{"risky"}
	reportPath := filepath.Join(cfg.InboxDir(), "teamA", "report10.json")
	writeReportFile(t, reportPath, fields)

	if _, err := c.RunOnce(""); err != nil {
		t.Fatal(err)
	}

	ok, err := c.ReviewCandidate(ReviewDecision{
		CandidateID: "cand-task-10",
		Decision:    "reject",
		Reviewer:    "human-1",
		Notes:       "not needed",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected reject decision to succeed")
	}

	if _, err := os.Stat(filepath.Join(cfg.OutboxDir(), "teamA", "agent-1")); err == nil {
		t.Fatal("rejected candidate should not emit a directive")
	}
}

func TestReviewCandidateNotFoundReturnsError(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.ReviewCandidate(ReviewDecision{CandidateID: "does-not-exist", Decision: "approve"})
	if err == nil {
		t.Fatal("expected error for unknown candidate id")
	}
}

func TestUpdateStateFromTaskAppliesChanges(t *testing.T) {
	c, _ := newTestController(t)

	task := Task{
		TaskID: "t-update",
		Skill:  "update_state",
		Input: map[string]any{
			"reason": "manual correction",
			"changes": []any{
				map[string]any{
					"section":   "system_metrics",
					"column":    "total_tasks_completed",
					"new_value": "5",
					"reason":    "backfilled from replay",
				},
			},
		},
	}

	ok, err := c.dispatchTask(task)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected update_state to succeed")
	}
}

func TestCheckHealthWritesSystemHealthFile(t *testing.T) {
	c, cfg := newTestController(t)

	summary := c.CheckHealth()
	if summary.OverallStatus == "" {
		t.Fatal("expected a non-empty overall status")
	}
	if _, err := os.Stat(cfg.SystemHealthFile()); err != nil {
		t.Fatalf("expected system health file to be written: %v", err)
	}
}

func TestRunOnceRespectsTeamFilter(t *testing.T) {
	c, cfg := newTestController(t)

	writeReportFile(t, filepath.Join(cfg.InboxDir(), "teamA", "a.json"), baseReportFields("agent-1", "task-a", "success"))
	writeReportFile(t, filepath.Join(cfg.InboxDir(), "teamB", "b.json"), baseReportFields("agent-2", "task-b", "success"))

	if _, err := c.RunOnce("teamA"); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(cfg.InboxDir(), "teamA", "a.processed.json")); err != nil {
		t.Fatalf("expected teamA report to be processed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.InboxDir(), "teamB", "b.processed.json")); err == nil {
		t.Fatal("teamB report should not have been processed when filtering to teamA")
	}
}
