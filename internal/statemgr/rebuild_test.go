package statemgr

import (
	"os"
	"path/filepath"
	"testing"
)

func writeReport(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRebuildReplaysReportsInFilenameOrder(t *testing.T) {
	m, dir := newTestManager(t)
	inbox := filepath.Join(dir, "inbox")

	writeReport(t, filepath.Join(inbox, "backend", "20260101T000000Z_t1.json"), `{
		"agent": "backend-1", "status": "success", "task_id": "t1", "team_id": "backend",
		"timestamp_utc": "2026-01-01T00:00:00Z", "metrics": {"cost_eur": 0.5, "tokens_in": 100, "tokens_out": 50}
	}`)
	writeReport(t, filepath.Join(inbox, "backend", "20260101T000100Z_t2.json.processed.json"), `{
		"agent": "backend-1", "status": "error", "task_id": "t2", "team_id": "backend",
		"timestamp_utc": "2026-01-01T00:01:00Z", "metrics": {"cost_eur": 0.1, "tokens_in": 10, "tokens_out": 5}
	}`)
	writeReport(t, filepath.Join(inbox, "backend", "20260101T000000Z_t1.json.hash"), "deadbeef")

	doc, replayed, err := m.Rebuild(inbox)
	if err != nil {
		t.Fatal(err)
	}
	if replayed != 2 {
		t.Fatalf("expected 2 reports replayed, got %d", replayed)
	}
	if len(doc.Agents) != 1 {
		t.Fatalf("expected one agent row, got %d", len(doc.Agents))
	}
	if doc.Agents[0]["Status"] != "error" {
		t.Fatalf("expected final status to reflect the later (error) report, got %q", doc.Agents[0]["Status"])
	}

	completed := doc.SystemMetrics["total_tasks_completed"]
	failed := doc.SystemMetrics["total_tasks_failed"]
	if completed != int64(1) || failed != int64(1) {
		t.Fatalf("expected 1 completed and 1 failed, got completed=%v failed=%v", completed, failed)
	}
}

func TestRebuildSkipsUnparsableReports(t *testing.T) {
	m, dir := newTestManager(t)
	inbox := filepath.Join(dir, "inbox")

	writeReport(t, filepath.Join(inbox, "broken.json"), "not json")

	doc, replayed, err := m.Rebuild(inbox)
	if err != nil {
		t.Fatal(err)
	}
	if replayed != 0 {
		t.Fatalf("expected 0 reports replayed for an unparsable file, got %d", replayed)
	}
	if len(doc.Agents) != 0 {
		t.Fatalf("expected no agent rows, got %d", len(doc.Agents))
	}
}
