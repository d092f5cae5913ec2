package audit

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"
)

func TestRecordWritesEntryWithChecksum(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	steps := []OpStep{
		{Name: "locate_task", Timestamp: time.Now().UTC()},
		{Name: "generate_report", Timestamp: time.Now().UTC()},
	}
	report := map[string]any{"status": "success", "agent": "sheets-agent"}

	path, err := l.Record("sheets-agent", "task-1", "user-1", "team-a", "v1", steps, "outbox/report.json", report, nil, 250*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatal(err)
	}
	if entry.ReportChecksum == nil || *entry.ReportChecksum == "" {
		t.Fatal("expected a non-empty report checksum")
	}
	if entry.Error != nil {
		t.Fatalf("expected no error, got %+v", entry.Error)
	}
	if entry.RuntimeMetrics.DurationMs < 249 || entry.RuntimeMetrics.DurationMs > 260 {
		t.Fatalf("unexpected duration_ms: %v", entry.RuntimeMetrics.DurationMs)
	}
}

func TestRecordWithNilReportHasNilChecksum(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	path, err := l.Record("auth-agent", "task-2", "user-1", "team-b", "v1", nil, "", nil, errors.New("boom"), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatal(err)
	}
	if entry.ReportChecksum != nil {
		t.Fatalf("expected nil checksum when no report given, got %v", *entry.ReportChecksum)
	}
	if entry.Error == nil || entry.Error.Message != "boom" {
		t.Fatalf("expected error message 'boom', got %+v", entry.Error)
	}
}
