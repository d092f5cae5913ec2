package queue

import (
	"testing"
	"time"
)

func TestFileAdapterFIFOOrder(t *testing.T) {
	dir := t.TempDir()
	a := NewFileAdapter(dir)

	for i := 0; i < 3; i++ {
		if err := a.Push("inbox", map[string]any{"n": float64(i)}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		item, err := a.Pop("inbox", 50*time.Millisecond)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if item == nil {
			t.Fatalf("pop %d: expected an item, got nil", i)
		}
		if got := item["n"]; got != float64(i) {
			t.Fatalf("pop %d: expected n=%v, got %v", i, i, got)
		}
	}
}

func TestFileAdapterPopTimesOutOnEmpty(t *testing.T) {
	dir := t.TempDir()
	a := NewFileAdapter(dir)

	start := time.Now()
	item, err := a.Pop("empty-queue", 30*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item, got %v", item)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("expected to wait out the timeout, only waited %v", elapsed)
	}
}

func TestFileAdapterQueueNameSanitization(t *testing.T) {
	dir := t.TempDir()
	a := NewFileAdapter(dir)

	// "/" is replaced with "_" in the on-disk directory name, so pushing to
	// "team/inbox" and popping from "team_inbox" must see the same queue.
	if err := a.Push("team/inbox", map[string]any{"x": "1"}); err != nil {
		t.Fatal(err)
	}
	item, err := a.Pop("team_inbox", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item == nil {
		t.Fatal("expected the sanitized queue name to resolve to the same directory")
	}
}
