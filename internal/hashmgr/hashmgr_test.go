package hashmgr

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
)

func TestComputeIndependentOfKeyOrder(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "c": map[string]any{"y": 2, "x": 1}}
	b := map[string]any{"c": map[string]any{"x": 1, "y": 2}, "a": 1, "b": 2}

	ha, err := Compute(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := Compute(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("expected equal hashes, got %s vs %s", ha, hb)
	}
}

func TestComputeDiffersOnContent(t *testing.T) {
	ha, _ := Compute(map[string]any{"a": 1})
	hb, _ := Compute(map[string]any{"a": 2})
	if ha == hb {
		t.Fatal("expected different hashes for different content")
	}
}

func TestLogAppendsAndSyncs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit", "log.jsonl")
	m := New(path)

	if err := m.Log("abc123", "update", "req-1", "ok", ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Log("", "update", "req-2", "error", "boom"); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}
