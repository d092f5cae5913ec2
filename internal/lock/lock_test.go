package lock

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileBackendMutualExclusion(t *testing.T) {
	dir := t.TempDir()

	const n = 20
	counter := 0
	var wg sync.WaitGroup
	var mu sync.Mutex // guards the test's own view of counter, not the lock under test

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			backend := NewFileBackend(dir)
			mgr := New(backend, "", "owner", 30*time.Second, 30, 5*time.Millisecond)
			if err := mgr.Acquire("shared-resource", "task"); err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			defer mgr.Release("shared-resource")

			mu.Lock()
			counter++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if counter != n {
		t.Fatalf("expected counter=%d, got %d", n, counter)
	}
}

func TestFileBackendStalenessOverride(t *testing.T) {
	dir := t.TempDir()
	backend := NewFileBackend(dir)

	rec := Record{ResourceID: "r1", OwnerID: "stale-owner", Timestamp: time.Now().Add(-time.Hour)}
	if err := backend.TryAcquire(SafeKey("r1"), "stale-owner", rec, time.Millisecond); err != nil {
		t.Fatal(err)
	}

	// Record is now 0s old relative to write but Timestamp field says an
	// hour ago, so with a 1ms timeout it is stale and a new owner may
	// override it.
	newRec := Record{ResourceID: "r1", OwnerID: "new-owner", Timestamp: time.Now()}
	if err := backend.TryAcquire(SafeKey("r1"), "new-owner", newRec, time.Millisecond); err != nil {
		t.Fatalf("expected stale lock to be overridden, got: %v", err)
	}

	got, ok := backend.Read(SafeKey("r1"))
	if !ok || got.OwnerID != "new-owner" {
		t.Fatalf("expected new-owner to hold the lock, got %+v", got)
	}
}

func TestFileBackendFreshLockNotOverridden(t *testing.T) {
	dir := t.TempDir()
	backend := NewFileBackend(dir)

	rec := Record{ResourceID: "r1", OwnerID: "holder", Timestamp: time.Now()}
	if err := backend.TryAcquire(SafeKey("r1"), "holder", rec, time.Hour); err != nil {
		t.Fatal(err)
	}

	other := Record{ResourceID: "r1", OwnerID: "other", Timestamp: time.Now()}
	err := backend.TryAcquire(SafeKey("r1"), "other", other, time.Hour)
	if err != ErrLockContended {
		t.Fatalf("expected ErrLockContended, got %v", err)
	}
}

func TestSameOwnerRefresh(t *testing.T) {
	dir := t.TempDir()
	backend := NewFileBackend(dir)
	path := filepath.Join(dir, SafeKey("r1")+".lock")
	_ = path

	rec := Record{ResourceID: "r1", OwnerID: "holder", Timestamp: time.Now().Add(-time.Minute)}
	if err := backend.TryAcquire(SafeKey("r1"), "holder", rec, time.Hour); err != nil {
		t.Fatal(err)
	}
	refreshed := Record{ResourceID: "r1", OwnerID: "holder", Timestamp: time.Now()}
	if err := backend.TryAcquire(SafeKey("r1"), "holder", refreshed, time.Hour); err != nil {
		t.Fatalf("same-owner refresh should always succeed, got: %v", err)
	}
}

func TestSafeKeyCollision(t *testing.T) {
	// Documents the preserved Open Question: distinct resource ids can
	// collide after the safe-key transform.
	a := SafeKey("team/inbox")
	b := SafeKey("team_inbox")
	if a != b {
		t.Fatalf("expected collision to be preserved, got %q vs %q", a, b)
	}
}
