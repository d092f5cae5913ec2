package lock

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// KVBackend implements the distributed lock backend over a NATS JetStream
// Key-Value bucket: Create gives set-if-absent-with-TTL, and Delete with a
// last-revision check gives compare-and-delete. This grounds spec.md §4.4's
// "atomic set-if-absent-with-expiry... compare-and-delete" requirement on
// the teacher's own NATS dependency rather than introducing Redis.
//
// Connection failures on acquire return ErrLockContended (let Manager
// retry); failures on release are swallowed — the bucket's TTL will expire
// the record regardless.
type KVBackend struct {
	kv nats.KeyValue
}

// NewKVBackend wraps an already-created JetStream KV bucket. The bucket
// should be created with a TTL matching the lock manager's timeout
// (js.CreateKeyValue(&nats.KeyValueConfig{TTL: timeout})).
func NewKVBackend(kv nats.KeyValue) *KVBackend {
	return &KVBackend{kv: kv}
}

func (b *KVBackend) TryAcquire(key, ownerID string, rec Record, timeout time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	// Fast path: nobody holds it yet.
	if _, err := b.kv.Create(key, data); err == nil {
		return nil
	}

	entry, err := b.kv.Get(key)
	if err != nil {
		// Could not read the existing entry — treat as contended so the
		// caller retries rather than silently stomping unknown state.
		return ErrLockContended
	}

	var existing Record
	if err := json.Unmarshal(entry.Value(), &existing); err != nil {
		return ErrLockContended
	}

	sameOwner := existing.OwnerID != "" && existing.OwnerID == ownerID
	sameAgent := existing.AgentID != "" && existing.AgentID == ownerID
	stale := time.Since(existing.Timestamp) > timeout
	if !sameOwner && !sameAgent && !stale {
		return ErrLockContended
	}

	_, err = b.kv.Update(key, data, entry.Revision())
	if err != nil {
		return ErrLockContended
	}
	return nil
}

func (b *KVBackend) Release(key, ownerID string) error {
	entry, err := b.kv.Get(key)
	if err != nil {
		return nil
	}
	var existing Record
	if err := json.Unmarshal(entry.Value(), &existing); err != nil {
		return nil
	}
	if existing.OwnerID != ownerID && existing.AgentID != ownerID {
		return nil
	}
	_ = b.kv.Delete(key, nats.LastRevision(entry.Revision()))
	return nil
}

func (b *KVBackend) Read(key string) (Record, bool) {
	entry, err := b.kv.Get(key)
	if err != nil {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return Record{}, false
	}
	return rec, true
}
