// Package statestore implements atomic JSON persistence: save writes via a
// sibling temp file, fsync, and rename over the target; load never blocks
// and never raises on corruption, returning a caller-supplied default
// instead.
package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/coordctl/coordctl/internal/logging"
)

var log = logging.New("statestore")

// Save serializes value as indented JSON and writes it atomically to path:
// temp file in the same directory, fsync, then rename over path.
func Save(path string, value any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Load reads and unmarshals path into a new value of the same shape as
// def. A missing or corrupt file (including JSON that does not fit T) logs a
// warning and returns def; the returned error is always nil.
func Load[T any](path string, def T) (T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("read %s failed, using default: %v", path, err)
		}
		return def, nil
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		log.Printf("parse %s failed, using default: %v", path, err)
		return def, nil
	}
	return out, nil
}
