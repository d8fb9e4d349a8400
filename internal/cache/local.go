// Package cache keeps activation verdicts close to the caller: in memory for
// request guards and on disk for offline verification.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-commons/commons/log"
)

// ErrNoLocalRecord is returned when no activation has been saved yet.
var ErrNoLocalRecord = errors.New("no local activation record")

// ErrCorruptLocalRecord is returned when the activation file cannot be decoded.
var ErrCorruptLocalRecord = errors.New("corrupt local activation record")

// File persists a LocalActivationRecord as JSON. Writes go to a temporary
// file in the same directory which then replaces the target, so a reader
// never observes a partial record.
type File struct {
	path   string
	logger log.Logger
	mu     sync.Mutex
}

// NewFile creates a local activation cache at path
func NewFile(path string, logger log.Logger) *File {
	return &File{path: path, logger: logger}
}

// Path returns the location of the activation file
func (f *File) Path() string {
	return f.path
}

// Save atomically replaces the activation file with rec
func (f *File) Save(rec model.LocalActivationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode local activation: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create activation directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary activation file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write temporary activation file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to sync temporary activation file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary activation file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace activation file: %w", err)
	}

	f.logger.Debugf("Saved local activation for code %s", rec.ActivationCode)

	return nil
}

// Load reads the activation file. A missing file yields ErrNoLocalRecord and
// an undecodable one ErrCorruptLocalRecord.
func (f *File) Load() (model.LocalActivationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.LocalActivationRecord{}, ErrNoLocalRecord
		}

		return model.LocalActivationRecord{}, fmt.Errorf("%w: %w", ErrCorruptLocalRecord, err)
	}

	var rec model.LocalActivationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		f.logger.Warnf("Local activation file %s is corrupt: %v", f.path, err)
		return model.LocalActivationRecord{}, fmt.Errorf("%w: %w", ErrCorruptLocalRecord, err)
	}

	return rec, nil
}

// Clear removes the activation file. Removing a missing file is not an error.
func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove activation file: %w", err)
	}

	f.logger.Debugf("Cleared local activation file %s", f.path)

	return nil
}
