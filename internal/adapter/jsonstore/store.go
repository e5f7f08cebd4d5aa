// Package jsonstore provides a durable JSON document store with
// atomic replace semantics: writes land in a temporary file that is
// renamed over the previous document, so a crash mid-write can only
// lose the latest update, never corrupt the prior state.
package jsonstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kaze-kaze/file-transfer/internal/domain"
)

// Store owns one JSON document on disk.
type Store struct {
	mu   sync.Mutex
	path string
}

// Open creates a Store for the document at path, seeding it with
// defaultDoc when no document exists yet.
func Open(path string, defaultDoc any) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Store{path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.writeLocked(defaultDoc); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat store file: %w", err)
	} else {
		// An unreadable existing document fails at open time, not on
		// the first operation that happens to read it.
		var probe json.RawMessage
		if err := s.readLocked(&probe); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Read unmarshals the current document into v. An unreadable document
// surfaces domain.ErrStorageCorrupted.
func (s *Store) Read(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(v)
}

// Write atomically replaces the document with v.
func (s *Store) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *Store) readLocked(v any) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read document %s: %w", s.path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("document %s: %w: %v", s.path, domain.ErrStorageCorrupted, err)
	}
	return nil
}

func (s *Store) writeLocked(v any) error {
	// Go's encoder emits map keys in sorted order, which keeps the
	// document diff-friendly across rewrites.
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	data = append(data, '\n')

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp document: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}
