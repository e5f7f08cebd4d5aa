// Package bookmark manages the operator's saved directory shortcuts.
package bookmark

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kaze-kaze/file-transfer/internal/adapter/jsonstore"
	"github.com/kaze-kaze/file-transfer/internal/domain"
	"github.com/kaze-kaze/file-transfer/internal/security"
)

// Bookmark is one saved directory shortcut.
type Bookmark struct {
	Identifier string `json:"identifier"`
	Label      string `json:"label"`
	Path       string `json:"path"`
}

// Service persists bookmarks as a JSON array document.
type Service struct {
	mu    sync.Mutex
	store *jsonstore.Store
}

// NewService creates a bookmark service backed by store.
func NewService(store *jsonstore.Store) *Service {
	return &Service{store: store}
}

// List returns all bookmarks.
func (s *Service) List() ([]Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bookmarks := []Bookmark{}
	if err := s.store.Read(&bookmarks); err != nil {
		return nil, err
	}
	return bookmarks, nil
}

// Add stores a bookmark for an existing directory. An empty label
// defaults to the path itself.
func (s *Service) Add(label, path string) (*Bookmark, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid bookmark path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("bookmark path must be an existing directory: %w", domain.ErrInvalidInput)
	}
	if label == "" {
		label = absPath
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bookmarks := []Bookmark{}
	if err := s.store.Read(&bookmarks); err != nil {
		return nil, err
	}

	identifier, err := s.uniqueIdentifier(bookmarks)
	if err != nil {
		return nil, err
	}

	bookmark := Bookmark{Identifier: identifier, Label: label, Path: absPath}
	bookmarks = append(bookmarks, bookmark)
	if err := s.store.Write(bookmarks); err != nil {
		return nil, err
	}
	return &bookmark, nil
}

// Delete removes a bookmark. Idempotent on unknown identifiers.
func (s *Service) Delete(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bookmarks := []Bookmark{}
	if err := s.store.Read(&bookmarks); err != nil {
		return err
	}

	filtered := bookmarks[:0]
	for _, b := range bookmarks {
		if b.Identifier != identifier {
			filtered = append(filtered, b)
		}
	}
	return s.store.Write(filtered)
}

func (s *Service) uniqueIdentifier(existing []Bookmark) (string, error) {
	used := make(map[string]bool, len(existing))
	for _, b := range existing {
		used[b.Identifier] = true
	}
	for {
		candidate, err := security.RandomToken(6)
		if err != nil {
			return "", err
		}
		if !used[candidate] {
			return candidate, nil
		}
	}
}
