package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kaze-kaze/file-transfer/internal/pathguard"
)

// BrowseHandler exposes filesystem listing for the operator UI.
type BrowseHandler struct {
	guard        *pathguard.Guard
	downloadsDir string
	logger       *zap.Logger
}

// NewBrowseHandler creates a new BrowseHandler
func NewBrowseHandler(guard *pathguard.Guard, downloadsDir string, logger *zap.Logger) *BrowseHandler {
	return &BrowseHandler{guard: guard, downloadsDir: downloadsDir, logger: logger}
}

type fsEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDirectory bool   `json:"is_directory"`
	Size        int64  `json:"size"`
	ModifiedAt  int64  `json:"modified_at"`
}

// HandleBrowse handles GET /api/fs?path=...&show_hidden=1. Listing is
// subject to the same path policy as share creation.
func (h *BrowseHandler) HandleBrowse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		path = h.downloadsDir
	}
	showHidden := r.URL.Query().Get("show_hidden") == "1"

	resolved, err := h.guard.Validate(path, pathguard.ModeCustom)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	info, err := os.Stat(resolved)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "Path not found")
		return
	}
	if !info.IsDir() {
		writeJSONError(w, http.StatusBadRequest, "Path is not a directory")
		return
	}

	dirEntries, err := os.ReadDir(resolved)
	if err != nil {
		h.logger.Warn("failed to read directory", zap.String("path", resolved), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Failed to read directory")
		return
	}

	entries := make([]fsEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !showHidden && strings.HasPrefix(de.Name(), ".") {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		entry := fsEntry{
			Name:        de.Name(),
			Path:        filepath.Join(resolved, de.Name()),
			IsDirectory: de.IsDir(),
			ModifiedAt:  fi.ModTime().Unix(),
		}
		if !de.IsDir() {
			entry.Size = fi.Size()
		}
		entries = append(entries, entry)
	}

	// Directories first, then case-insensitive by name.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDirectory != entries[j].IsDirectory {
			return entries[i].IsDirectory
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	parent := filepath.Dir(resolved)
	if parent == resolved {
		parent = ""
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"path":    resolved,
		"parent":  parent,
		"entries": entries,
	})
}
