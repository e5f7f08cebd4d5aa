package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kaze-kaze/file-transfer/internal/service/bookmark"
)

// BookmarkHandler handles saved directory bookmarks.
type BookmarkHandler struct {
	bookmarks *bookmark.Service
	logger    *zap.Logger
}

// NewBookmarkHandler creates a new BookmarkHandler
func NewBookmarkHandler(bookmarks *bookmark.Service, logger *zap.Logger) *BookmarkHandler {
	return &BookmarkHandler{bookmarks: bookmarks, logger: logger}
}

type addBookmarkRequest struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// HandleBookmarks handles GET and POST /api/bookmarks
func (h *BookmarkHandler) HandleBookmarks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := h.bookmarks.List()
		if err != nil {
			h.logger.Error("failed to list bookmarks", zap.Error(err))
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookmarks": items})

	case http.MethodPost:
		var req addBookmarkRequest
		if err := readJSON(r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			writeJSONError(w, http.StatusBadRequest, "Bookmark path is required")
			return
		}

		item, err := h.bookmarks.Add(req.Label, req.Path)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleBookmarkDelete handles DELETE /api/bookmarks/{id}
func (h *BookmarkHandler) HandleBookmarkDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/bookmarks/")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "Bookmark id required")
		return
	}

	if err := h.bookmarks.Delete(id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
