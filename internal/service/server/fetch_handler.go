package server

import (
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kaze-kaze/file-transfer/internal/service/fetch"
)

// FetchHandler handles remote URL fetch requests.
type FetchHandler struct {
	downloader   *fetch.Downloader
	downloadsDir string
	history      HistoryRecorder
	logger       *zap.Logger
}

// NewFetchHandler creates a new FetchHandler
func NewFetchHandler(downloader *fetch.Downloader, downloadsDir string, history HistoryRecorder, logger *zap.Logger) *FetchHandler {
	return &FetchHandler{
		downloader:   downloader,
		downloadsDir: downloadsDir,
		history:      history,
		logger:       logger,
	}
}

type fetchRequest struct {
	URL       string `json:"url"`
	TargetDir string `json:"target_dir"`
	Filename  string `json:"filename"`
}

// HandleFetch handles POST /api/downloads: download a remote URL into
// the downloads tree.
func (h *FetchHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req fetchRequest
	if err := readJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	url := strings.TrimSpace(req.URL)
	if url == "" {
		writeJSONError(w, http.StatusBadRequest, "Download URL is required")
		return
	}

	targetDir := strings.TrimSpace(req.TargetDir)
	if targetDir == "" {
		targetDir = h.downloadsDir
	} else if !filepath.IsAbs(targetDir) {
		targetDir = filepath.Join(h.downloadsDir, targetDir)
	}

	result, err := h.downloader.Fetch(r.Context(), url, targetDir, strings.TrimSpace(req.Filename))
	if err != nil {
		h.logger.Warn("remote fetch failed", zap.String("url", url), zap.Error(err))
		writeDomainError(w, err)
		return
	}

	if h.history != nil {
		if err := h.history.RecordRemoteFetch(url, result.Path, result.Size); err != nil {
			h.logger.Warn("failed to record remote fetch", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":       "Download completed",
		"path":          result.Path,
		"filename":      result.Filename,
		"size":          result.Size,
		"multithreaded": result.Multithreaded,
	})
}
