package server

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kaze-kaze/file-transfer/internal/domain"
)

// HistoryRecorder is the transfer audit log consumed by the handlers.
type HistoryRecorder interface {
	RecordShareDownload(token, path, clientIP string, size int64) error
	RecordRemoteFetch(url, path string, size int64) error
	Recent(limit int) ([]domain.TransferEvent, error)
	Ping() error
}

// HistoryHandler exposes the transfer audit log.
type HistoryHandler struct {
	history HistoryRecorder
	logger  *zap.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(history HistoryRecorder, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger}
}

// HandleHistory handles GET /api/history?limit=N
func (h *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeJSONError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	events, err := h.history.Recent(limit)
	if err != nil {
		h.logger.Error("failed to load transfer history", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
