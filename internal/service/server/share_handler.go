package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kaze-kaze/file-transfer/internal/domain"
	"github.com/kaze-kaze/file-transfer/internal/service/share"
)

// ShareHandler handles share management and public token redemption.
type ShareHandler struct {
	ledger  *share.Ledger
	history HistoryRecorder
	logger  *zap.Logger
}

// NewShareHandler creates a new ShareHandler
func NewShareHandler(ledger *share.Ledger, history HistoryRecorder, logger *zap.Logger) *ShareHandler {
	return &ShareHandler{ledger: ledger, history: history, logger: logger}
}

type createShareRequest struct {
	Path           string   `json:"path"`
	MaxDownloads   *int     `json:"max_downloads"`
	ExpiresAt      *int64   `json:"expires_at"`
	ExpiresInHours *float64 `json:"expires_in_hours"`
	AllowedIPs     []string `json:"allowed_ips"`
}

// HandleShares handles GET and POST /api/shares
func (h *ShareHandler) HandleShares(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		views, err := h.ledger.List()
		if err != nil {
			h.logger.Error("failed to list shares", zap.Error(err))
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shares": views})

	case http.MethodPost:
		var req createShareRequest
		if err := readJSON(r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		if req.Path == "" {
			writeJSONError(w, http.StatusBadRequest, "File path is required")
			return
		}

		// A relative hours offset wins over an absolute timestamp.
		expireAt := req.ExpiresAt
		if req.ExpiresInHours != nil {
			abs := time.Now().Add(time.Duration(*req.ExpiresInHours * float64(time.Hour))).Unix()
			expireAt = &abs
		}

		record, err := h.ledger.Create(share.CreateRequest{
			Path:         req.Path,
			MaxDownloads: req.MaxDownloads,
			ExpireAt:     expireAt,
			AllowedIPs:   req.AllowedIPs,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"token":         record.Token,
			"share_url":     fmt.Sprintf("/d/%s", record.Token),
			"max_downloads": record.MaxDownloads,
			"expire_at":     record.ExpireAt,
			"allowed_ips":   record.AllowedIPs,
			"is_directory":  record.IsDirectory,
		})

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleShareDelete handles DELETE /api/shares/{token}
func (h *ShareHandler) HandleShareDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	token := strings.TrimPrefix(r.URL.Path, "/api/shares/")
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "Token required")
		return
	}

	if err := h.ledger.Delete(token); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDownload handles the public redemption path GET /d/{token}.
// The response never distinguishes unknown, expired, IP-rejected or
// exhausted tokens.
func (h *ShareHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	token := strings.TrimPrefix(r.URL.Path, "/d/")
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "Token required")
		return
	}

	ip := clientIP(r)
	delivery, release, err := h.ledger.Redeem(token, ip)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "Link is invalid or expired")
			return
		}
		h.logger.Error("share redemption failed", zap.String("token", token), zap.Error(err))
		writeDomainError(w, err)
		return
	}
	defer release()

	f, err := os.Open(delivery.Path)
	if err != nil {
		writeJSONError(w, http.StatusGone, "File no longer available")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeJSONError(w, http.StatusGone, "File no longer available")
		return
	}

	mimeType := delivery.MIME
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(delivery.Filename))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", delivery.Filename))
	w.Header().Set("Cache-Control", "no-store")

	written, err := io.Copy(w, f)
	if err != nil {
		h.logger.Warn("share stream interrupted",
			zap.String("token", token),
			zap.Int64("written", written),
			zap.Error(err))
		return
	}

	if h.history != nil {
		if err := h.history.RecordShareDownload(token, delivery.Path, ip, written); err != nil {
			h.logger.Warn("failed to record share download", zap.Error(err))
		}
	}
}
