package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kaze-kaze/file-transfer/internal/config"
	"github.com/kaze-kaze/file-transfer/internal/pathguard"
	"github.com/kaze-kaze/file-transfer/internal/service/bookmark"
	"github.com/kaze-kaze/file-transfer/internal/service/fetch"
	"github.com/kaze-kaze/file-transfer/internal/service/share"
	"github.com/kaze-kaze/file-transfer/internal/util/ratelimiter"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	DownloadsDir string
	Auth         config.AuthConfig
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "127.0.0.1:23000",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server represents the HTTP API server
type Server struct {
	config          *Config
	logger          *zap.Logger
	server          *http.Server
	sessions        *SessionManager
	history         HistoryRecorder
	authHandler     *AuthHandler
	shareHandler    *ShareHandler
	fetchHandler    *FetchHandler
	browseHandler   *BrowseHandler
	bookmarkHandler *BookmarkHandler
	historyHandler  *HistoryHandler
}

// New creates a new HTTP server
func New(
	cfg *Config,
	guard *pathguard.Guard,
	ledger *share.Ledger,
	downloader *fetch.Downloader,
	bookmarks *bookmark.Service,
	history HistoryRecorder,
	limiter *ratelimiter.Limiter,
	logger *zap.Logger,
) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config:   cfg,
		logger:   logger,
		history:  history,
		sessions: NewSessionManager(cfg.Auth.GetSessionTTL()),
	}

	s.authHandler = NewAuthHandler(cfg.Auth, s.sessions, limiter, logger)
	s.shareHandler = NewShareHandler(ledger, history, logger)
	s.fetchHandler = NewFetchHandler(downloader, cfg.DownloadsDir, history, logger)
	s.browseHandler = NewBrowseHandler(guard, cfg.DownloadsDir, logger)
	s.bookmarkHandler = NewBookmarkHandler(bookmarks, logger)
	s.historyHandler = NewHistoryHandler(history, logger)

	auth := SessionAuthMiddleware(s.sessions)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Public share redemption
	mux.HandleFunc("/d/", s.shareHandler.HandleDownload)

	// Authentication
	mux.HandleFunc("/api/login", s.authHandler.HandleLogin)
	mux.HandleFunc("/api/logout", s.authHandler.HandleLogout)
	mux.HandleFunc("/api/session", s.authHandler.HandleSession)

	// Operator API
	mux.HandleFunc("/api/shares", auth(s.shareHandler.HandleShares))
	mux.HandleFunc("/api/shares/", auth(s.shareHandler.HandleShareDelete))
	mux.HandleFunc("/api/downloads", auth(s.fetchHandler.HandleFetch))
	mux.HandleFunc("/api/fs", auth(s.browseHandler.HandleBrowse))
	mux.HandleFunc("/api/bookmarks", auth(s.bookmarkHandler.HandleBookmarks))
	mux.HandleFunc("/api/bookmarks/", auth(s.bookmarkHandler.HandleBookmarkDelete))
	mux.HandleFunc("/api/history", auth(s.historyHandler.HandleHistory))

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      LoggingMiddleware(logger)(SecurityHeadersMiddleware(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.history.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy","time":"` + time.Now().Format(time.RFC3339) + `"}`))
}
