package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/kaze-kaze/file-transfer/internal/adapter/jsonstore"
	"github.com/kaze-kaze/file-transfer/internal/adapter/sqlite"
	"github.com/kaze-kaze/file-transfer/internal/config"
	"github.com/kaze-kaze/file-transfer/internal/domain"
	"github.com/kaze-kaze/file-transfer/internal/logger"
	"github.com/kaze-kaze/file-transfer/internal/pathguard"
	"github.com/kaze-kaze/file-transfer/internal/security"
	"github.com/kaze-kaze/file-transfer/internal/service/bookmark"
	"github.com/kaze-kaze/file-transfer/internal/service/fetch"
	"github.com/kaze-kaze/file-transfer/internal/service/server"
	"github.com/kaze-kaze/file-transfer/internal/service/share"
	"github.com/kaze-kaze/file-transfer/internal/util/ratelimiter"
)

const version = "0.1.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	hashPassword := flag.Bool("hash-password", false, "Read a password from stdin and print its hash, then exit")
	flag.Parse()

	if *hashPassword {
		if err := runHashPassword(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zapLogger := logger.GetZapLogger()
	zapLogger.Info("starting file-transfer",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	downloadsDir := cfg.Paths.GetDownloadsDir()
	if err := os.MkdirAll(downloadsDir, 0o755); err != nil {
		zapLogger.Fatal("failed to create downloads directory", zap.Error(err))
	}

	// Build the path policy around the instance's own tree. The
	// downloads root must come first; it doubles as the fetch target
	// whitelist.
	guard := pathguard.New(pathguard.DefaultPolicy(cfg.Paths.BaseDir, downloadsDir, cfg.Paths.GetArchiveDir()))

	// Open the persistent stores
	sharesStore, err := jsonstore.Open(cfg.Paths.GetSharesFile(), map[string]domain.ShareRecord{})
	if err != nil {
		zapLogger.Fatal("failed to open shares store", zap.Error(err))
	}
	bookmarksStore, err := jsonstore.Open(cfg.Paths.GetBookmarksFile(), []bookmark.Bookmark{})
	if err != nil {
		zapLogger.Fatal("failed to open bookmarks store", zap.Error(err))
	}

	history, err := sqlite.Open(cfg.GetHistoryPath())
	if err != nil {
		zapLogger.Fatal("failed to open history database", zap.Error(err), zap.String("path", cfg.GetHistoryPath()))
	}
	defer history.Close()

	// Create services
	ledger, err := share.NewLedger(guard, sharesStore, cfg.Paths.GetArchiveDir(), zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to create share ledger", zap.Error(err))
	}

	downloader := fetch.New(fetch.Config{
		ProbeTimeout:    cfg.Fetch.GetProbeTimeout(),
		TransferTimeout: cfg.Fetch.GetTransferTimeout(),
		MaxWorkers:      cfg.Fetch.MaxWorkers,
		MinSplitSize:    cfg.Fetch.GetMinSplitSize(),
		BandwidthLimit:  cfg.Fetch.GetBandwidthLimit(),
	}, guard, zapLogger)

	bookmarks := bookmark.NewService(bookmarksStore)

	loginLimiter := ratelimiter.New(
		cfg.RateLimit.MaxAttempts,
		cfg.RateLimit.GetWindow(),
		cfg.RateLimit.GetLockout(),
	)

	// Create HTTP server
	serverCfg := &server.Config{
		BindAddr:     cfg.Server.BindAddr,
		DownloadsDir: downloadsDir,
		Auth:         cfg.Auth,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
		IdleTimeout:  cfg.Server.GetIdleTimeout(),
	}
	httpServer := server.New(serverCfg, guard, ledger, downloader, bookmarks, history, loginLimiter, zapLogger)

	// Start HTTP server
	go func() {
		if err := httpServer.Start(); err != nil {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.Server.BindAddr),
		zap.String("base_dir", cfg.Paths.BaseDir),
	)
	<-sigChan

	zapLogger.Info("shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	zapLogger.Info("application stopped successfully")
}

// runHashPassword prompts for a password and prints the config values
// for the auth section.
func runHashPassword() error {
	fmt.Fprint(os.Stderr, "Password: ")
	var password string
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
		password = string(raw)
	} else {
		if _, err := fmt.Fscanln(os.Stdin, &password); err != nil {
			return err
		}
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	salt, hash, iters, err := security.HashPassword(password, security.DefaultIterations)
	if err != nil {
		return err
	}

	fmt.Printf("auth:\n  password_hash: %s\n  salt: %s\n  iterations: %d\n", hash, salt, iters)
	return nil
}
