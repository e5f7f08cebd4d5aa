// Package share owns the map of download tokens to share records: it
// mints tokens, builds directory archives, enforces expiry, quota and
// IP policy, and persists every change durably.
package share

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kaze-kaze/file-transfer/internal/adapter/jsonstore"
	"github.com/kaze-kaze/file-transfer/internal/domain"
	"github.com/kaze-kaze/file-transfer/internal/pathguard"
	"github.com/kaze-kaze/file-transfer/internal/security"
)

// CreateRequest carries the parameters for a new share.
type CreateRequest struct {
	Path         string
	MaxDownloads *int
	ExpireAt     *int64
	AllowedIPs   []string
}

// Ledger is the share-lifecycle engine. Every mutating operation runs
// under one mutex, so a download count can never exceed its quota even
// under simultaneous redemptions, and a sweep can never interleave
// with a redemption.
type Ledger struct {
	mu         sync.Mutex
	guard      *pathguard.Guard
	store      *jsonstore.Store
	archiveDir string
	logger     *zap.Logger
	now        func() time.Time

	// in-use archive refcounts; deletion defers to zero so an archive
	// is never unlinked while a response is still streaming it.
	inUse         map[string]int
	pendingDelete map[string]bool
}

// NewLedger creates a Ledger persisting to store and writing archives
// into archiveDir.
func NewLedger(guard *pathguard.Guard, store *jsonstore.Store, archiveDir string, logger *zap.Logger) (*Ledger, error) {
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}
	return &Ledger{
		guard:         guard,
		store:         store,
		archiveDir:    archiveDir,
		logger:        logger,
		now:           time.Now,
		inUse:         make(map[string]int),
		pendingDelete: make(map[string]bool),
	}, nil
}

// load reads the persisted token map. Must be called with the lock held.
func (l *Ledger) load() (map[string]*domain.ShareRecord, error) {
	records := make(map[string]*domain.ShareRecord)
	if err := l.store.Read(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// save persists the token map atomically. Must be called with the lock held.
func (l *Ledger) save(records map[string]*domain.ShareRecord) error {
	return l.store.Write(records)
}

// Create validates the path, mints a unique token, builds an archive
// for directories, and persists the new record.
func (l *Ledger) Create(req CreateRequest) (*domain.ShareRecord, error) {
	absPath, err := l.guard.Validate(req.Path, pathguard.ModeCustom)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("path to share does not exist: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat share path: %w", err)
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		return nil, fmt.Errorf("only files or directories can be shared: %w", domain.ErrInvalidInput)
	}

	maxDownloads := req.MaxDownloads
	if maxDownloads != nil && *maxDownloads <= 0 {
		maxDownloads = nil
	}

	allowedIPs := make([]string, 0, len(req.AllowedIPs))
	for _, ip := range req.AllowedIPs {
		if trimmed := strings.TrimSpace(ip); trimmed != "" {
			allowedIPs = append(allowedIPs, trimmed)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return nil, err
	}

	token, err := l.uniqueToken(records)
	if err != nil {
		return nil, err
	}

	archiveName := ""
	if info.IsDir() {
		archiveName, err = buildArchive(absPath, token, l.archiveDir)
		if err != nil {
			return nil, err
		}
	}

	record := &domain.ShareRecord{
		Token:        token,
		Path:         absPath,
		IsDirectory:  info.IsDir(),
		ArchiveName:  archiveName,
		CreatedAt:    l.now().Unix(),
		MaxDownloads: maxDownloads,
		ExpireAt:     req.ExpireAt,
		AllowedIPs:   allowedIPs,
	}

	records[token] = record
	if err := l.save(records); err != nil {
		l.removeArchive(archiveName)
		return nil, err
	}

	l.logger.Info("share created",
		zap.String("token", token),
		zap.String("path", absPath),
		zap.Bool("is_directory", record.IsDirectory))

	return record, nil
}

// uniqueToken generates an 8-10 character alphanumeric token that does
// not collide with any live record.
func (l *Ledger) uniqueToken(records map[string]*domain.ShareRecord) (string, error) {
	for {
		token, err := security.RandomToken(security.ShareTokenLength())
		if err != nil {
			return "", err
		}
		if _, exists := records[token]; !exists {
			return token, nil
		}
	}
}

// List sweeps expired records and returns the remaining ones in a
// redacted form, oldest first.
func (l *Ledger) List() ([]domain.ShareView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return nil, err
	}

	now := l.now()
	changed := false
	views := make([]domain.ShareView, 0, len(records))
	for token, record := range records {
		if record.IsExpired(now) {
			l.removeArchive(record.ArchiveName)
			delete(records, token)
			changed = true
			continue
		}
		views = append(views, record.View())
	}

	if changed {
		if err := l.save(records); err != nil {
			return nil, err
		}
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt != views[j].CreatedAt {
			return views[i].CreatedAt < views[j].CreatedAt
		}
		return views[i].Token < views[j].Token
	})
	return views, nil
}

// Redeem is the hot path: under one critical section it applies the
// expiry, IP and quota policy, rebuilds directory archives, increments
// the download count, and persists. Unknown, expired, IP-rejected and
// quota-exhausted tokens are indistinguishable to the caller.
//
// The returned release function must be called after the delivery has
// been streamed; it drops the in-use marker that protects an archive
// from concurrent deletion.
func (l *Ledger) Redeem(token, clientIP string) (*domain.Delivery, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return nil, nil, err
	}

	record, ok := records[token]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}

	if record.IsExpired(l.now()) {
		l.removeArchive(record.ArchiveName)
		delete(records, token)
		if err := l.save(records); err != nil {
			return nil, nil, err
		}
		return nil, nil, domain.ErrNotFound
	}

	if !record.AllowsIP(clientIP) {
		l.logger.Warn("share redemption rejected by ip policy",
			zap.String("token", token),
			zap.String("client_ip", clientIP))
		return nil, nil, domain.ErrNotFound
	}

	if record.QuotaExhausted() {
		l.removeArchive(record.ArchiveName)
		delete(records, token)
		if err := l.save(records); err != nil {
			return nil, nil, err
		}
		return nil, nil, domain.ErrNotFound
	}

	delivery := &domain.Delivery{IsDirectory: record.IsDirectory}
	if record.IsDirectory {
		// Rebuild on every redemption so the archive always matches
		// the directory's current contents.
		archiveName, err := buildArchive(record.Path, record.Token, l.archiveDir)
		if err != nil {
			// Only a vanished source directory retires the record. Any
			// other rebuild failure leaves the ledger untouched so the
			// share survives a transient filesystem error.
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, nil, err
			}
			l.removeArchive(record.ArchiveName)
			delete(records, token)
			if saveErr := l.save(records); saveErr != nil {
				return nil, nil, saveErr
			}
			return nil, nil, domain.ErrNotFound
		}
		record.ArchiveName = archiveName
		delivery.Path = filepath.Join(l.archiveDir, archiveName)
		delivery.Filename = archiveName
		delivery.MIME = "application/zip"
	} else {
		delivery.Path = record.Path
		delivery.Filename = filepath.Base(record.Path)
	}

	release := func() {}
	if record.IsDirectory {
		// Acquired before any deletion below so a quota-exhausting
		// redemption cannot unlink the archive mid-stream.
		l.acquireArchive(delivery.Path)
		release = func() { l.releaseArchive(delivery.Path) }
	}

	record.DownloadCount++
	if record.QuotaExhausted() {
		// Quota used up by this redemption: the record disappears now,
		// but the archive stays on disk until the stream completes.
		l.removeArchive(record.ArchiveName)
		delete(records, token)
	}
	if err := l.save(records); err != nil {
		if record.IsDirectory {
			l.releaseArchiveLocked(delivery.Path)
		}
		return nil, nil, err
	}

	l.logger.Info("share redeemed",
		zap.String("token", token),
		zap.String("client_ip", clientIP),
		zap.Int("download_count", record.DownloadCount))

	return delivery, release, nil
}

// Delete removes a record and its archive. Idempotent on absent tokens.
func (l *Ledger) Delete(token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return err
	}

	record, ok := records[token]
	if !ok {
		return nil
	}

	l.removeArchive(record.ArchiveName)
	delete(records, token)
	if err := l.save(records); err != nil {
		return err
	}

	l.logger.Info("share deleted", zap.String("token", token))
	return nil
}

// acquireArchive marks an archive as in use. Must be called with the
// lock held.
func (l *Ledger) acquireArchive(path string) {
	l.inUse[path]++
}

// releaseArchive drops one in-use marker and performs any deletion
// that was deferred while the archive was being streamed.
func (l *Ledger) releaseArchive(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseArchiveLocked(path)
}

func (l *Ledger) releaseArchiveLocked(path string) {
	l.inUse[path]--
	if l.inUse[path] > 0 {
		return
	}
	delete(l.inUse, path)
	if l.pendingDelete[path] {
		delete(l.pendingDelete, path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			l.logger.Warn("failed to remove archive", zap.String("path", path), zap.Error(err))
		}
	}
}

// removeArchive unlinks an archive file, deferring when a stream still
// holds it. Must be called with the lock held.
func (l *Ledger) removeArchive(archiveName string) {
	if archiveName == "" {
		return
	}
	path := filepath.Join(l.archiveDir, archiveName)
	if l.inUse[path] > 0 {
		l.pendingDelete[path] = true
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		l.logger.Warn("failed to remove archive", zap.String("path", path), zap.Error(err))
	}
}
