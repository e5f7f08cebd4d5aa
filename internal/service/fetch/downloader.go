// Package fetch downloads remote resources into the downloads tree,
// splitting into parallel ranged workers when the server supports it.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kaze-kaze/file-transfer/internal/domain"
	"github.com/kaze-kaze/file-transfer/internal/pathguard"
)

const (
	userAgent = "file-transfer/1.0"
	chunkSize = 256 * 1024
)

// Config contains downloader tuning knobs.
type Config struct {
	ProbeTimeout    time.Duration
	TransferTimeout time.Duration
	MaxWorkers      int
	MinSplitSize    int64
	// BandwidthLimit throttles transfer streams, bytes per second.
	// Zero means unlimited.
	BandwidthLimit int64
}

// Downloader fetches remote URLs. One Downloader serves many callers;
// each Fetch runs its own bounded worker pool.
type Downloader struct {
	cfg     Config
	guard   *pathguard.Guard
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a Downloader validating targets through guard.
func New(cfg Config, guard *pathguard.Guard, logger *zap.Logger) *Downloader {
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}
	if cfg.TransferTimeout == 0 {
		cfg.TransferTimeout = 60 * time.Second
	}
	if cfg.MaxWorkers < 1 || cfg.MaxWorkers > 4 {
		cfg.MaxWorkers = 4
	}
	if cfg.MinSplitSize <= 0 {
		cfg.MinSplitSize = 1024 * 1024
	}

	var limiter *rate.Limiter
	if cfg.BandwidthLimit > 0 {
		burst := int(cfg.BandwidthLimit)
		if burst < chunkSize {
			burst = chunkSize
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.BandwidthLimit), burst)
	}

	return &Downloader{
		cfg:     cfg,
		guard:   guard,
		client:  &http.Client{},
		limiter: limiter,
		logger:  logger,
	}
}

// probeInfo is what the metadata probe learned about the resource.
type probeInfo struct {
	contentLength int64
	acceptRanges  bool
	filename      string
}

// Fetch downloads url into targetDir. The URL is SSRF-validated before
// any network access; the target directory must already exist under
// the downloads root. Returns where the file landed and whether the
// multi-worker path was used.
func (d *Downloader) Fetch(ctx context.Context, rawURL, targetDir, filename string) (*domain.FetchResult, error) {
	if err := d.guard.ValidateRemoteURL(ctx, rawURL); err != nil {
		return nil, err
	}

	absDir, err := d.guard.ValidateTargetDir(targetDir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: target directory does not exist or is not a directory", domain.ErrDownloadFailed)
	}

	probe, err := d.probe(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	finalName := uniqueFilename(absDir, chooseFilename(filename, probe.filename, rawURL))
	destination := filepath.Join(absDir, finalName)

	if probe.contentLength >= d.cfg.MinSplitSize && probe.acceptRanges {
		err := d.fetchRanged(ctx, rawURL, destination, probe.contentLength)
		if err == nil {
			d.logger.Info("download completed",
				zap.String("url", rawURL),
				zap.String("path", destination),
				zap.Int64("size", probe.contentLength),
				zap.Bool("multithreaded", true))
			return &domain.FetchResult{
				Path:          destination,
				Filename:      finalName,
				Size:          probe.contentLength,
				Multithreaded: true,
			}, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDownloadFailed, ctx.Err())
		}
		d.logger.Warn("ranged download failed, falling back to single stream",
			zap.String("url", rawURL), zap.Error(err))
	}

	size, err := d.fetchSingle(ctx, rawURL, destination)
	if err != nil {
		return nil, err
	}

	d.logger.Info("download completed",
		zap.String("url", rawURL),
		zap.String("path", destination),
		zap.Int64("size", size),
		zap.Bool("multithreaded", false))

	return &domain.FetchResult{
		Path:          destination,
		Filename:      finalName,
		Size:          size,
		Multithreaded: false,
	}, nil
}

// probe issues a HEAD request, falling back to GET when the server
// rejects HEAD, to learn length, range support and a suggested name.
func (d *Downloader) probe(ctx context.Context, rawURL string) (*probeInfo, error) {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		probeCtx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
		req, err := http.NewRequestWithContext(probeCtx, method, rawURL, nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: invalid request: %v", domain.ErrDownloadFailed, err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := d.client.Do(req)
		if err != nil {
			cancel()
			if method == http.MethodGet {
				return nil, fmt.Errorf("%w: unable to initiate download: %v", domain.ErrDownloadFailed, err)
			}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			cancel()
			if method == http.MethodGet {
				return nil, fmt.Errorf("%w: server responded with status %d", domain.ErrDownloadFailed, resp.StatusCode)
			}
			continue
		}

		info := &probeInfo{
			contentLength: resp.ContentLength,
			acceptRanges:  resp.Header.Get("Accept-Ranges") == "bytes",
			filename:      filenameFromDisposition(resp.Header.Get("Content-Disposition")),
		}
		if cl := resp.Header.Get("Content-Length"); info.contentLength < 0 && cl != "" {
			if parsed, err := strconv.ParseInt(cl, 10, 64); err == nil {
				info.contentLength = parsed
			}
		}
		resp.Body.Close()
		cancel()
		return info, nil
	}
	return nil, fmt.Errorf("%w: unable to initiate download", domain.ErrDownloadFailed)
}

// fetchRanged downloads the resource with parallel range workers into
// part files, then merges them. Workers are joined before the merge;
// any failure aborts the whole attempt and removes every part, so a
// partial result is never visible at the destination name.
func (d *Downloader) fetchRanged(ctx context.Context, rawURL, destination string, totalSize int64) error {
	workers := workerCount(totalSize, d.cfg.MinSplitSize, d.cfg.MaxWorkers)
	ranges := splitRanges(totalSize, workers)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	partPaths := make([]string, len(ranges))
	errs := make([]error, len(ranges))
	var wg sync.WaitGroup

	for i, byteRange := range ranges {
		partPaths[i] = fmt.Sprintf("%s.part%d", destination, i)
		wg.Add(1)
		go func(idx int, br domain.ByteRange, partPath string) {
			defer wg.Done()
			if err := d.fetchRange(workerCtx, rawURL, br, partPath); err != nil {
				errs[idx] = err
				cancel()
			}
		}(i, byteRange, partPaths[i])
	}
	wg.Wait()

	defer func() {
		for _, part := range partPaths {
			os.Remove(part)
		}
	}()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return mergeParts(partPaths, destination)
}

// fetchRange downloads one byte range into a part file.
func (d *Downloader) fetchRange(ctx context.Context, rawURL string, br domain.ByteRange, partPath string) error {
	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.TransferTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: invalid request: %v", domain.ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", br.Start, br.End))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: range request failed: %v", domain.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("%w: server did not honor range request (status %d)", domain.ErrDownloadFailed, resp.StatusCode)
	}

	f, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("%w: failed to create part file: %v", domain.ErrDownloadFailed, err)
	}

	written, err := d.copyBody(reqCtx, f, resp.Body)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: failed to close part file: %v", domain.ErrDownloadFailed, closeErr)
	}
	if err != nil {
		return err
	}
	if written != br.Size() {
		return fmt.Errorf("%w: short range read: got %d bytes, want %d", domain.ErrDownloadFailed, written, br.Size())
	}
	return nil
}

// mergeParts concatenates part files in order. The merge lands in a
// temporary file first so a failed merge leaves nothing at the
// destination name.
func mergeParts(partPaths []string, destination string) error {
	tmpPath := destination + ".assembling"
	dst, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: failed to create destination: %v", domain.ErrDownloadFailed, err)
	}

	for _, part := range partPaths {
		src, err := os.Open(part)
		if err != nil {
			dst.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("%w: failed to open part: %v", domain.ErrDownloadFailed, err)
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if err != nil {
			dst.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("%w: failed to merge parts: %v", domain.ErrDownloadFailed, err)
		}
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to close destination: %v", domain.ErrDownloadFailed, err)
	}
	if err := os.Rename(tmpPath, destination); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to finalize download: %v", domain.ErrDownloadFailed, err)
	}
	return nil
}

// fetchSingle streams the whole body into the destination through a
// temporary file.
func (d *Downloader) fetchSingle(ctx context.Context, rawURL, destination string) (int64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.TransferTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid request: %v", domain.ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("%w: download failed with status %d", domain.ErrDownloadFailed, resp.StatusCode)
	}

	tmpPath := destination + ".downloading"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create destination: %v", domain.ErrDownloadFailed, err)
	}

	written, err := d.copyBody(reqCtx, f, resp.Body)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: failed to close destination: %v", domain.ErrDownloadFailed, closeErr)
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, err
	}
	if err := os.Rename(tmpPath, destination); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: failed to finalize download: %v", domain.ErrDownloadFailed, err)
	}
	return written, nil
}

// copyBody copies in bounded chunks, applying the bandwidth throttle
// when one is configured.
func (d *Downloader) copyBody(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if d.limiter != nil {
				if err := d.limiter.WaitN(ctx, n); err != nil {
					return written, fmt.Errorf("%w: %v", domain.ErrDownloadFailed, err)
				}
			}
			wn, writeErr := dst.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, fmt.Errorf("%w: write failed: %v", domain.ErrDownloadFailed, writeErr)
			}
			if wn != n {
				return written, fmt.Errorf("%w: short write", domain.ErrDownloadFailed)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("%w: read failed: %v", domain.ErrDownloadFailed, readErr)
		}
	}
}
