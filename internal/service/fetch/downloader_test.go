package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kaze-kaze/file-transfer/internal/domain"
	"github.com/kaze-kaze/file-transfer/internal/pathguard"
)

// openResolver answers every lookup with a public address, so test
// servers on loopback pass the SSRF check.
func openResolver(_ context.Context, _ string) ([]net.IP, error) {
	return []net.IP{net.ParseIP("93.184.216.34")}, nil
}

type fetchFixture struct {
	downloader *Downloader
	downloads  string
}

func newFetchFixture(t *testing.T, cfg Config) *fetchFixture {
	t.Helper()
	base := t.TempDir()
	downloads := filepath.Join(base, "downloads")
	require.NoError(t, os.MkdirAll(downloads, 0o755))

	guard := pathguard.NewWithResolver(pathguard.Policy{
		BaseDir:   base,
		DataRoots: []string{downloads},
	}, openResolver)

	return &fetchFixture{
		downloader: New(cfg, guard, zap.NewNop()),
		downloads:  downloads,
	}
}

// testPayload is deterministic content large enough to split.
func testPayload(size int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return buf
}

// rangeServer serves payload with full byte-range support.
func rangeServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "payload.bin", time.Unix(0, 0), bytes.NewReader(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_RangedDownload(t *testing.T) {
	payload := testPayload(300 * 1024)
	srv := rangeServer(t, payload)

	f := newFetchFixture(t, Config{MaxWorkers: 3, MinSplitSize: 64 * 1024})

	result, err := f.downloader.Fetch(context.Background(), srv.URL+"/payload.bin", f.downloads, "")
	require.NoError(t, err)
	require.True(t, result.Multithreaded)
	require.Equal(t, int64(len(payload)), result.Size)
	require.Equal(t, "payload.bin", result.Filename)

	got, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, got), "merged file must match the source byte for byte")

	requireNoLeftovers(t, f.downloads, result.Filename)
}

func TestFetch_SmallFileUsesSingleStream(t *testing.T) {
	payload := testPayload(10 * 1024)
	srv := rangeServer(t, payload)

	f := newFetchFixture(t, Config{MaxWorkers: 4, MinSplitSize: 64 * 1024})

	result, err := f.downloader.Fetch(context.Background(), srv.URL+"/payload.bin", f.downloads, "")
	require.NoError(t, err)
	require.False(t, result.Multithreaded, "files below the split threshold use one stream")

	got, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, got))
}

func TestFetch_NoRangeSupportFallsBack(t *testing.T) {
	payload := testPayload(200 * 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Length advertised, ranges not. Range headers are ignored.
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		if r.Method == http.MethodHead {
			return
		}
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	f := newFetchFixture(t, Config{MaxWorkers: 4, MinSplitSize: 64 * 1024})

	result, err := f.downloader.Fetch(context.Background(), srv.URL+"/data", f.downloads, "")
	require.NoError(t, err)
	require.False(t, result.Multithreaded)

	got, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, got))
}

func TestFetch_RangePhaseFailureFallsBack(t *testing.T) {
	payload := testPayload(200 * 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Advertises ranges but answers range requests with the full
		// body, which the ranged path must treat as a failure.
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		if r.Method == http.MethodHead {
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	f := newFetchFixture(t, Config{MaxWorkers: 4, MinSplitSize: 64 * 1024})

	result, err := f.downloader.Fetch(context.Background(), srv.URL+"/data", f.downloads, "")
	require.NoError(t, err)
	require.False(t, result.Multithreaded, "lying server must be handled by the single-stream fallback")

	got, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, got))

	requireNoLeftovers(t, f.downloads, result.Filename)
}

func TestFetch_FailureLeavesNoFile(t *testing.T) {
	var probed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && !probed {
			probed = true
			w.Header().Set("Content-Length", "1000")
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	f := newFetchFixture(t, Config{})

	_, err := f.downloader.Fetch(context.Background(), srv.URL+"/broken.bin", f.downloads, "")
	require.ErrorIs(t, err, domain.ErrDownloadFailed)

	entries, err := os.ReadDir(f.downloads)
	require.NoError(t, err)
	require.Empty(t, entries, "a failed download must leave nothing behind")
}

func TestFetch_BlockedURLNeverTouchesNetwork(t *testing.T) {
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	t.Cleanup(srv.Close)

	base := t.TempDir()
	downloads := filepath.Join(base, "downloads")
	require.NoError(t, os.MkdirAll(downloads, 0o755))
	guard := pathguard.NewWithResolver(pathguard.Policy{
		BaseDir:   base,
		DataRoots: []string{downloads},
	}, func(_ context.Context, _ string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("127.0.0.1")}, nil
	})
	d := New(Config{}, guard, zap.NewNop())

	_, err := d.Fetch(context.Background(), srv.URL+"/x", downloads, "")
	require.ErrorIs(t, err, domain.ErrURLDenied)
	require.False(t, hit, "denied URL must not be requested")
}

func TestFetch_TargetOutsideDownloads(t *testing.T) {
	payload := testPayload(1024)
	srv := rangeServer(t, payload)

	f := newFetchFixture(t, Config{})

	_, err := f.downloader.Fetch(context.Background(), srv.URL+"/payload.bin", "/var/www", "")
	require.ErrorIs(t, err, domain.ErrPathDenied)
}

func TestFetch_FilenamePrecedence(t *testing.T) {
	payload := testPayload(1024)

	t.Run("explicit name wins", func(t *testing.T) {
		srv := rangeServer(t, payload)
		f := newFetchFixture(t, Config{})
		result, err := f.downloader.Fetch(context.Background(), srv.URL+"/payload.bin", f.downloads, "custom.dat")
		require.NoError(t, err)
		require.Equal(t, "custom.dat", result.Filename)
	})

	t.Run("content disposition wins over url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Disposition", `attachment; filename="suggested.iso"`)
			http.ServeContent(w, r, "", time.Unix(0, 0), bytes.NewReader(payload))
		}))
		t.Cleanup(srv.Close)
		f := newFetchFixture(t, Config{})
		result, err := f.downloader.Fetch(context.Background(), srv.URL+"/boring-url-name", f.downloads, "")
		require.NoError(t, err)
		require.Equal(t, "suggested.iso", result.Filename)
	})

	t.Run("collision appends counter", func(t *testing.T) {
		srv := rangeServer(t, payload)
		f := newFetchFixture(t, Config{})
		require.NoError(t, os.WriteFile(filepath.Join(f.downloads, "payload.bin"), []byte("existing"), 0o644))
		result, err := f.downloader.Fetch(context.Background(), srv.URL+"/payload.bin", f.downloads, "")
		require.NoError(t, err)
		require.Equal(t, "payload(1).bin", result.Filename)
	})
}

// requireNoLeftovers asserts only the final file remains in dir.
func requireNoLeftovers(t *testing.T, dir, want string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.Equal(t, want, e.Name(), "unexpected leftover %s", e.Name())
	}
}

func TestSplitRanges(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		parts int
		want  []domain.ByteRange
	}{
		{
			name: "even split", total: 300, parts: 3,
			want: []domain.ByteRange{{Start: 0, End: 99}, {Start: 100, End: 199}, {Start: 200, End: 299}},
		},
		{
			name: "uneven split", total: 10, parts: 3,
			want: []domain.ByteRange{{Start: 0, End: 3}, {Start: 4, End: 7}, {Start: 8, End: 9}},
		},
		{
			name: "more parts than bytes", total: 2, parts: 4,
			want: []domain.ByteRange{{Start: 0, End: 0}, {Start: 1, End: 1}},
		},
		{
			name: "single part", total: 100, parts: 1,
			want: []domain.ByteRange{{Start: 0, End: 99}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitRanges(tt.total, tt.parts)
			require.Equal(t, tt.want, got)

			// Ranges must cover the resource exactly once, in order.
			var covered int64
			for i, r := range got {
				require.LessOrEqual(t, r.Start, r.End)
				if i > 0 {
					require.Equal(t, got[i-1].End+1, r.Start)
				}
				covered += r.Size()
			}
			require.Equal(t, tt.total, covered)
		})
	}
}

func TestWorkerCount(t *testing.T) {
	const mib = 1024 * 1024
	tests := []struct {
		total int64
		want  int
	}{
		{mib, 2},
		{2 * mib, 2},
		{4 * mib, 3},
		{6 * mib, 4},
		{100 * mib, 4},
	}
	for _, tt := range tests {
		if got := workerCount(tt.total, mib, 4); got != tt.want {
			t.Errorf("workerCount(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestChooseFilename(t *testing.T) {
	tests := []struct {
		name      string
		explicit  string
		suggested string
		url       string
		want      string
	}{
		{"explicit wins", "mine.txt", "theirs.txt", "http://x/url.txt", "mine.txt"},
		{"suggested next", "", "theirs.txt", "http://x/url.txt", "theirs.txt"},
		{"url basename", "", "", "http://x/dir/url.txt", "url.txt"},
		{"url with trailing slash", "", "", "http://x/dir/", "dir"},
		{"bare host falls back", "", "", "http://x/", "download.bin"},
		{"query ignored", "", "", "http://x/file.iso?sig=abc", "file.iso"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chooseFilename(tt.explicit, tt.suggested, tt.url); got != tt.want {
				t.Errorf("chooseFilename() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"normal.txt", "normal.txt"},
		{"  spaced.txt  ", "spaced.txt"},
		{`a/b\c:d.txt`, "a_b_c_d.txt"},
		{`what?.txt`, "what_.txt"},
		{"..", "download.bin"},
		{".", "download.bin"},
		{"", "download.bin"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFilenameFromDisposition(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{`attachment; filename="report.pdf"`, "report.pdf"},
		{`attachment; filename*=UTF-8''na%C3%AFve.txt`, "naïve.txt"},
		{"inline", ""},
		{"garbage;;;", ""},
	}
	for _, tt := range tests {
		if got := filenameFromDisposition(tt.header); got != tt.want {
			t.Errorf("filenameFromDisposition(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestUniqueFilename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file(1).txt"), nil, 0o644))

	got := uniqueFilename(dir, "file.txt")
	require.Equal(t, "file(2).txt", got)

	require.Equal(t, "fresh.txt", uniqueFilename(dir, "fresh.txt"))
	require.True(t, strings.HasPrefix(uniqueFilename(dir, "noext"), "noext"))
}
