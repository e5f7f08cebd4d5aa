package share

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kaze-kaze/file-transfer/internal/domain"
)

var unsafeBaseChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

const maxBaseNameLen = 80

// sanitizeBaseName derives a filesystem-safe archive base name from a
// directory name.
func sanitizeBaseName(name string) string {
	safe := unsafeBaseChars.ReplaceAllString(name, "_")
	if len(safe) > maxBaseNameLen {
		safe = safe[:maxBaseNameLen]
	}
	if safe == "" {
		safe = "archive"
	}
	return safe
}

// archiveNameFor returns the output name for a directory share. The
// token embedded in the name keeps concurrent shares of the same
// directory from colliding.
func archiveNameFor(sourceDir, token string) string {
	base := filepath.Base(strings.TrimRight(sourceDir, string(filepath.Separator)))
	if base == "." || base == string(filepath.Separator) {
		base = "root"
	}
	return fmt.Sprintf("%s-%s.zip", sanitizeBaseName(base), token)
}

// buildArchive writes a zip snapshot of sourceDir into archiveDir and
// returns the archive filename. The walk is deterministic, empty
// directories become explicit entries, and every regular file is
// DEFLATE-compressed. The archive is assembled in a temporary file and
// renamed into place so a rebuild never truncates a copy that is
// still being streamed.
func buildArchive(sourceDir, token, archiveDir string) (string, error) {
	info, err := os.Stat(sourceDir)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("directory to share is no longer available: %w", domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat source directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("archive source is not a directory: %w", domain.ErrInvalidInput)
	}

	archiveName := archiveNameFor(sourceDir, token)
	safeBase := strings.TrimSuffix(archiveName, "-"+token+".zip")
	archivePath := filepath.Join(archiveDir, archiveName)
	tmpPath := archivePath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	if err := writeArchive(f, sourceDir, safeBase); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}

	return archiveName, nil
}

func writeArchive(w io.Writer, sourceDir, safeBase string) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}

		if d.IsDir() {
			entries, err := os.ReadDir(p)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				name := safeBase
				if rel != "." {
					name = path.Join(safeBase, filepath.ToSlash(rel))
				}
				if _, err := zw.Create(name + "/"); err != nil {
					return err
				}
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = path.Join(safeBase, filepath.ToSlash(rel))
		hdr.Method = zip.Deflate

		dst, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close archive writer: %w", err)
	}
	return nil
}
