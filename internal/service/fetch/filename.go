package fetch

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// fallbackFilename is used when no usable name can be derived.
const fallbackFilename = "download.bin"

var unsafeNameChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// chooseFilename picks the destination name by precedence: explicit
// argument, server-suggested name, last URL path segment, generic
// fallback.
func chooseFilename(explicit, suggested, rawURL string) string {
	if explicit != "" {
		return explicit
	}
	if suggested != "" {
		return suggested
	}
	if parsed, err := url.Parse(rawURL); err == nil {
		if candidate := path.Base(strings.TrimRight(parsed.Path, "/")); candidate != "" && candidate != "." && candidate != "/" {
			return candidate
		}
	}
	return fallbackFilename
}

// sanitizeFilename replaces filesystem-unsafe characters and rejects
// names that would escape the target directory.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallbackFilename
	}
	name = unsafeNameChars.ReplaceAllString(name, "_")
	if name == "." || name == ".." {
		return fallbackFilename
	}
	return name
}

// uniqueFilename appends a numeric disambiguator before the extension
// until the name does not collide with an existing file in dir.
func uniqueFilename(dir, name string) string {
	safe := sanitizeFilename(name)
	candidate := safe
	ext := filepath.Ext(safe)
	stem := strings.TrimSuffix(safe, ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s(%d)%s", stem, counter, ext)
	}
}

// filenameFromDisposition extracts a filename from a
// Content-Disposition header, handling RFC 5987 encoded names.
func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
