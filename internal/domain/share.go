package domain

import "time"

// ShareRecord represents one issued download link.
// Records are persisted as a JSON object keyed by token, so every
// field carries a stable json tag.
type ShareRecord struct {
	Token         string   `json:"token"`
	Path          string   `json:"path"`
	IsDirectory   bool     `json:"is_directory"`
	ArchiveName   string   `json:"archive_name,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	MaxDownloads  *int     `json:"max_downloads"`
	DownloadCount int      `json:"download_count"`
	ExpireAt      *int64   `json:"expire_at"`
	AllowedIPs    []string `json:"allowed_ips"`
}

// IsExpired returns true if the record has an expiry in the past.
func (r *ShareRecord) IsExpired(now time.Time) bool {
	return r.ExpireAt != nil && *r.ExpireAt < now.Unix()
}

// QuotaExhausted returns true if the download quota has been used up.
func (r *ShareRecord) QuotaExhausted() bool {
	return r.MaxDownloads != nil && r.DownloadCount >= *r.MaxDownloads
}

// AllowsIP checks the client IP against the allow list.
// An empty list allows every caller; the IP is an opaque comparison key.
func (r *ShareRecord) AllowsIP(clientIP string) bool {
	if len(r.AllowedIPs) == 0 {
		return true
	}
	for _, ip := range r.AllowedIPs {
		if ip == clientIP {
			return true
		}
	}
	return false
}

// ShareView is the redacted listing form of a record: the internal
// archive filename is never exposed to callers.
type ShareView struct {
	Token         string   `json:"token"`
	Path          string   `json:"path"`
	IsDirectory   bool     `json:"is_directory"`
	CreatedAt     int64    `json:"created_at"`
	MaxDownloads  *int     `json:"max_downloads"`
	DownloadCount int      `json:"download_count"`
	ExpireAt      *int64   `json:"expire_at"`
	AllowedIPs    []string `json:"allowed_ips"`
}

// View returns the redacted form of the record.
func (r *ShareRecord) View() ShareView {
	return ShareView{
		Token:         r.Token,
		Path:          r.Path,
		IsDirectory:   r.IsDirectory,
		CreatedAt:     r.CreatedAt,
		MaxDownloads:  r.MaxDownloads,
		DownloadCount: r.DownloadCount,
		ExpireAt:      r.ExpireAt,
		AllowedIPs:    r.AllowedIPs,
	}
}

// Delivery describes what a redeemed token serves: the concrete file
// on disk, the name shown to the client, and a MIME hint (empty means
// the caller should sniff from the filename).
type Delivery struct {
	Path        string
	Filename    string
	MIME        string
	IsDirectory bool
}
