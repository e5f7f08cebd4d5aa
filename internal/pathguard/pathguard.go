// Package pathguard decides which filesystem paths and remote URLs the
// application may touch. It holds no mutable state; every decision is
// a pure function of the configured policy and the candidate input.
package pathguard

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/kaze-kaze/file-transfer/internal/domain"
)

// Mode selects how strict Validate is about path location.
type Mode int

const (
	// ModeRestricted requires the path to live under one of the
	// designated data roots.
	ModeRestricted Mode = iota
	// ModeCustom skips the data-root whitelist but keeps every other
	// deny rule. Used when the operator shares arbitrary paths.
	ModeCustom
)

// Policy is the fixed rule set a Guard enforces.
type Policy struct {
	// BaseDir is the application's own tree, treated as trusted.
	BaseDir string
	// DataRoots is the ModeRestricted whitelist (downloads, archives).
	DataRoots []string
	// BlockedPrefixes are OS-sensitive roots denied outside BaseDir.
	BlockedPrefixes []string
	// SensitiveDirPatterns are denied wherever they appear, including
	// inside the trusted tree. Checked before the trusted shortcut so
	// credential stores under BaseDir cannot leak.
	SensitiveDirPatterns []string
	// BlockedFilePatterns are case-insensitive substrings denied on
	// every canonical path.
	BlockedFilePatterns []string
	// BlockedHosts are denied outbound hostnames (substring match).
	BlockedHosts []string
}

// DefaultPolicy returns the standard rule set rooted at baseDir.
func DefaultPolicy(baseDir string, dataRoots ...string) Policy {
	return Policy{
		BaseDir:   baseDir,
		DataRoots: dataRoots,
		BlockedPrefixes: []string{
			"/etc", "/home", "/var/log", "/var/www", "/usr",
			"/boot", "/sys", "/proc", "/dev", "/tmp", "/opt",
		},
		SensitiveDirPatterns: []string{
			"/.ssh", "/.aws", "/.config", "/.gnupg", "/.kube", "/.docker",
		},
		BlockedFilePatterns: []string{
			"passwd", "shadow", "id_rsa", "id_dsa", "id_ecdsa",
			"id_ed25519", "authorized_keys", "known_hosts", ".aws",
			".ssh", "credentials", ".env", "config.yaml", ".git",
		},
		BlockedHosts: []string{
			"localhost", "metadata.google.internal", "169.254.169.254",
		},
	}
}

// LookupFunc resolves a hostname to its addresses. Injectable so SSRF
// checks are testable without real DNS.
type LookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// Guard validates paths and URLs against a Policy.
type Guard struct {
	policy   Policy
	lookupIP LookupFunc
}

// New creates a Guard using the system resolver.
func New(policy Policy) *Guard {
	return NewWithResolver(policy, func(ctx context.Context, host string) ([]net.IP, error) {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, err
		}
		ips := make([]net.IP, 0, len(addrs))
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
		return ips, nil
	})
}

// NewWithResolver creates a Guard with a custom hostname resolver.
func NewWithResolver(policy Policy, lookup LookupFunc) *Guard {
	policy.BaseDir = canonicalize(policy.BaseDir)
	for i, root := range policy.DataRoots {
		policy.DataRoots[i] = canonicalize(root)
	}
	return &Guard{policy: policy, lookupIP: lookup}
}

// Validate checks a candidate path and returns its canonical absolute
// form, or a PathDenied error. Deny rules run in a fixed order:
// sensitive directory patterns first (they override the trusted-tree
// shortcut), then OS-sensitive roots for paths outside the trusted
// tree, then sensitive filename substrings, and finally the data-root
// whitelist when mode is ModeRestricted.
func (g *Guard) Validate(path string, mode Mode) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", domain.PathDenied("path cannot be empty")
	}

	abs := canonicalize(path)

	for _, pattern := range g.policy.SensitiveDirPatterns {
		if strings.Contains(abs, pattern) {
			return "", domain.PathDenied(
				fmt.Sprintf("cannot access sensitive path containing %q", pattern))
		}
	}

	if !isDescendant(g.policy.BaseDir, abs) {
		for _, prefix := range g.policy.BlockedPrefixes {
			if isDescendant(prefix, abs) {
				return "", domain.PathDenied(
					fmt.Sprintf("cannot access system directory %s", prefix))
			}
		}
	}

	lower := strings.ToLower(abs)
	for _, pattern := range g.policy.BlockedFilePatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return "", domain.PathDenied(
				fmt.Sprintf("path contains sensitive pattern %q", pattern))
		}
	}

	if mode == ModeRestricted {
		allowed := false
		for _, root := range g.policy.DataRoots {
			if isDescendant(root, abs) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", domain.PathDenied("path is outside the allowed data directories")
		}
	}

	return abs, nil
}

// ValidateTargetDir checks a download destination: it must sit under
// the first data root (the downloads tree) and pass every restricted
// rule.
func (g *Guard) ValidateTargetDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", domain.PathDenied("target directory cannot be empty")
	}
	abs := canonicalize(dir)
	if len(g.policy.DataRoots) == 0 || !isDescendant(g.policy.DataRoots[0], abs) {
		return "", domain.PathDenied("downloads must be saved under the downloads directory")
	}
	return g.Validate(abs, ModeRestricted)
}

// ValidateRemoteURL checks an outbound fetch target for SSRF. Every
// resolved address must be public; a DNS failure is a deny, not a
// pass-through.
func (g *Guard) ValidateRemoteURL(ctx context.Context, rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return domain.URLDenied("url cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return domain.URLDenied(fmt.Sprintf("invalid url: %v", err))
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return domain.URLDenied(
			fmt.Sprintf("blocked scheme %q, only http and https are allowed", parsed.Scheme))
	}

	host := parsed.Hostname()
	if host == "" {
		return domain.URLDenied("url must have a hostname")
	}

	hostLower := strings.ToLower(host)
	for _, blocked := range g.policy.BlockedHosts {
		if strings.Contains(hostLower, blocked) {
			return domain.URLDenied(fmt.Sprintf("hostname %s is blocked", host))
		}
	}

	ips, err := g.lookupIP(ctx, host)
	if err != nil {
		return domain.URLDenied(fmt.Sprintf("cannot resolve hostname %s: %v", host, err))
	}
	if len(ips) == 0 {
		return domain.URLDenied(fmt.Sprintf("hostname %s resolved to no addresses", host))
	}

	for _, ip := range ips {
		if reason := classifyBlockedIP(ip); reason != "" {
			return domain.URLDenied(
				fmt.Sprintf("%s resolves to %s address %s", host, reason, ip))
		}
	}

	return nil
}

var metadataIP = net.ParseIP("169.254.169.254")

// classifyBlockedIP returns a non-empty reason if the address must not
// be reached from this host.
func classifyBlockedIP(ip net.IP) string {
	switch {
	case ip.Equal(metadataIP):
		return "cloud-metadata"
	case ip.IsLoopback():
		return "loopback"
	case ip.IsPrivate():
		return "private"
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return "link-local"
	case ip.IsMulticast():
		return "multicast"
	case ip.IsUnspecified():
		return "unspecified"
	}
	return ""
}

// canonicalize resolves the path to cleaned absolute form, following
// symlinks when the target exists.
func canonicalize(path string) string {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// isDescendant reports whether path equals root or lives beneath it.
func isDescendant(root, path string) bool {
	if root == "" {
		return false
	}
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
