package repo

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Rogers-F/governance-engine/internal/hashing"
)

// FingerprintLength is the number of hex characters kept from the digest.
const FingerprintLength = 24

// scpLike matches "user@host:path" remotes that carry no scheme.
var scpLike = regexp.MustCompile(`^(?:[^@/]+@)?([^:/]+):(.+)$`)

// CanonicalRemoteURL reduces a remote URL to "host/path" so SSH and HTTPS
// clones of the same repository agree. Returns "" for an empty or unusable URL.
func CanonicalRemoteURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	var host, path string
	switch {
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		if u.Scheme == "file" {
			return "file/" + strings.Trim(CanonicalLocalPath(u.Path), "/")
		}
		host = strings.ToLower(u.Hostname())
		if port := u.Port(); port != "" && !defaultPort(u.Scheme, port) {
			host += ":" + port
		}
		path = u.Path
	default:
		m := scpLike.FindStringSubmatch(s)
		if m == nil {
			return ""
		}
		host = strings.ToLower(m[1])
		path = m[2]
	}

	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	path = strings.TrimRight(path, "/")
	if host == "" || path == "" {
		return ""
	}
	return host + "/" + path
}

func defaultPort(scheme, port string) bool {
	switch scheme {
	case "https":
		return port == "443"
	case "http":
		return port == "80"
	case "ssh":
		return port == "22"
	}
	return false
}

// CanonicalLocalPath cleans p and uses forward slashes.
func CanonicalLocalPath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(p))
}

// Fingerprint identifies a repository. A canonical remote URL is preferred so
// clones at different paths share a fingerprint; otherwise the local root is used.
func Fingerprint(remoteURL, root string) string {
	if canon := CanonicalRemoteURL(remoteURL); canon != "" {
		return hashing.Truncate(hashing.HashString("repo:"+canon), FingerprintLength)
	}
	if root == "" {
		return ""
	}
	return hashing.Truncate(hashing.HashString("repo:local:"+CanonicalLocalPath(root)), FingerprintLength)
}
