package httpds

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

// filenameCleaner replaces runs of non-alphanumeric characters with "_".
var filenameCleaner = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// HashString returns a stable SHA1 hex digest of s.
func HashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

// CacheFilename derives a filesystem-safe, collision-resistant cache file
// name from a raw URL: a cleaned host+path prefix for readability plus a
// short hash of the full URL for uniqueness. Unparseable URLs fall back to
// the bare hash.
func CacheFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return HashString(rawURL)
	}

	clean := strings.Trim(filenameCleaner.ReplaceAllString(u.Host+u.Path, "_"), "_")
	if clean == "" {
		return HashString(rawURL)
	}
	return clean + "-" + HashString(rawURL)[:8]
}
