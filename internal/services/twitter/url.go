package twitter

import (
	"net/url"
	"regexp"
	"strings"
)

// Accepted post URL shapes: canonical domain, alternate short domain and the
// mobile subdomain, each with a numeric status segment.
var postURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:www\.)?twitter\.com/\w+/status/(\d+)`),
	regexp.MustCompile(`^(?:www\.)?x\.com/\w+/status/(\d+)`),
	regexp.MustCompile(`^mobile\.twitter\.com/\w+/status/(\d+)`),
}

// ExtractPostID extracts the numeric post identifier from a post URL.
// Returns ("", false) when no accepted shape matches.
func ExtractPostID(raw string) (string, bool) {
	target := hostAndPath(strings.TrimSpace(raw))

	for _, pattern := range postURLPatterns {
		if match := pattern.FindStringSubmatch(target); len(match) > 1 {
			return match[1], true
		}
	}
	return "", false
}

// hostAndPath strips the scheme, user info, query and fragment so patterns can
// anchor on the host. Scheme-less input is accepted.
func hostAndPath(raw string) string {
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.ToLower(u.Hostname()) + u.EscapedPath()
}
