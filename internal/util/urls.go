package util

import (
	"net/url"
	"strings"
)

// NormalizeURL trims raw and checks it is an absolute http(s) URL with a
// host. ok is false for anything that should be dropped.
func NormalizeURL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	return s, true
}
