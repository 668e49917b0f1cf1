package activity

import (
	"net/url"
	"regexp"
	"strings"
)

// protoURLRe matches protocol-qualified URLs in OCR text.
var protoURLRe = regexp.MustCompile(`https?://[^\s<>"']+`)

// bareDomainRe matches bare recognizable domains like "github.com" or
// "docs.google.com" without a scheme. The TLD allowlist keeps OCR noise
// ("main.go", "v1.2") out.
var bareDomainRe = regexp.MustCompile(`\b([a-z0-9][a-z0-9-]*\.)+(com|org|net|io|dev|app|co|edu|gov)\b`)

// RecoverURL opportunistically pulls a URL out of recognized text: a
// protocol-qualified URL wins, then a bare domain. Returns "" when nothing
// recognizable is present.
func RecoverURL(text string) string {
	if m := protoURLRe.FindString(text); m != "" {
		return strings.TrimRight(m, ".,;)")
	}
	if m := bareDomainRe.FindString(strings.ToLower(text)); m != "" {
		return m
	}
	return ""
}

// Domain reduces a URL (or bare domain) to its host for domain counting.
func Domain(raw string) string {
	if !strings.Contains(raw, "://") {
		return strings.ToLower(strings.SplitN(raw, "/", 2)[0])
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(u.Host, "www."))
}
