package intent

import (
	"regexp"
	"strings"
)

// sourceExtensions are the file extensions accepted as evidence of editing.
var sourceExtensions = map[string]bool{
	"go": true, "swift": true, "c": true, "h": true, "cpp": true,
	"hpp": true, "m": true, "mm": true, "rs": true, "py": true,
	"rb": true, "js": true, "jsx": true, "ts": true, "tsx": true,
	"java": true, "kt": true, "cs": true, "php": true, "sh": true,
	"sql": true, "html": true, "css": true, "scss": true,
	"json": true, "yaml": true, "yml": true, "toml": true,
	"md": true, "proto": true, "tf": true,
}

// fileTokenRe matches file-name-shaped tokens in text: a stem, a dot, and a
// short alphabetic extension.
var fileTokenRe = regexp.MustCompile(`[\w][\w.-]*\.[A-Za-z]{1,5}\b`)

// maxEditedFiles bounds how many file intents one capture contributes.
const maxEditedFiles = 3

// editedFiles recovers names of files being edited, from window titles first
// (highest signal) and then from the text itself, filtered through
// looksLikeSourceFile.
func editedFiles(text, windowTitle, app string) []string {
	var files []string
	seen := make(map[string]bool)

	add := func(tok string) {
		if len(files) >= maxEditedFiles {
			return
		}
		tok = strings.Trim(tok, ".,;:()[]\"'")
		if !looksLikeSourceFile(tok) || seen[tok] {
			return
		}
		seen[tok] = true
		files = append(files, tok)
	}

	if ideApps[app] && windowTitle != "" {
		if m := ideTitleRe.FindStringSubmatch(windowTitle); m != nil {
			add(strings.TrimSpace(m[1]))
		}
		for _, tok := range fileTokenRe.FindAllString(windowTitle, 4) {
			add(tok)
		}
	}

	if ideApps[app] || terminalApps[app] {
		for _, tok := range fileTokenRe.FindAllString(text, 16) {
			add(tok)
		}
	}

	return files
}

// looksLikeSourceFile is the strict validator for edited-file candidates.
// OCR produces many file-shaped strings that are not files: reverse-domain
// bundle ids, truncated words, scan garbage. A candidate passes only when it
// has a recognized source extension and a plausible stem.
func looksLikeSourceFile(tok string) bool {
	dot := strings.LastIndex(tok, ".")
	if dot <= 0 || dot == len(tok)-1 {
		return false
	}

	stem := tok[:dot]
	ext := strings.ToLower(tok[dot+1:])

	if !sourceExtensions[ext] {
		return false
	}

	// Reverse-domain tokens: com.apple.dt.Xcode and friends
	if strings.Count(stem, ".") >= 2 {
		return false
	}
	if first := strings.SplitN(stem, ".", 2)[0]; first == "com" || first == "org" || first == "net" || first == "io" {
		return false
	}

	// Single and double letter stems are almost always OCR truncation
	base := stem
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		base = base[idx+1:]
	}
	if len(base) <= 2 {
		return false
	}

	// OCR-garbage shapes: no letters, or runs of the same character
	hasLetter := false
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return false
	}
	if isRepeatedRune(base) {
		return false
	}

	return true
}

// isRepeatedRune reports whether s is one character repeated, e.g. "lll".
func isRepeatedRune(s string) bool {
	runes := []rune(s)
	if len(runes) < 3 {
		return false
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}
