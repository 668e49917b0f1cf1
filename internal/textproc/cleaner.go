package textproc

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// ocrArtifacts are substrings the recognizer reliably mis-reads from window
// chrome and cursors. They are removed wherever they appear.
var ocrArtifacts = []string{
	"­",     // soft hyphen
	"\uFEFF",     // BOM
	"​",     // zero-width space
	"|||",        // window-edge scan lines
	"….",
}

// minLineChars is the minimum number of non-whitespace characters a line must
// carry to survive cleaning. Shorter lines are OCR noise.
const minLineChars = 3

// minContentTokens is the number of tokens longer than 2 characters required
// for a capture to be worth persisting.
const minContentTokens = 5

// Clean normalizes raw recognized text: artifact substrings are removed,
// lines with fewer than 3 non-whitespace characters are dropped, runs of 3+
// blank lines collapse to a single blank line, and the result is trimmed.
func Clean(raw string) string {
	// Removal runs to a fixpoint: deleting one occurrence can splice the
	// surrounding text into a new one.
	for changed := true; changed; {
		changed = false
		for _, artifact := range ocrArtifacts {
			if strings.Contains(raw, artifact) {
				raw = strings.ReplaceAll(raw, artifact, "")
				changed = true
			}
		}
	}

	// Drop noise lines first so they don't break up blank runs.
	kept := make([]string, 0, 64)
	for _, line := range strings.Split(raw, "\n") {
		stripped := strings.Join(strings.Fields(line), "")
		if stripped != "" && len([]rune(stripped)) < minLineChars {
			continue
		}
		kept = append(kept, line)
	}

	// Collapse runs of 3+ blank lines to exactly one blank line.
	out := make([]string, 0, len(kept))
	blankRun := 0
	for _, line := range kept {
		if strings.TrimSpace(line) == "" {
			blankRun++
			continue
		}
		if blankRun >= 3 {
			out = append(out, "")
		} else {
			for i := 0; i < blankRun; i++ {
				out = append(out, "")
			}
		}
		blankRun = 0
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// HasMinimumContent reports whether text carries at least 5 tokens longer
// than 2 characters. Near-empty captures are not worth persisting.
func HasMinimumContent(text string) bool {
	count := 0
	for _, tok := range strings.Fields(text) {
		if len([]rune(tok)) > 2 {
			count++
			if count >= minContentTokens {
				return true
			}
		}
	}
	return false
}

// ContentHash returns a hex sha256 digest of the cleaned text. The digest is
// stable across process restarts, so consecutive-duplicate suppression holds
// across a restart boundary too.
func ContentHash(cleaned string) string {
	sum := sha256.Sum256([]byte(cleaned))
	return hex.EncodeToString(sum[:])
}

// Deduper suppresses consecutive duplicate captures. State is the hash and
// app of the most recently accepted capture only; a duplicate separated by
// other activity is not suppressed.
type Deduper struct {
	mu       sync.Mutex
	lastHash string
	lastApp  string
}

// NewDeduper returns an empty Deduper; the first observation is never a
// duplicate.
func NewDeduper() *Deduper {
	return &Deduper{}
}

// IsDuplicate reports whether cleaned text for app matches the most recently
// committed capture. It never advances state; call Commit once the capture
// has actually been persisted, so a failed write cannot suppress its
// successor.
func (d *Deduper) IsDuplicate(cleaned, app string) bool {
	hash := ContentHash(cleaned)

	d.mu.Lock()
	defer d.mu.Unlock()
	return hash == d.lastHash && app == d.lastApp
}

// Commit records cleaned text as the most recently accepted capture. Also
// usable to prime the deduper from a persisted capture after restart.
func (d *Deduper) Commit(cleaned, app string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastHash = ContentHash(cleaned)
	d.lastApp = app
}
