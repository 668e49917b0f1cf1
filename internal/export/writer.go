// Package export persists captures and activity aggregates as markdown
// documents under a date-keyed archive directory.
package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/retraceapp/retrace/internal/activity"
	"github.com/retraceapp/retrace/internal/errors"
	"github.com/retraceapp/retrace/internal/store"
)

// Writer persists per-capture documents and the hourly/daily aggregate
// documents. The date folder a capture lands in is the sole driver of daily
// rollover: when it changes, OnDayEnd fires for the previous date before the
// new day's first capture is written.
type Writer struct {
	mu          sync.Mutex
	dir         string
	currentDate string
	onDayEnd    func(prevDate string)
	logger      *slog.Logger
}

func NewWriter(dir string, onDayEnd func(prevDate string), logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, onDayEnd: onDayEnd, logger: logger}
}

// WriteCapture writes one accepted capture and returns the file path.
// Date folders and filenames use local wall-clock time.
func (w *Writer) WriteCapture(c *store.CaptureRecord) (string, error) {
	ts := time.Unix(c.CapturedAt, 0)
	date := ts.Format("2006-01-02")

	w.mu.Lock()
	prev := w.currentDate
	w.currentDate = date
	w.mu.Unlock()

	if prev != "" && prev != date && w.onDayEnd != nil {
		w.onDayEnd(prev)
	}

	dayDir := filepath.Join(w.dir, date)
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return "", errors.NewEnvironment("archive directory not writable", err)
	}

	name := ts.Format("15-04-05") + "_" + sanitizeApp(c.App) + ".md"
	path := filepath.Join(dayDir, name)

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "time: %s\n", ts.Format(time.RFC3339))
	fmt.Fprintf(&b, "app: %s\n", c.App)
	fmt.Fprintf(&b, "frame: %d\n", c.FrameID)
	if c.WindowTitle != nil && *c.WindowTitle != "" {
		fmt.Fprintf(&b, "title: %s\n", quoteField(*c.WindowTitle))
	}
	if c.URL != nil && *c.URL != "" {
		fmt.Fprintf(&b, "url: %s\n", *c.URL)
	}
	if c.SessionID != nil && *c.SessionID != "" {
		fmt.Fprintf(&b, "session: %s\n", *c.SessionID)
	}
	if c.SessionDuration != nil {
		fmt.Fprintf(&b, "session_seconds: %d\n", *c.SessionDuration)
	}
	b.WriteString("---\n\n")
	b.WriteString(c.Text)
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", errors.NewTransient("capture export", err)
	}
	return path, nil
}

// WriteHourlySummary persists one hour's summary as hour-HH.md in the
// corresponding date folder.
func (w *Writer) WriteHourlySummary(s *activity.HourlySummary) (string, error) {
	dayDir := filepath.Join(w.dir, s.Date)
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return "", errors.NewEnvironment("archive directory not writable", err)
	}
	path := filepath.Join(dayDir, fmt.Sprintf("hour-%02d.md", s.Hour))

	var b strings.Builder
	fmt.Fprintf(&b, "# %s %02d:00\n\n", s.Date, s.Hour)
	fmt.Fprintf(&b, "%s\n", s.Summary)
	writeCountSection(&b, "Apps (minutes)", s.AppMinutes)
	writeCountSection(&b, "Domains", s.Domains)
	writeTimeline(&b, s.Timeline)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", errors.NewTransient("hourly summary export", err)
	}
	return path, nil
}

// WriteDailyJournal persists the day's journal as journal.md in the date
// folder.
func (w *Writer) WriteDailyJournal(j *activity.DailyJournal) (string, error) {
	dayDir := filepath.Join(w.dir, j.Date)
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return "", errors.NewEnvironment("archive directory not writable", err)
	}
	path := filepath.Join(dayDir, "journal.md")

	var b strings.Builder
	fmt.Fprintf(&b, "# Journal %s\n\n", j.Date)
	fmt.Fprintf(&b, "Active time: %dh %dm\n\n", j.ActiveHours, j.ActiveMins)
	fmt.Fprintf(&b, "%s\n", j.Summary)
	if len(j.Projects) > 0 {
		b.WriteString("\n## Projects\n\n")
		for _, p := range j.Projects {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	writeCountSection(&b, "Apps (minutes)", j.AppMinutes)
	writeCountSection(&b, "Domains", j.Domains)
	if len(j.KeyMoments) > 0 {
		b.WriteString("\n## Key moments\n\n")
		for _, m := range j.KeyMoments {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	writeTimeline(&b, j.Timeline)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", errors.NewTransient("daily journal export", err)
	}
	return path, nil
}

// WriteDigest persists the day's numeric rollup as digest.md.
func (w *Writer) WriteDigest(d *activity.Digest) (string, error) {
	dayDir := filepath.Join(w.dir, d.Date)
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return "", errors.NewEnvironment("archive directory not writable", err)
	}
	path := filepath.Join(dayDir, "digest.md")

	var b strings.Builder
	fmt.Fprintf(&b, "# Digest %s\n", d.Date)
	writeCountSection(&b, "Captures per app", d.AppCaptures)
	writeCountSection(&b, "URLs", d.URLCounts)
	writeCountSection(&b, "Domains", d.Domains)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", errors.NewTransient("digest export", err)
	}
	return path, nil
}

// CurrentDate returns the date folder of the most recently written capture,
// or "" before the first write.
func (w *Writer) CurrentDate() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentDate
}

// writeCountSection renders a map as a sorted "- key: n" list. Keys are
// emitted in lexical order so output is stable across runs.
func writeCountSection(b *strings.Builder, heading string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(b, "\n## %s\n\n", heading)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %d\n", k, counts[k])
	}
}

func writeTimeline(b *strings.Builder, entries []activity.Entry) {
	if len(entries) == 0 {
		return
	}
	b.WriteString("\n## Timeline\n\n")
	for _, e := range entries {
		fmt.Fprintf(b, "- %s %s", e.Time, e.App)
		if e.Title != "" {
			fmt.Fprintf(b, " %s", quoteField(e.Title))
		}
		if e.URL != "" {
			fmt.Fprintf(b, " <%s>", e.URL)
		}
		if len(e.Intents) > 0 {
			fmt.Fprintf(b, " (%s)", strings.Join(e.Intents, "; "))
		}
		b.WriteString("\n")
	}
}

// quoteField wraps a free-form value in double quotes, escaping backslashes
// and embedded quotes.
func quoteField(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// sanitizeApp makes an application name safe for use in a filename.
func sanitizeApp(app string) string {
	if app == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range app {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
