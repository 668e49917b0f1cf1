package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/retraceapp/retrace/internal/capture"
	"github.com/retraceapp/retrace/internal/config"
	"github.com/retraceapp/retrace/internal/errors"
	"github.com/retraceapp/retrace/internal/store"
)

type fakeSource struct {
	mu sync.Mutex
	n  byte
}

func (f *fakeSource) CaptureFrame(ctx context.Context, displayID int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return []byte{0xFF, f.n}, nil
}

func (f *fakeSource) ActiveDisplay() int { return 1 }

type fakeMeta struct {
	app   string
	title string
	url   string
}

func (f *fakeMeta) FrontmostApp() (string, bool) { return f.app, f.app != "" }

func (f *fakeMeta) WindowTitle(app string) (string, bool) { return f.title, f.title != "" }

func (f *fakeMeta) BrowserURL(app string) (string, bool) { return f.url, f.url != "" }

func (f *fakeMeta) WindowBounds(app string) (capture.Rect, bool) {
	return capture.Rect{}, false
}

type fakeRecognizer struct{}

func (fakeRecognizer) Recognize(ctx context.Context, image []byte, region *capture.Rect, mode capture.RecognitionMode) ([]capture.Observation, error) {
	return []capture.Observation{{Text: string(image), Confidence: 0.9}}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, base string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ArchiveDir = filepath.Join(base, "archive")
	cfg.ChunkDir = filepath.Join(base, "chunks")
	cfg.EncoderBinary = "/bin/sh"
	return cfg
}

func newTestPipeline(t *testing.T, meta *fakeMeta) (*Pipeline, string) {
	t.Helper()
	base := t.TempDir()
	db, err := store.Init(base)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testConfig(t, base)
	p := New(cfg, db, Deps{
		Source:     &fakeSource{},
		Meta:       meta,
		Recognizer: fakeRecognizer{},
	}, testLogger())
	return p, cfg.ArchiveDir
}

func frameAt(id int64, app string, ts time.Time) capture.Frame {
	return capture.Frame{ID: id, Data: []byte{byte(id)}, CapturedAt: ts, App: app}
}

func captureFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		switch e.Name() {
		case "journal.md", "digest.md":
		default:
			names = append(names, e.Name())
		}
	}
	return names
}

// Three captures for one app: a duplicate in the middle is dropped, the
// other two export, and all three belong to one session.
func TestProcessTextDedupAndSession(t *testing.T) {
	meta := &fakeMeta{app: "Safari", title: "Example Page Title"}
	p, archive := newTestPipeline(t, meta)

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)
	hello := "Hello there from the browser page today"
	other := "Completely different text with five words"

	require.NoError(t, p.processText(hello, frameAt(1, "Safari", base)))
	err := p.processText(hello, frameAt(2, "Safari", base.Add(2*time.Second)))
	require.True(t, errors.Is(err, errors.ErrSkipped))
	require.NoError(t, p.processText(other, frameAt(3, "Safari", base.Add(5*time.Second))))

	files := captureFiles(t, filepath.Join(archive, "2026-03-14"))
	require.Len(t, files, 2)

	recs, err := store.RecentCaptures(p.db, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		require.NotNil(t, r.SessionID)
		require.Equal(t, "Safari-1000", *r.SessionID)
	}

	// Same title throughout: one timeline entry.
	day := p.agg.SnapshotDay()
	require.NotNil(t, day)
	require.Len(t, day.Timeline, 1)
}

func TestProcessTextSkipsThinAndEmpty(t *testing.T) {
	p, archive := newTestPipeline(t, &fakeMeta{app: "Safari"})

	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)
	err := p.processText("", frameAt(1, "Safari", ts))
	require.True(t, errors.Is(err, errors.ErrSkipped))

	err = p.processText("ok go", frameAt(2, "Safari", ts.Add(2*time.Second)))
	require.True(t, errors.Is(err, errors.ErrSkipped))

	_, statErr := os.Stat(filepath.Join(archive, "2026-03-14"))
	require.True(t, os.IsNotExist(statErr))
}

func TestDayRolloverWritesJournalAndDigest(t *testing.T) {
	meta := &fakeMeta{app: "Xcode", title: "main.go — retrace — Edited"}
	p, archive := newTestPipeline(t, meta)

	day1 := time.Date(2026, 3, 14, 23, 59, 0, 0, time.Local)
	day2 := time.Date(2026, 3, 15, 0, 1, 0, 0, time.Local)

	require.NoError(t, p.processText("func main launches the capture pipeline", frameAt(1, "Xcode", day1)))
	require.NoError(t, p.processText("completely different buffer drain logic here", frameAt(2, "Xcode", day2)))

	data, err := os.ReadFile(filepath.Join(archive, "2026-03-14", "journal.md"))
	require.NoError(t, err)
	require.Contains(t, string(data), "# Journal 2026-03-14")

	data, err = os.ReadFile(filepath.Join(archive, "2026-03-14", "digest.md"))
	require.NoError(t, err)
	require.Contains(t, string(data), "- Xcode: 1")

	// The new day starts clean.
	_, err = os.Stat(filepath.Join(archive, "2026-03-15", "journal.md"))
	require.True(t, os.IsNotExist(err))
	day := p.agg.SnapshotDay()
	require.NotNil(t, day)
	require.Len(t, day.Timeline, 1)
}

func TestFinalizeDayAtShutdown(t *testing.T) {
	meta := &fakeMeta{app: "Safari", title: "Weekend reading list and notes"}
	p, archive := newTestPipeline(t, meta)

	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)
	require.NoError(t, p.processText("some sufficiently long recognized text here", frameAt(1, "Safari", ts)))

	p.finalizeDay()

	for _, name := range []string{"hour-10.md", "journal.md", "digest.md"} {
		_, err := os.Stat(filepath.Join(archive, "2026-03-14", name))
		require.NoError(t, err, name)
	}
}

// A capture dropped by an export write failure must not become the dedup
// predecessor: the next identical frame still goes through.
func TestWriteFailureDoesNotPoisonDedup(t *testing.T) {
	p, archive := newTestPipeline(t, &fakeMeta{app: "Safari", title: "Docs"})

	// Occupy the date folder's path with a regular file so the write fails.
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)
	require.NoError(t, os.MkdirAll(archive, 0o755))
	blocked := filepath.Join(archive, "2026-03-14")
	require.NoError(t, os.WriteFile(blocked, nil, 0o644))

	text := "the same recognized text on both frames"
	err := p.processText(text, frameAt(1, "Safari", ts))
	require.Error(t, err)
	require.False(t, errors.Is(err, errors.ErrSkipped))

	require.NoError(t, os.Remove(blocked))
	require.NoError(t, p.processText(text, frameAt(2, "Safari", ts.Add(2*time.Second))))

	files := captureFiles(t, blocked)
	require.Len(t, files, 1)
}

// A pipeline built over an existing database continues frame ids above the
// persisted maximum, so inserts keep succeeding after a restart.
func TestFrameIDsContinueAcrossRestart(t *testing.T) {
	base := t.TempDir()
	db, err := store.Init(base)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// Rows left behind by a previous run.
	start := time.Now().Add(-time.Hour)
	require.NoError(t, store.InsertFrame(db, 1, start, "Safari"))
	require.NoError(t, store.InsertFrame(db, 2, start.Add(2*time.Second), "Safari"))

	cfg := testConfig(t, base)
	cfg.CaptureIntervalSec = 1
	p := New(cfg, db, Deps{
		Source:     &fakeSource{},
		Meta:       &fakeMeta{app: "Safari"},
		Recognizer: fakeRecognizer{},
	}, testLogger())

	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	require.Eventually(t, func() bool {
		max, err := store.MaxFrameID(db)
		return err == nil && max >= 3
	}, 5*time.Second, 50*time.Millisecond)
}

// Close with sub-threshold frames still buffered drains and encodes them
// into one chunk synchronously.
func TestCloseEncodesBufferedFrames(t *testing.T) {
	base := t.TempDir()
	db, err := store.Init(base)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testConfig(t, base)
	cfg.CaptureIntervalSec = 60 // keep scheduler ticks out of the test window
	cfg.EncoderBinary = writeStubEncoder(t, base)
	p := New(cfg, db, Deps{
		Source:     &fakeSource{},
		Meta:       &fakeMeta{app: "Safari"},
		Recognizer: fakeRecognizer{},
	}, testLogger())

	require.NoError(t, p.Start(context.Background()))

	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)
	for i := int64(1); i <= 3; i++ {
		p.acceptFrame(frameAt(i, "Safari", ts.Add(time.Duration(i)*2*time.Second)))
	}
	p.Close()

	entries, err := os.ReadDir(cfg.ChunkDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	rec, err := store.ChunkForTime(db, ts.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 3, rec.FrameCount)
	require.FileExists(t, rec.Path)
}

// writeStubEncoder drops an executable that accepts any encoder invocation:
// it consumes stdin and creates the output file named by the last argument.
func writeStubEncoder(t *testing.T, dir string) string {
	t.Helper()
	script := "#!/bin/sh\nfor last in \"$@\"; do :; done\ncat > /dev/null\n: > \"$last\"\n"
	path := filepath.Join(dir, "stub-encoder")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestPipelineLifecycle(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeMeta{app: "Safari", title: "Page"})

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background())) // duplicate start is a no-op
	p.Pause()
	p.Close()
	require.NoError(t, p.Err())
}
