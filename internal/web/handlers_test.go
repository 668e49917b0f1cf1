package web

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/retraceapp/retrace/internal/config"
	"github.com/retraceapp/retrace/internal/store"
)

func testSetup(t *testing.T) (*sql.DB, *config.Config) {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := store.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.ArchiveDir = filepath.Join(tmpDir, "archive")
	return database, cfg
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func seedCapture(t *testing.T, db *sql.DB, app, text string, ts time.Time) {
	t.Helper()
	title := app + " window"
	err := store.InsertRecognizedText(db, &store.CaptureRecord{
		FrameID:     1,
		CapturedAt:  ts.Unix(),
		App:         app,
		WindowTitle: &title,
		Text:        text,
	})
	if err != nil {
		t.Fatalf("seed capture: %v", err)
	}
}

func TestRootRedirectsToTimeline(t *testing.T) {
	db, cfg := testSetup(t)
	srv := NewServer(db, cfg, "test", "127.0.0.1", 0)

	rec := get(t, srv.Handler, "/")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/timeline" {
		t.Fatalf("location = %q, want /timeline", loc)
	}
}

func TestTimelinePage(t *testing.T) {
	db, cfg := testSetup(t)
	seedCapture(t, db, "Safari", "reading the morning news today", time.Now())
	srv := NewServer(db, cfg, "test", "127.0.0.1", 0)

	rec := get(t, srv.Handler, "/timeline")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Safari") {
		t.Fatalf("timeline missing capture app:\n%s", body)
	}
	if !strings.Contains(body, "Safari window") {
		t.Fatal("timeline missing window title")
	}
}

func TestSecurityHeaders(t *testing.T) {
	db, cfg := testSetup(t)
	srv := NewServer(db, cfg, "test", "127.0.0.1", 0)

	rec := get(t, srv.Handler, "/timeline")
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("missing X-Frame-Options header")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatal("missing Content-Security-Policy header")
	}
}

func TestSearchPage(t *testing.T) {
	db, cfg := testSetup(t)
	seedCapture(t, db, "Xcode", "debugging a goroutine deadlock in the scheduler", time.Now())
	srv := NewServer(db, cfg, "test", "127.0.0.1", 0)

	// No query: form only.
	rec := get(t, srv.Handler, "/search")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = get(t, srv.Handler, "/search?q=deadlock")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "deadlock") {
		t.Fatal("search results missing matched term")
	}

	rec = get(t, srv.Handler, "/search?q=zzznomatch")
	if !strings.Contains(rec.Body.String(), "No matches") {
		t.Fatal("empty result message missing")
	}
}

func TestJournalPage(t *testing.T) {
	db, cfg := testSetup(t)
	srv := NewServer(db, cfg, "test", "127.0.0.1", 0)

	dayDir := filepath.Join(cfg.ArchiveDir, "2026-03-14")
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		t.Fatal(err)
	}
	journal := "# Journal 2026-03-14\n\nWorked on **retrace**.\n"
	if err := os.WriteFile(filepath.Join(dayDir, "journal.md"), []byte(journal), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := get(t, srv.Handler, "/journal/2026-03-14")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<strong>retrace</strong>") {
		t.Fatal("journal markdown not rendered to HTML")
	}

	rec = get(t, srv.Handler, "/journal/1999-01-01")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing journal status = %d, want 404", rec.Code)
	}

	rec = get(t, srv.Handler, "/journal/not-a-date")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d, want 400", rec.Code)
	}
}

func TestChunkLookupAPI(t *testing.T) {
	db, cfg := testSetup(t)
	srv := NewServer(db, cfg, "test", "127.0.0.1", 0)

	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	if _, err := store.RegisterVideoChunk(db, started, "/tmp/c.mp4", 30); err != nil {
		t.Fatal(err)
	}

	rec := get(t, srv.Handler, "/api/chunk?at="+started.Add(time.Minute).Format(time.RFC3339))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/tmp/c.mp4") {
		t.Fatal("chunk path missing from response")
	}

	rec = get(t, srv.Handler, "/api/chunk?at=whenever")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad time status = %d, want 400", rec.Code)
	}
}
