package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/retraceapp/retrace/internal/config"
	"github.com/retraceapp/retrace/internal/store"
)

// testSetup creates a temporary database and config for testing.
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

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func resultPayload(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return payload
}

func insertTestCapture(t *testing.T, db *sql.DB, app, text string, ts time.Time) {
	t.Helper()
	title := app + " window"
	sessionID := app + "-1000"
	err := store.InsertRecognizedText(db, &store.CaptureRecord{
		FrameID:     1,
		CapturedAt:  ts.Unix(),
		App:         app,
		WindowTitle: &title,
		SessionID:   &sessionID,
		Text:        text,
	})
	if err != nil {
		t.Fatalf("insert capture: %v", err)
	}
}

func TestHandleSearch(t *testing.T) {
	db, cfg := testSetup(t)
	h := NewHandlers(db, cfg)

	insertTestCapture(t, db, "Safari", "reading about goroutine leaks", time.Now())
	insertTestCapture(t, db, "Xcode", "func main build succeeded", time.Now())

	res, err := h.HandleSearch(context.Background(), makeRequest(map[string]any{
		"query": "goroutine",
	}))
	if err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %v", res.Content)
	}
	payload := resultPayload(t, res)
	if payload["count"].(float64) != 1 {
		t.Fatalf("count = %v, want 1", payload["count"])
	}
}

func TestHandleSearchMissingQuery(t *testing.T) {
	db, cfg := testSetup(t)
	h := NewHandlers(db, cfg)

	res, err := h.HandleSearch(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if !res.IsError {
		t.Fatal("empty query should produce an error result")
	}
	payload := resultPayload(t, res)
	errObj := payload["error"].(map[string]any)
	if errObj["code"] != "INVALID_REQUEST" {
		t.Fatalf("code = %v, want INVALID_REQUEST", errObj["code"])
	}
}

func TestHandleTimeline(t *testing.T) {
	db, cfg := testSetup(t)
	h := NewHandlers(db, cfg)

	now := time.Now()
	insertTestCapture(t, db, "Safari", "first capture body text here", now.Add(-time.Minute))
	insertTestCapture(t, db, "Xcode", "second capture body text here", now)

	res, err := h.HandleTimeline(context.Background(), makeRequest(map[string]any{
		"limit": 10,
	}))
	if err != nil {
		t.Fatalf("HandleTimeline: %v", err)
	}
	payload := resultPayload(t, res)
	entries := payload["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	first := entries[0].(map[string]any)
	if first["app"] != "Xcode" {
		t.Fatalf("newest entry app = %v, want Xcode", first["app"])
	}
}

func TestHandleJournal(t *testing.T) {
	db, cfg := testSetup(t)
	h := NewHandlers(db, cfg)

	dayDir := filepath.Join(cfg.ArchiveDir, "2026-03-14")
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dayDir, "journal.md"), []byte("# Journal 2026-03-14\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := h.HandleJournal(context.Background(), makeRequest(map[string]any{
		"date": "2026-03-14",
	}))
	if err != nil {
		t.Fatalf("HandleJournal: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %v", res.Content)
	}
	payload := resultPayload(t, res)
	if payload["journal"] != "# Journal 2026-03-14\n" {
		t.Fatalf("journal = %q", payload["journal"])
	}

	// Missing day.
	res, err = h.HandleJournal(context.Background(), makeRequest(map[string]any{
		"date": "1999-01-01",
	}))
	if err != nil {
		t.Fatalf("HandleJournal: %v", err)
	}
	if !res.IsError {
		t.Fatal("missing journal should produce an error result")
	}

	// Bad date.
	res, _ = h.HandleJournal(context.Background(), makeRequest(map[string]any{
		"date": "March 14",
	}))
	if !res.IsError {
		t.Fatal("malformed date should produce an error result")
	}
}

func TestHandleChunk(t *testing.T) {
	db, cfg := testSetup(t)
	h := NewHandlers(db, cfg)

	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	if _, err := store.RegisterVideoChunk(db, started, "/tmp/c.mp4", 30); err != nil {
		t.Fatal(err)
	}

	res, err := h.HandleChunk(context.Background(), makeRequest(map[string]any{
		"at": started.Add(45 * time.Second).Format(time.RFC3339),
	}))
	if err != nil {
		t.Fatalf("HandleChunk: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %v", res.Content)
	}
	payload := resultPayload(t, res)
	if payload["path"] != "/tmp/c.mp4" {
		t.Fatalf("path = %v", payload["path"])
	}

	res, _ = h.HandleChunk(context.Background(), makeRequest(map[string]any{
		"at": "yesterday",
	}))
	if !res.IsError {
		t.Fatal("malformed timestamp should produce an error result")
	}
}

func TestValidateDisabledTools(t *testing.T) {
	unknown := ValidateDisabledTools([]string{"activity_search", "frame_export"})
	if len(unknown) != 1 || unknown[0] != "frame_export" {
		t.Fatalf("unknown = %v", unknown)
	}
}

func TestNewServerSkipsDisabledTools(t *testing.T) {
	db, cfg := testSetup(t)
	cfg.DisabledTools = []string{"activity_chunk"}

	s := NewServer(db, cfg, "test")
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != len(toolRegistry) {
		t.Fatalf("names = %d, want %d", len(names), len(toolRegistry))
	}
}
