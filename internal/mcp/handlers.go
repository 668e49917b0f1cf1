package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/retraceapp/retrace/internal/config"
	"github.com/retraceapp/retrace/internal/errors"
	"github.com/retraceapp/retrace/internal/store"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{db: db, cfg: cfg}
}

// Request types for each tool

// SearchRequest represents the arguments for activity_search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// TimelineRequest represents the arguments for activity_timeline.
type TimelineRequest struct {
	Limit int `json:"limit,omitempty"`
}

// JournalRequest represents the arguments for activity_journal.
type JournalRequest struct {
	Date string `json:"date"`
}

// ChunkRequest represents the arguments for activity_chunk.
type ChunkRequest struct {
	At string `json:"at"`
}

// HandleSearch handles the activity_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	results, err := store.SearchText(h.db, input.Query, input.Limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// HandleTimeline handles the activity_timeline tool call.
func (h *Handlers) HandleTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TimelineRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	records, err := store.RecentCaptures(h.db, input.Limit)
	if err != nil {
		return errorResult(err), nil
	}

	type entry struct {
		Time      string `json:"time"`
		App       string `json:"app"`
		Title     string `json:"title,omitempty"`
		URL       string `json:"url,omitempty"`
		SessionID string `json:"session_id,omitempty"`
	}
	entries := make([]entry, 0, len(records))
	for _, r := range records {
		e := entry{
			Time: time.Unix(r.CapturedAt, 0).Format(time.RFC3339),
			App:  r.App,
		}
		if r.WindowTitle != nil {
			e.Title = *r.WindowTitle
		}
		if r.URL != nil {
			e.URL = *r.URL
		}
		if r.SessionID != nil {
			e.SessionID = *r.SessionID
		}
		entries = append(entries, e)
	}

	return successResult(map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// HandleJournal handles the activity_journal tool call.
func (h *Handlers) HandleJournal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JournalRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if _, err := time.Parse("2006-01-02", input.Date); err != nil {
		return errorResult(errors.NewInvalidRequest("date must be YYYY-MM-DD")), nil
	}

	dayDir := filepath.Join(h.cfg.ArchiveDir, input.Date)
	journal, jErr := os.ReadFile(filepath.Join(dayDir, "journal.md"))
	digest, dErr := os.ReadFile(filepath.Join(dayDir, "digest.md"))
	if jErr != nil && dErr != nil {
		return errorResult(errors.NewNotFound("journal for " + input.Date)), nil
	}

	return successResult(map[string]any{
		"date":    input.Date,
		"journal": string(journal),
		"digest":  string(digest),
	})
}

// HandleChunk handles the activity_chunk tool call.
func (h *Handlers) HandleChunk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChunkRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	at, err := time.Parse(time.RFC3339, input.At)
	if err != nil {
		return errorResult(errors.NewInvalidRequest("at must be RFC 3339")), nil
	}

	chunk, err := store.ChunkForTime(h.db, at)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(chunk)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are not exposed to avoid leaking paths or SQL text.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if rErr, ok := err.(*errors.RetraceError); ok {
		errorObj := map[string]any{
			"code":    rErr.Code,
			"message": rErr.Message,
		}
		if rErr.Code != errors.ErrInternal && rErr.Details != nil {
			errorObj["details"] = rErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
