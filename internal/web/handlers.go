package web

import (
	"database/sql"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/retraceapp/retrace/internal/config"
	"github.com/retraceapp/retrace/internal/errors"
	"github.com/retraceapp/retrace/internal/store"
)

// Handlers contains HTTP route handlers for the web viewer.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
}

// HandleTimeline handles GET /timeline — recent captures, newest first.
func (h *Handlers) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)

	records, err := store.RecentCaptures(h.db, limit)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "timeline", TimelinePageData{
		PageData: PageData{
			Title:   "Timeline",
			Version: h.renderer.version,
			Nav:     "timeline",
		},
		Records: records,
		Limit:   limit,
	})
}

// HandleSearch handles GET /search — full-text search over captures.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	data := SearchPageData{
		PageData: PageData{
			Title:   "Search",
			Version: h.renderer.version,
			Nav:     "search",
		},
		Query:    query,
		HasQuery: query != "",
	}

	if query == "" {
		h.renderer.renderPage(w, "search", data)
		return
	}

	results, err := store.SearchText(h.db, query, parseIntParam(r, "limit", 20))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data.Results = results
	h.renderer.renderPage(w, "search", data)
}

// HandleJournal handles GET /journal/{date} — a day's journal and digest.
func (h *Handlers) HandleJournal(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("date must be YYYY-MM-DD"))
		return
	}

	dayDir := filepath.Join(h.cfg.ArchiveDir, date)
	journal, jErr := os.ReadFile(filepath.Join(dayDir, "journal.md"))
	digest, dErr := os.ReadFile(filepath.Join(dayDir, "digest.md"))
	if jErr != nil && dErr != nil {
		h.renderer.renderError(w, r, errors.NewNotFound("journal for "+date))
		return
	}

	h.renderer.renderPage(w, "journal", JournalPageData{
		PageData: PageData{
			Title:   "Journal " + date,
			Version: h.renderer.version,
			Nav:     "journal",
		},
		Date:        date,
		JournalHTML: renderMarkdown(string(journal)),
		DigestHTML:  renderMarkdown(string(digest)),
	})
}

// HandleChunkLookup handles GET /api/chunk?at=<rfc3339> — JSON chunk lookup.
func (h *Handlers) HandleChunkLookup(w http.ResponseWriter, r *http.Request) {
	at, err := time.Parse(time.RFC3339, r.URL.Query().Get("at"))
	if err != nil {
		renderJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"code":    string(errors.ErrInvalidRequest),
				"message": "at must be RFC 3339",
			},
		})
		return
	}

	chunk, lookupErr := store.ChunkForTime(h.db, at)
	if lookupErr != nil {
		h.renderer.renderError(w, r, lookupErr)
		return
	}
	renderJSON(w, http.StatusOK, chunk)
}

// parseIntParam parses an integer query parameter with a fallback default.
func parseIntParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
