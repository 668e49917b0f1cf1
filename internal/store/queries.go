package store

import (
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/retraceapp/retrace/internal/errors"
)

// CaptureRecord is a persisted, accepted capture: one deduplicated OCR result
// with its metadata. Rows are immutable after insert.
type CaptureRecord struct {
	ID              string  `json:"id"`
	FrameID         int64   `json:"frame_id"`
	CapturedAt      int64   `json:"captured_at"`
	App             string  `json:"app"`
	WindowTitle     *string `json:"window_title,omitempty"`
	URL             *string `json:"url,omitempty"`
	SessionID       *string `json:"session_id,omitempty"`
	SessionDuration *int64  `json:"session_duration,omitempty"`
	Text            string  `json:"text"`
	CreatedAt       int64   `json:"created_at"`
}

// ChunkRecord maps a chunk start time to its encoded video file.
type ChunkRecord struct {
	ID         int64  `json:"id"`
	StartedAt  int64  `json:"started_at"`
	Path       string `json:"path"`
	FrameCount int    `json:"frame_count"`
	CreatedAt  int64  `json:"created_at"`
}

// SearchResult is one full-text match with a highlight snippet.
type SearchResult struct {
	Capture CaptureRecord `json:"capture"`
	Snippet string        `json:"snippet"`
}

// NewCaptureID generates a ULID for a capture record.
func NewCaptureID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// InsertFrame records an accepted frame's identity and timing.
func InsertFrame(db *sql.DB, frameID int64, capturedAt time.Time, app string) error {
	_, err := db.Exec(
		"INSERT INTO frames (id, captured_at, app) VALUES (?, ?, ?)",
		frameID, capturedAt.Unix(), app,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// MaxFrameID returns the highest frame id on record, or 0 for an empty
// database. The capture scheduler seeds its id sequence from it so frame
// ids keep ascending across process restarts.
func MaxFrameID(db *sql.DB) (int64, error) {
	var id sql.NullInt64
	if err := db.QueryRow("SELECT MAX(id) FROM frames").Scan(&id); err != nil {
		return 0, errors.NewInternal(err)
	}
	return id.Int64, nil
}

// RegisterVideoChunk records a successfully encoded chunk file.
func RegisterVideoChunk(db *sql.DB, startedAt time.Time, path string, frameCount int) (*ChunkRecord, error) {
	now := time.Now().Unix()
	res, err := db.Exec(
		"INSERT INTO chunks (started_at, path, frame_count, created_at) VALUES (?, ?, ?, ?)",
		startedAt.Unix(), path, frameCount, now,
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &ChunkRecord{
		ID:         id,
		StartedAt:  startedAt.Unix(),
		Path:       path,
		FrameCount: frameCount,
		CreatedAt:  now,
	}, nil
}

// InsertRecognizedText stores an accepted capture and indexes its text for
// full-text search (the FTS mirror is maintained by an insert trigger).
func InsertRecognizedText(db *sql.DB, c *CaptureRecord) error {
	if c.ID == "" {
		c.ID = NewCaptureID(time.Unix(c.CapturedAt, 0))
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().Unix()
	}

	_, err := db.Exec(`
		INSERT INTO captures (
			id, frame_id, captured_at, app, window_title, url,
			session_id, session_duration, text, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FrameID, c.CapturedAt, c.App,
		toNullString(c.WindowTitle), toNullString(c.URL),
		toNullString(c.SessionID), toNullInt64(c.SessionDuration),
		c.Text, c.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// SearchText runs a full-text query over capture text, app, and window title,
// ranked by relevance. Snippets carry [ and ] highlight markers.
func SearchText(db *sql.DB, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(`
		SELECT c.id, c.frame_id, c.captured_at, c.app, c.window_title, c.url,
			c.session_id, c.session_duration, c.text, c.created_at,
			snippet(captures_fts, 0, '[', ']', '...', 16)
		FROM captures_fts
		JOIN captures c ON c.rowid = captures_fts.rowid
		WHERE captures_fts MATCH ?
		ORDER BY bm25(captures_fts)
		LIMIT ?`,
		ftsQuote(query), limit,
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var title, url, sessionID sql.NullString
		var sessionDur sql.NullInt64
		if err := rows.Scan(
			&r.Capture.ID, &r.Capture.FrameID, &r.Capture.CapturedAt,
			&r.Capture.App, &title, &url, &sessionID, &sessionDur,
			&r.Capture.Text, &r.Capture.CreatedAt, &r.Snippet,
		); err != nil {
			return nil, errors.NewInternal(err)
		}
		r.Capture.WindowTitle = fromNullString(title)
		r.Capture.URL = fromNullString(url)
		r.Capture.SessionID = fromNullString(sessionID)
		r.Capture.SessionDuration = fromNullInt64(sessionDur)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return results, nil
}

// ChunkForTime returns the most recent chunk starting at or before ts,
// for playback lookup.
func ChunkForTime(db *sql.DB, ts time.Time) (*ChunkRecord, error) {
	row := db.QueryRow(`
		SELECT id, started_at, path, frame_count, created_at
		FROM chunks
		WHERE started_at <= ?
		ORDER BY started_at DESC
		LIMIT 1`,
		ts.Unix(),
	)

	var c ChunkRecord
	err := row.Scan(&c.ID, &c.StartedAt, &c.Path, &c.FrameCount, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("chunk covering " + ts.Format(time.RFC3339))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &c, nil
}

// RecentCaptures returns the newest capture records, newest first.
func RecentCaptures(db *sql.DB, limit int) ([]CaptureRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, frame_id, captured_at, app, window_title, url,
			session_id, session_duration, text, created_at
		FROM captures
		ORDER BY captured_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var records []CaptureRecord
	for rows.Next() {
		var c CaptureRecord
		var title, url, sessionID sql.NullString
		var sessionDur sql.NullInt64
		if err := rows.Scan(
			&c.ID, &c.FrameID, &c.CapturedAt, &c.App, &title, &url,
			&sessionID, &sessionDur, &c.Text, &c.CreatedAt,
		); err != nil {
			return nil, errors.NewInternal(err)
		}
		c.WindowTitle = fromNullString(title)
		c.URL = fromNullString(url)
		c.SessionID = fromNullString(sessionID)
		c.SessionDuration = fromNullInt64(sessionDur)
		records = append(records, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return records, nil
}

// ftsQuote wraps each whitespace-separated term in double quotes so that
// user input containing FTS5 operators is treated literally.
func ftsQuote(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

func toNullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func toNullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func fromNullInt64(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	i := ni.Int64
	return &i
}
