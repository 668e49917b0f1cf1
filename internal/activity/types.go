package activity

import "time"

// Entry is one meaningful change in the activity timeline. Entries are
// append-only and belong to both the live hour bucket and the live day
// bucket.
type Entry struct {
	Time    string   `json:"time"` // HH:MM
	App     string   `json:"app"`
	Title   string   `json:"title,omitempty"`
	URL     string   `json:"url,omitempty"`
	Intents []string `json:"intents,omitempty"`
}

// URLVisit tracks one unique URL within a day.
type URLVisit struct {
	FirstSeen string `json:"first_seen"` // HH:MM
	Count     int    `json:"count"`
}

// HourBucket accumulates one hour of activity. Exactly one bucket is live at
// a time; on rollover it is swapped out whole and summarized from the
// snapshot.
type HourBucket struct {
	Hour       int            `json:"hour"`
	Date       string         `json:"date"` // YYYY-MM-DD
	Timeline   []Entry        `json:"timeline"`
	URLs       map[string]bool `json:"-"`
	Domains    map[string]int `json:"domains"`
	AppSeconds map[string]int `json:"app_seconds"`
	Topics     map[string]bool `json:"-"`
}

// NewHourBucket returns an empty bucket for the given wall-clock hour.
func NewHourBucket(date string, hour int) *HourBucket {
	return &HourBucket{
		Hour:       hour,
		Date:       date,
		URLs:       make(map[string]bool),
		Domains:    make(map[string]int),
		AppSeconds: make(map[string]int),
		Topics:     make(map[string]bool),
	}
}

// DayBucket accumulates one day of activity. It is reset by the export
// writer's date-folder rollover, not by the clock.
type DayBucket struct {
	Date       string              `json:"date"`
	Timeline   []Entry             `json:"timeline"`
	URLVisits  map[string]*URLVisit `json:"url_visits"`
	Domains    map[string]int      `json:"domains"`
	AppSeconds map[string]int      `json:"app_seconds"`
	KeyMoments []string            `json:"key_moments"`
	Projects   map[string]bool     `json:"-"`
}

// MaxKeyMoments bounds per-day key-moment memory.
const MaxKeyMoments = 100

// NewDayBucket returns an empty bucket for the given date.
func NewDayBucket(date string) *DayBucket {
	return &DayBucket{
		Date:       date,
		URLVisits:  make(map[string]*URLVisit),
		Domains:    make(map[string]int),
		AppSeconds: make(map[string]int),
		Projects:   make(map[string]bool),
	}
}

// Digest is the per-day numeric rollup, independent of the narrative
// journal; reset once written.
type Digest struct {
	Date        string         `json:"date"`
	AppCaptures map[string]int `json:"app_captures"`
	URLCounts   map[string]int `json:"url_counts"`
	Domains     map[string]int `json:"domains"`
}

// NewDigest returns an empty digest for the given date.
func NewDigest(date string) *Digest {
	return &Digest{
		Date:        date,
		AppCaptures: make(map[string]int),
		URLCounts:   make(map[string]int),
		Domains:     make(map[string]int),
	}
}

// HourlySummary is the structured product of summarizing one hour bucket.
type HourlySummary struct {
	Date       string         `json:"date"`
	Hour       int            `json:"hour"`
	AppMinutes map[string]int `json:"app_minutes"`
	Domains    map[string]int `json:"domains"`
	Timeline   []Entry        `json:"timeline"`
	Summary    string         `json:"summary"`
}

// DailyJournal is the structured product of summarizing a full day.
type DailyJournal struct {
	Date        string         `json:"date"`
	ActiveHours int            `json:"active_hours"`
	ActiveMins  int            `json:"active_minutes"`
	AppMinutes  map[string]int `json:"app_minutes"`
	Projects    []string       `json:"projects"`
	Domains     map[string]int `json:"domains"`
	KeyMoments  []string       `json:"key_moments"`
	Timeline    []Entry        `json:"timeline"`
	Summary     string         `json:"summary"`
}

// clockLabel formats a timestamp as the HH:MM label used across timelines.
func clockLabel(ts time.Time) string {
	return ts.Format("15:04")
}

// dateLabel formats a timestamp as the YYYY-MM-DD date key.
func dateLabel(ts time.Time) string {
	return ts.Format("2006-01-02")
}
