package activity

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/retraceapp/retrace/internal/intent"
)

// Aggregator accumulates per-hour and per-day rollups of capture activity.
// One aggregator exists per running pipeline; it is constructed explicitly
// and passed by handle, never shared as a global.
//
// All mutation of the live buckets happens under one mutex. Hour rollover
// uses snapshot-then-reset: the live bucket is swapped for a fresh one while
// the lock is held, and the detached snapshot is summarized asynchronously,
// so no capture can land in an in-flight summary.
type Aggregator struct {
	mu sync.Mutex

	hour   *HourBucket
	day    *DayBucket
	digest *Digest

	lastHour  int // -1 before the first capture
	lastTitle string
	lastApp   string

	// creditSec is the app-time credited per capture: the capture interval.
	creditSec int

	// onHourEnd receives detached hour snapshots for background
	// summarization. Invoked on its own goroutine, after the live bucket has
	// already been reset.
	onHourEnd func(*HourBucket)

	logger *slog.Logger
}

// NewAggregator creates an aggregator crediting creditSec seconds of
// app-time per capture. onHourEnd may be nil.
func NewAggregator(creditSec int, onHourEnd func(*HourBucket), logger *slog.Logger) *Aggregator {
	if creditSec <= 0 {
		creditSec = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		lastHour:  -1,
		creditSec: creditSec,
		onHourEnd: onHourEnd,
		logger:    logger,
	}
}

// Record folds one accepted capture into the live hour and day buckets.
func (a *Aggregator) Record(app, title, url, text string, ts time.Time) {
	date := dateLabel(ts)
	hour := ts.Hour()

	a.mu.Lock()
	defer a.mu.Unlock()

	// Hour rollover: swap the live bucket before anything async touches it.
	if a.hour != nil && hour != a.lastHour {
		snapshot := a.hour
		a.hour = NewHourBucket(date, hour)
		a.logger.Debug("hour rollover",
			"hour", snapshot.Hour, "entries", len(snapshot.Timeline))
		if a.onHourEnd != nil && len(snapshot.Timeline) > 0 {
			go a.onHourEnd(snapshot)
		}
	}
	if a.hour == nil {
		a.hour = NewHourBucket(date, hour)
	}
	if a.day == nil {
		a.day = NewDayBucket(date)
	}
	if a.digest == nil {
		a.digest = NewDigest(date)
	}
	a.lastHour = hour

	// App time is credited on every capture, independent of entry creation.
	a.hour.AppSeconds[app] += a.creditSec
	a.day.AppSeconds[app] += a.creditSec
	a.digest.AppCaptures[app]++

	// A new timeline entry only when something meaningfully changed;
	// rapid captures of a static screen collapse into one entry.
	if len(a.hour.Timeline) == 0 || title != a.lastTitle || app != a.lastApp {
		intents := intent.Extract(text, title, app)
		entry := Entry{
			Time:    clockLabel(ts),
			App:     app,
			Title:   title,
			URL:     url,
			Intents: intents,
		}
		a.hour.Timeline = append(a.hour.Timeline, entry)
		a.day.Timeline = append(a.day.Timeline, entry)

		for _, topic := range intent.Topics(intents) {
			a.hour.Topics[topic] = true
		}
		for _, in := range intents {
			if p, ok := strings.CutPrefix(in, "Project: "); ok {
				a.day.Projects[p] = true
			}
		}
	}
	a.lastTitle = title
	a.lastApp = app

	// When the metadata provider gave no URL, recover one from the text.
	if url == "" {
		url = RecoverURL(text)
	}
	if url != "" {
		a.hour.URLs[url] = true
		if d := Domain(url); d != "" {
			a.hour.Domains[d]++
			a.day.Domains[d]++
			a.digest.Domains[d]++
		}
		visit := a.day.URLVisits[url]
		if visit == nil {
			a.day.URLVisits[url] = &URLVisit{FirstSeen: clockLabel(ts), Count: 1}
		} else {
			visit.Count++
		}
		a.digest.URLCounts[url]++
	}

	// Long window titles make good key moments; cap bounds memory.
	if len(title) > 10 && len(a.day.KeyMoments) < MaxKeyMoments {
		a.day.KeyMoments = append(a.day.KeyMoments, clockLabel(ts)+" "+title)
	}

	for _, p := range intent.ExtractProjects(text, title, url) {
		a.day.Projects[p] = true
	}
}

// RolloverDay swaps out the day bucket and digest when the export writer
// starts a new date folder, returning the finished day for summarization.
// Either return may be nil if nothing was recorded.
func (a *Aggregator) RolloverDay(newDate string) (*DayBucket, *Digest) {
	a.mu.Lock()
	defer a.mu.Unlock()

	day, digest := a.day, a.digest
	a.day = NewDayBucket(newDate)
	a.digest = NewDigest(newDate)
	return day, digest
}

// FlushHour swaps out the live hour bucket and returns it, or nil if empty.
// Used at shutdown so a partial hour is still summarized.
func (a *Aggregator) FlushHour() *HourBucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hour == nil || len(a.hour.Timeline) == 0 {
		return nil
	}
	snapshot := a.hour
	a.hour = NewHourBucket(snapshot.Date, snapshot.Hour)
	return snapshot
}

// SnapshotDay returns a shallow read-only view of the live day bucket, or
// nil. Timeline and key moments are copied; callers must not mutate maps.
func (a *Aggregator) SnapshotDay() *DayBucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.day == nil {
		return nil
	}
	snap := *a.day
	snap.Timeline = append([]Entry(nil), a.day.Timeline...)
	snap.KeyMoments = append([]string(nil), a.day.KeyMoments...)
	return &snap
}
