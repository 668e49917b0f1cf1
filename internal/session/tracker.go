package session

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout is the idle gap after which a new session begins.
const DefaultTimeout = 5 * time.Minute

// Session is a contiguous period of activity in one application.
type Session struct {
	// ID is derived from the app and the session's start minute, e.g.
	// "Xcode-0235".
	ID string

	// App owns the session.
	App string

	// StartedAt is the first capture's timestamp.
	StartedAt time.Time

	// Captures counts observations attributed to this session.
	Captures int
}

// Tracker groups consecutive captures per application into sessions.
// A new session begins when no session is active, the application changes,
// or the gap since the last observation exceeds the timeout. State is
// in-memory only; restarts begin a fresh session.
type Tracker struct {
	mu       sync.Mutex
	timeout  time.Duration
	current  *Session
	lastSeen time.Time
}

// NewTracker creates a Tracker with the given idle timeout.
// A non-positive timeout falls back to DefaultTimeout.
func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{timeout: timeout}
}

// Observe attributes a capture at ts to a session, starting a new one when
// needed, and returns the session id and the elapsed seconds since the
// session began.
func (t *Tracker) Observe(app string, ts time.Time) (sessionID string, durationSec int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fresh := t.current == nil ||
		t.current.App != app ||
		ts.Sub(t.lastSeen) > t.timeout

	if fresh {
		t.current = &Session{
			ID:        SessionID(app, ts),
			App:       app,
			StartedAt: ts,
		}
	}

	t.current.Captures++
	t.lastSeen = ts

	return t.current.ID, int64(ts.Sub(t.current.StartedAt).Seconds())
}

// Current returns a copy of the active session, or nil if none has started.
func (t *Tracker) Current() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	s := *t.current
	return &s
}

// SessionID derives the deterministic id for a session starting at ts.
func SessionID(app string, ts time.Time) string {
	return fmt.Sprintf("%s-%s", app, ts.Format("1504"))
}
