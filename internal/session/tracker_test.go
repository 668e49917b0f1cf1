package session

import (
	"testing"
	"time"
)

func TestObserve_IDFromStartMinute(t *testing.T) {
	tr := NewTracker(DefaultTimeout)

	start := time.Date(2024, 6, 1, 2, 35, 10, 0, time.UTC)
	id, dur := tr.Observe("Xcode", start)

	if id != "Xcode-0235" {
		t.Errorf("session id = %q, want %q", id, "Xcode-0235")
	}
	if dur != 0 {
		t.Errorf("duration = %d, want 0", dur)
	}
}

func TestObserve_ContinuesWithinTimeout(t *testing.T) {
	tr := NewTracker(DefaultTimeout)

	start := time.Date(2024, 6, 1, 2, 35, 0, 0, time.UTC)
	first, _ := tr.Observe("Xcode", start)
	second, dur := tr.Observe("Xcode", start.Add(10*time.Second))

	if first != second {
		t.Errorf("session id changed: %q -> %q", first, second)
	}
	if dur != 10 {
		t.Errorf("duration = %d, want 10", dur)
	}

	s := tr.Current()
	if s == nil || s.Captures != 2 {
		t.Fatalf("Current() = %+v, want 2 captures", s)
	}
}

func TestObserve_GapStartsNewSession(t *testing.T) {
	tr := NewTracker(300 * time.Second)

	start := time.Date(2024, 6, 1, 2, 35, 0, 0, time.UTC)
	first, _ := tr.Observe("Xcode", start)

	// Exactly at the timeout the session continues
	sameID, _ := tr.Observe("Xcode", start.Add(300*time.Second))
	if sameID != first {
		t.Errorf("gap equal to timeout should continue session, got %q", sameID)
	}

	// One second past the timeout starts a new one
	next, dur := tr.Observe("Xcode", start.Add(601*time.Second))
	if next == first {
		t.Error("gap beyond timeout should start a new session")
	}
	if dur != 0 {
		t.Errorf("new session duration = %d, want 0", dur)
	}
}

func TestObserve_AppChangeStartsNewSession(t *testing.T) {
	tr := NewTracker(DefaultTimeout)

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	xcode, _ := tr.Observe("Xcode", start)
	safari, _ := tr.Observe("Safari", start.Add(2*time.Second))

	if xcode == safari {
		t.Error("app change should start a new session")
	}
	if safari != "Safari-0900" {
		t.Errorf("session id = %q, want %q", safari, "Safari-0900")
	}
}

func TestObserve_StrictlyIncreasingDuration(t *testing.T) {
	tr := NewTracker(DefaultTimeout)

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	tr.Observe("Safari", start)

	var last int64 = -1
	for i := 1; i <= 5; i++ {
		_, dur := tr.Observe("Safari", start.Add(time.Duration(i)*2*time.Second))
		if dur <= last {
			t.Fatalf("duration not strictly increasing: %d after %d", dur, last)
		}
		last = dur
	}
}

func TestCurrent_NilBeforeFirstObservation(t *testing.T) {
	tr := NewTracker(DefaultTimeout)
	if tr.Current() != nil {
		t.Error("Current() should be nil before any observation")
	}
}
