package capture

import "bytes"

// ChangeDetector decides whether a new frame differs meaningfully from the
// last accepted one. Comparison is byte-for-byte on the encoded image: a
// missed real change that happens to encode identically is acceptable, a
// false positive is not, since duplicates inflate downstream work.
type ChangeDetector struct {
	lastData    []byte
	lastApp     string
	lastDisplay int
	seen        bool
}

// NewChangeDetector returns a detector that accepts the first frame it sees.
func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{}
}

// Changed reports whether the frame differs from the previous accepted one.
// Any byte difference, a different frontmost app, or a different display
// counts as changed. On a change the accepted state advances.
func (d *ChangeDetector) Changed(data []byte, app string, displayID int) bool {
	if d.seen &&
		app == d.lastApp &&
		displayID == d.lastDisplay &&
		bytes.Equal(data, d.lastData) {
		return false
	}

	d.lastData = data
	d.lastApp = app
	d.lastDisplay = displayID
	d.seen = true
	return true
}

// Reset clears accepted state so the next frame is always accepted.
func (d *ChangeDetector) Reset() {
	d.lastData = nil
	d.lastApp = ""
	d.lastDisplay = 0
	d.seen = false
}
