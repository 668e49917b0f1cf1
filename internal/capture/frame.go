package capture

import "time"

// Frame is one captured screen image awaiting encoding. Frames are ephemeral:
// owned by the frame buffer until the encoder consumes them, then discarded.
type Frame struct {
	// ID is assigned monotonically to accepted (changed) frames.
	ID int64

	// Data is the encoded image bytes as produced by the frame source.
	Data []byte

	// CapturedAt is the acquisition timestamp.
	CapturedAt time.Time

	// App is the frontmost application at capture time.
	App string
}

// Observation is one recognized text region from the OCR provider.
type Observation struct {
	Text       string
	Confidence float64
}

// RecognitionMode selects the OCR provider's speed/accuracy trade-off.
type RecognitionMode int

const (
	RecognitionFast RecognitionMode = iota
	RecognitionAccurate
)

// Rect is a crop region in frame pixel coordinates.
type Rect struct {
	X, Y, W, H int
}
