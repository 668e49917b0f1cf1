package capture

import "context"

// FrameSource acquires raw screen images. Implementations wrap an OS screen
// capture API; tests substitute fakes.
type FrameSource interface {
	// CaptureFrame returns encoded image bytes for the given display.
	CaptureFrame(ctx context.Context, displayID int) ([]byte, error)

	// ActiveDisplay returns the identifier of the display to capture.
	ActiveDisplay() int
}

// Recognizer converts an image region to text observations. A nil region
// recognizes the whole frame.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, region *Rect, mode RecognitionMode) ([]Observation, error)
}

// MetadataProvider supplies optional enrichment about the frontmost
// application. Absence is the expected common case (permission not granted,
// unsupported app) and is modeled as ok=false, never as an error.
type MetadataProvider interface {
	// FrontmostApp returns the name of the frontmost application.
	FrontmostApp() (string, bool)

	// WindowTitle returns the frontmost window's title for the app.
	WindowTitle(app string) (string, bool)

	// BrowserURL returns the active tab URL when app is a known browser.
	BrowserURL(app string) (string, bool)

	// WindowBounds returns the frontmost window's frame-pixel bounds, for
	// active-window-only cropping.
	WindowBounds(app string) (Rect, bool)
}

// FrameSink receives accepted frames for buffering and eventual encoding.
type FrameSink interface {
	Push(Frame)
}
