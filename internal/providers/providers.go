// Package providers supplies subprocess-backed implementations of the
// capture capability interfaces: ffmpeg for frame grabs, tesseract for text
// recognition, and OS tools for window metadata. All are best-effort; the
// pipeline treats missing metadata as absent, never as an error.
package providers

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/retraceapp/retrace/internal/capture"
	"github.com/retraceapp/retrace/internal/errors"
)

// FFmpegSource captures single frames by running ffmpeg against the screen
// grab device for the current platform.
type FFmpegSource struct {
	Binary  string
	Display string // e.g. ":0.0" on X11, "1" for avfoundation
}

func NewFFmpegSource() *FFmpegSource {
	s := &FFmpegSource{Binary: "ffmpeg"}
	if runtime.GOOS == "darwin" {
		s.Display = "1"
	} else {
		s.Display = ":0.0"
	}
	return s
}

// grabArgs builds the one-frame grab invocation for the platform.
func (s *FFmpegSource) grabArgs() []string {
	format := "x11grab"
	if runtime.GOOS == "darwin" {
		format = "avfoundation"
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format,
		"-i", s.Display,
		"-frames:v", "1",
		"-f", "image2",
		"pipe:1",
	}
}

func (s *FFmpegSource) CaptureFrame(ctx context.Context, displayID int) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.Binary, s.grabArgs()...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.NewTransient("frame grab", err)
	}
	if out.Len() == 0 {
		return nil, errors.NewTransient("frame grab", errors.NewEnvironment("empty frame from "+s.Binary, nil))
	}
	return out.Bytes(), nil
}

func (s *FFmpegSource) ActiveDisplay() int { return 0 }

// TesseractRecognizer runs tesseract over a frame and parses the TSV output
// into per-line observations with confidence.
type TesseractRecognizer struct {
	Binary string
}

func NewTesseractRecognizer() *TesseractRecognizer {
	return &TesseractRecognizer{Binary: "tesseract"}
}

func (r *TesseractRecognizer) Recognize(ctx context.Context, image []byte, region *capture.Rect, mode capture.RecognitionMode) ([]capture.Observation, error) {
	psm := "3"
	if mode == capture.RecognitionFast {
		psm = "6"
	}
	cmd := exec.CommandContext(ctx, r.Binary, "stdin", "stdout", "--psm", psm, "tsv")
	cmd.Stdin = bytes.NewReader(image)
	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return nil, errors.NewTransient("text recognition", err)
	}
	return parseTSV(out.String()), nil
}

// parseTSV converts tesseract TSV output to observations, one per text line.
// Word confidences within a line are averaged.
func parseTSV(tsv string) []capture.Observation {
	type lineAcc struct {
		words []string
		conf  float64
		n     int
	}

	var obs []capture.Observation
	var cur *lineAcc
	var curKey string

	flush := func() {
		if cur == nil || cur.n == 0 {
			return
		}
		obs = append(obs, capture.Observation{
			Text:       strings.Join(cur.words, " "),
			Confidence: cur.conf / float64(cur.n) / 100,
		})
		cur = nil
	}

	for i, line := range strings.Split(tsv, "\n") {
		if i == 0 { // header row
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			// conf -1 marks structural rows (page/block/line), which
			// delimit lines of words.
			flush()
			continue
		}
		word := strings.TrimSpace(fields[11])
		if word == "" {
			continue
		}
		// page_num/block_num/par_num/line_num identify the text line.
		key := strings.Join(fields[1:5], "/")
		if cur == nil || key != curKey {
			flush()
			cur = &lineAcc{}
			curKey = key
		}
		cur.words = append(cur.words, word)
		cur.conf += conf
		cur.n++
	}
	flush()
	return obs
}

// ToolMeta resolves window metadata through platform tools: osascript on
// macOS, xdotool on X11. Every lookup is best-effort.
type ToolMeta struct{}

func NewToolMeta() *ToolMeta { return &ToolMeta{} }

func (m *ToolMeta) FrontmostApp() (string, bool) {
	switch runtime.GOOS {
	case "darwin":
		return runTool("osascript", "-e",
			`tell application "System Events" to get name of first process whose frontmost is true`)
	default:
		if out, ok := runTool("xdotool", "getactivewindow", "getwindowclassname"); ok {
			return out, true
		}
		return "", false
	}
}

func (m *ToolMeta) WindowTitle(app string) (string, bool) {
	switch runtime.GOOS {
	case "darwin":
		return runTool("osascript", "-e",
			`tell application "System Events" to get title of front window of (first process whose frontmost is true)`)
	default:
		return runTool("xdotool", "getactivewindow", "getwindowname")
	}
}

func (m *ToolMeta) BrowserURL(app string) (string, bool) {
	if runtime.GOOS != "darwin" {
		return "", false
	}
	switch app {
	case "Safari":
		return runTool("osascript", "-e", `tell application "Safari" to get URL of front document`)
	case "Google Chrome":
		return runTool("osascript", "-e", `tell application "Google Chrome" to get URL of active tab of front window`)
	default:
		return "", false
	}
}

func (m *ToolMeta) WindowBounds(app string) (capture.Rect, bool) {
	return capture.Rect{}, false
}

func runTool(name string, args ...string) (string, bool) {
	if _, err := exec.LookPath(name); err != nil {
		return "", false
	}
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "", false
	}
	s := strings.TrimSpace(string(out))
	return s, s != ""
}
