package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/retraceapp/retrace/internal/errors"
)

// State is the scheduler lifecycle state.
type State int

const (
	StateStopped State = iota
	StateRecording
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

const (
	DefaultInterval   = 2 * time.Second
	DefaultMaxRetries = 3
	DefaultBackoff    = 2 * time.Second
)

// Options configures a Scheduler. Source, Meta, and Sink are required;
// zero durations and counts fall back to the defaults above.
type Options struct {
	Source     FrameSource
	Meta       MetadataProvider
	Sink       FrameSink
	Dispatch   func(Frame) // called with each accepted frame, e.g. to queue OCR
	OnFlush    func()      // called synchronously when leaving the recording state
	Interval   time.Duration
	MaxRetries int
	Backoff    time.Duration
	Logger     *slog.Logger

	// LastFrameID is the highest frame id already persisted; ids assigned by
	// this scheduler start above it so they stay unique across restarts.
	LastFrameID int64
}

// Scheduler drives the capture loop: on every tick it grabs a frame from the
// active display, drops it if nothing changed, and otherwise stamps it with a
// monotonic id and hands it to the sink and dispatch hook.
type Scheduler struct {
	source   FrameSource
	meta     MetadataProvider
	sink     FrameSink
	dispatch func(Frame)
	onFlush  func()

	interval   time.Duration
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger

	detector *ChangeDetector

	mu          sync.Mutex
	state       State
	nextFrameID int64
	lastErr     error
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewScheduler(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		source:      opts.Source,
		meta:        opts.Meta,
		sink:        opts.Sink,
		dispatch:    opts.Dispatch,
		onFlush:     opts.OnFlush,
		interval:    opts.Interval,
		maxRetries:  opts.MaxRetries,
		backoff:     opts.Backoff,
		logger:      opts.Logger,
		detector:    NewChangeDetector(),
		state:       StateStopped,
		nextFrameID: opts.LastFrameID,
		done:        make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that stopped the scheduler, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start begins capturing. Calling Start while already recording is a no-op.
// Resuming from paused reuses the running loop; starting from stopped spawns
// a new one.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRecording:
		return
	case StatePaused:
		s.state = StateRecording
		s.logger.Info("capture resumed")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateRecording
	s.lastErr = nil
	s.detector.Reset()
	s.logger.Info("capture started", "interval", s.interval)
	go s.run(loopCtx)
}

// Pause suspends capturing without tearing down the loop. The buffer is
// flushed synchronously before Pause returns.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.state = StatePaused
	s.mu.Unlock()

	s.flush()
	s.logger.Info("capture paused")
}

// Stop halts the loop and flushes the buffer synchronously. Safe to call in
// any state.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	wasRecording := s.state == StateRecording
	s.state = StateStopped
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if wasRecording {
		s.flush()
	}
	s.logger.Info("capture stopped")
}

func (s *Scheduler) flush() {
	if s.onFlush != nil {
		s.onFlush()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			recording := s.state == StateRecording
			s.mu.Unlock()
			if !recording {
				continue
			}
			if err := s.tick(ctx); err != nil {
				if ctx.Err() != nil {
					return // clean shutdown, not a capture failure
				}
				s.fail(err)
				return
			}
		}
	}
}

// fail records the error and transitions to stopped. The buffer is flushed so
// already-captured frames are not lost.
func (s *Scheduler) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.state = StateStopped
	s.mu.Unlock()

	s.logger.Error("capture stopped after repeated failures", "error", err)
	s.flush()
}

func (s *Scheduler) tick(ctx context.Context) error {
	app, _ := s.meta.FrontmostApp()
	displayID := s.source.ActiveDisplay()

	data, err := s.captureWithRetry(ctx, displayID)
	if err != nil {
		return err
	}

	if !s.detector.Changed(data, app, displayID) {
		return nil
	}

	s.mu.Lock()
	s.nextFrameID++
	id := s.nextFrameID
	s.mu.Unlock()

	frame := Frame{
		ID:         id,
		Data:       data,
		CapturedAt: time.Now(),
		App:        app,
	}
	if s.sink != nil {
		s.sink.Push(frame)
	}
	if s.dispatch != nil {
		s.dispatch(frame)
	}
	return nil
}

// captureWithRetry attempts a capture up to maxRetries times with a fixed
// backoff between attempts. Exhaustion is a hard failure.
func (s *Scheduler) captureWithRetry(ctx context.Context, displayID int) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		data, err := s.source.CaptureFrame(ctx, displayID)
		if err == nil {
			return data, nil
		}
		lastErr = err
		s.logger.Warn("frame capture failed",
			"attempt", attempt,
			"max_retries", s.maxRetries,
			"error", err)

		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.backoff):
			}
		}
	}
	return nil, errors.NewCaptureExhausted(s.maxRetries, lastErr)
}
