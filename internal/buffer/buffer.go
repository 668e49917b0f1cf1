// Package buffer holds captured frames between the scheduler and the
// chunk encoder.
package buffer

import (
	"log/slog"
	"sync"

	"github.com/retraceapp/retrace/internal/capture"
)

const (
	DefaultCapacity       = 100
	DefaultFlushThreshold = 30
)

// FrameBuffer is a capacity-bounded FIFO of frames. When full, pushing a new
// frame evicts the oldest one; eviction is logged but never blocks the
// capture loop.
type FrameBuffer struct {
	mu       sync.Mutex
	frames   []capture.Frame
	capacity int
	logger   *slog.Logger
}

// New creates a buffer with the given capacity. Non-positive capacities fall
// back to the default.
func New(capacity int, logger *slog.Logger) *FrameBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameBuffer{
		frames:   make([]capture.Frame, 0, capacity),
		capacity: capacity,
		logger:   logger,
	}
}

// Push appends a frame, evicting the oldest one first if the buffer is full.
func (b *FrameBuffer) Push(f capture.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) >= b.capacity {
		evicted := b.frames[0]
		b.frames = b.frames[1:]
		b.logger.Warn("frame buffer full, evicting oldest frame",
			"frame_id", evicted.ID,
			"captured_at", evicted.CapturedAt)
	}
	b.frames = append(b.frames, f)
}

// TakeBatch removes and returns up to n of the oldest frames. It returns nil
// when the buffer is empty.
func (b *FrameBuffer) TakeBatch(n int) []capture.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 || n <= 0 {
		return nil
	}
	if n > len(b.frames) {
		n = len(b.frames)
	}
	batch := make([]capture.Frame, n)
	copy(batch, b.frames[:n])
	b.frames = b.frames[n:]
	return batch
}

// Drain removes and returns all buffered frames in FIFO order.
func (b *FrameBuffer) Drain() []capture.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return nil
	}
	out := b.frames
	b.frames = make([]capture.Frame, 0, b.capacity)
	return out
}

// Len reports the number of buffered frames.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}
