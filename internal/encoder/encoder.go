// Package encoder turns batches of captured frames into video chunks via an
// external encoder subprocess.
package encoder

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/retraceapp/retrace/internal/capture"
	"github.com/retraceapp/retrace/internal/errors"
	"github.com/retraceapp/retrace/internal/store"
)

const DefaultTimeout = 30 * time.Second

// Options configures a ChunkEncoder. Args builds the subprocess argument
// list for a given output path; when nil the default ffmpeg image2pipe
// invocation is used.
type Options struct {
	DB      *sql.DB
	Dir     string
	Binary  string
	Args    func(outPath string) []string
	Timeout time.Duration
	Logger  *slog.Logger
}

// ChunkEncoder writes frame batches to timestamped video files in a chunk
// directory and registers successful chunks in the store. A watchdog kills
// the subprocess if it outlives the timeout.
type ChunkEncoder struct {
	db      *sql.DB
	dir     string
	binary  string
	args    func(string) []string
	timeout time.Duration
	logger  *slog.Logger
}

func New(opts Options) *ChunkEncoder {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.Args == nil {
		opts.Args = ffmpegArgs
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ChunkEncoder{
		db:      opts.DB,
		dir:     opts.Dir,
		binary:  opts.Binary,
		args:    opts.Args,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
}

func ffmpegArgs(outPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "image2pipe",
		"-framerate", "1",
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-y", outPath,
	}
}

// Check verifies the encoder binary is resolvable on PATH.
func (e *ChunkEncoder) Check() error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return errors.NewEnvironment(
			fmt.Sprintf("encoder binary %q not found", e.binary), err)
	}
	return nil
}

// Encode writes frames to a new chunk file and registers it in the store.
// An empty batch is a no-op. On any subprocess failure the partial file is
// removed and a transient error returned; the frames are discarded by the
// caller, never re-queued.
func (e *ChunkEncoder) Encode(ctx context.Context, frames []capture.Frame) (*store.ChunkRecord, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, errors.NewEnvironment("chunk directory not writable", err)
	}

	startedAt := frames[0].CapturedAt
	outPath := filepath.Join(e.dir, chunkFilename(startedAt))

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.binary, e.args(outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.NewEnvironment(
			fmt.Sprintf("starting encoder %q", e.binary), err)
	}

	// A write error here usually means the subprocess died early; Wait
	// reports the real cause.
	var writeErr error
	for _, f := range frames {
		if _, err := stdin.Write(f.Data); err != nil {
			writeErr = err
			break
		}
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		os.Remove(outPath)
		cause := err
		if runCtx.Err() == context.DeadlineExceeded {
			cause = fmt.Errorf("encoder exceeded %s watchdog: %w", e.timeout, err)
		} else if writeErr != nil {
			cause = fmt.Errorf("%w (stdin: %v)", err, writeErr)
		}
		e.logger.Error("chunk encode failed",
			"path", outPath,
			"frames", len(frames),
			"stderr", stderr.String(),
			"error", cause)
		return nil, errors.NewTransient("chunk encode", cause)
	}

	rec, err := store.RegisterVideoChunk(e.db, startedAt, outPath, len(frames))
	if err != nil {
		return nil, err
	}
	e.logger.Info("chunk encoded",
		"path", outPath,
		"frames", len(frames),
		"chunk_id", rec.ID)
	return rec, nil
}

// chunkFilename names chunks by their first frame's capture time, with
// millisecond precision so two chunks started in the same second cannot
// collide.
func chunkFilename(t time.Time) string {
	return t.Format("2006-01-02_15-04-05.000") + ".mp4"
}
