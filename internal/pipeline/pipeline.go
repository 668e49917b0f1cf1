// Package pipeline wires the capture scheduler, OCR workers, text
// processing, session/activity tracking, and the export/store writers into
// one explicitly constructed unit with a start/pause/stop lifecycle.
package pipeline

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"

	"github.com/retraceapp/retrace/internal/activity"
	"github.com/retraceapp/retrace/internal/buffer"
	"github.com/retraceapp/retrace/internal/capture"
	"github.com/retraceapp/retrace/internal/config"
	"github.com/retraceapp/retrace/internal/encoder"
	"github.com/retraceapp/retrace/internal/errors"
	"github.com/retraceapp/retrace/internal/export"
	"github.com/retraceapp/retrace/internal/session"
	"github.com/retraceapp/retrace/internal/store"
	"github.com/retraceapp/retrace/internal/textproc"
)

const (
	ocrWorkers  = 4
	ocrQueueCap = 16
	encQueueCap = 4
)

// Deps are the external capability providers the pipeline consumes.
type Deps struct {
	Source     capture.FrameSource
	Meta       capture.MetadataProvider
	Recognizer capture.Recognizer
}

// Pipeline owns one running observation pipeline. All session and activity
// mutation happens on the OCR-completion path under procMu, so captures for
// a single app preserve submission order even with concurrent OCR workers.
type Pipeline struct {
	cfg    *config.Config
	db     *sql.DB
	logger *slog.Logger

	source     capture.FrameSource
	meta       capture.MetadataProvider
	recognizer capture.Recognizer

	buf     *buffer.FrameBuffer
	enc     *encoder.ChunkEncoder
	sched   *capture.Scheduler
	tracker *session.Tracker
	agg     *activity.Aggregator
	writer  *export.Writer
	deduper *textproc.Deduper

	ocrJobs chan capture.Frame
	encJobs chan []capture.Frame

	procMu sync.Mutex
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

type sinkFunc func(capture.Frame)

func (f sinkFunc) Push(fr capture.Frame) { f(fr) }

func New(cfg *config.Config, db *sql.DB, deps Deps, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		cfg:        cfg,
		db:         db,
		logger:     logger,
		source:     deps.Source,
		meta:       deps.Meta,
		recognizer: deps.Recognizer,
		buf:        buffer.New(cfg.BufferCapacity, logger),
		tracker:    session.NewTracker(cfg.SessionTimeout()),
		deduper:    textproc.NewDeduper(),
		ocrJobs:    make(chan capture.Frame, ocrQueueCap),
		encJobs:    make(chan []capture.Frame, encQueueCap),
	}

	p.enc = encoder.New(encoder.Options{
		DB:      db,
		Dir:     cfg.ChunkDir,
		Binary:  cfg.EncoderBinary,
		Timeout: cfg.EncodeTimeout(),
		Logger:  logger,
	})
	p.agg = activity.NewAggregator(cfg.CaptureIntervalSec, p.onHourEnd, logger)
	p.writer = export.NewWriter(cfg.ArchiveDir, p.onDayEnd, logger)
	// Frame ids must keep ascending over the frames already on record, or
	// every insert after a restart would collide with a prior run's row.
	lastFrameID, err := store.MaxFrameID(db)
	if err != nil {
		logger.Warn("frame id seed lookup failed", "error", err)
	}

	p.sched = capture.NewScheduler(capture.Options{
		Source:      deps.Source,
		Meta:        deps.Meta,
		Sink:        sinkFunc(p.acceptFrame),
		Dispatch:    p.enqueueOCR,
		OnFlush:     p.drainAndEncode,
		Interval:    cfg.CaptureInterval(),
		MaxRetries:  cfg.CaptureMaxRetries,
		Backoff:     cfg.RetryBackoff(),
		Logger:      logger,
		LastFrameID: lastFrameID,
	})
	return p
}

// Start begins capturing. The first call spawns the OCR and encode workers;
// later calls resume a paused pipeline and are otherwise no-ops.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		if err := p.enc.Check(); err != nil {
			p.mu.Unlock()
			return err
		}
		workerCtx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		for i := 0; i < ocrWorkers; i++ {
			p.wg.Add(1)
			go p.ocrWorker(workerCtx)
		}
		p.wg.Add(1)
		go p.encodeWorker(workerCtx)
		p.started = true
	}
	p.mu.Unlock()

	p.sched.Start(ctx)
	return nil
}

// Pause stops scheduling new captures and synchronously drains and encodes
// the frame buffer. Session and activity state is left intact so Start
// resumes the same session/day context.
func (p *Pipeline) Pause() {
	p.sched.Pause()
}

// Stop halts the scheduler (draining the buffer synchronously) without
// tearing down workers. Aggregation state survives for a later Start.
func (p *Pipeline) Stop() {
	p.sched.Stop()
}

// Close shuts the pipeline down for good: stops capturing, flushes the open
// hour and day aggregates to disk, and waits for workers to exit.
func (p *Pipeline) Close() {
	p.Stop()

	p.mu.Lock()
	started := p.started
	cancel := p.cancel
	p.started = false
	p.mu.Unlock()

	if !started {
		return
	}

	p.finalizeDay()
	cancel()
	p.wg.Wait()
}

// Err reports the error that stopped the scheduler, if any.
func (p *Pipeline) Err() error {
	return p.sched.Err()
}

// acceptFrame is the scheduler's sink: record the frame id, buffer the
// frame, and hand a batch to the encode worker once the flush threshold is
// reached.
func (p *Pipeline) acceptFrame(f capture.Frame) {
	if err := store.InsertFrame(p.db, f.ID, f.CapturedAt, f.App); err != nil {
		p.logger.Warn("frame insert failed", "frame_id", f.ID, "error", err)
	}
	p.buf.Push(f)

	if p.buf.Len() >= p.cfg.FlushThreshold {
		batch := p.buf.TakeBatch(p.cfg.FlushThreshold)
		select {
		case p.encJobs <- batch:
		default:
			// Encoder is saturated. Dropping beats stalling the tick.
			p.logger.Warn("encode queue full, discarding batch", "frames", len(batch))
		}
	}
}

func (p *Pipeline) enqueueOCR(f capture.Frame) {
	select {
	case p.ocrJobs <- f:
	default:
		p.logger.Warn("ocr queue full, skipping frame", "frame_id", f.ID)
	}
}

func (p *Pipeline) ocrWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-p.ocrJobs:
			p.recognizeAndProcess(ctx, f)
		}
	}
}

func (p *Pipeline) encodeWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-p.encJobs:
			if _, err := p.enc.Encode(ctx, batch); err != nil {
				p.logger.Warn("chunk discarded", "frames", len(batch), "error", err)
			}
		}
	}
}

func (p *Pipeline) recognizeAndProcess(ctx context.Context, f capture.Frame) {
	var region *capture.Rect
	if p.cfg.ActiveWindowOnly {
		if r, ok := p.meta.WindowBounds(f.App); ok {
			region = &r
		}
	}

	obs, err := p.recognizer.Recognize(ctx, f.Data, region, capture.RecognitionAccurate)
	if err != nil {
		p.logger.Warn("text recognition failed", "frame_id", f.ID, "error", err)
		return
	}

	var lines []string
	for _, o := range obs {
		if o.Confidence >= p.cfg.OCRConfidence {
			lines = append(lines, o.Text)
		}
	}

	if err := p.processText(strings.Join(lines, "\n"), f); err != nil {
		if errors.Is(err, errors.ErrSkipped) {
			p.logger.Debug("capture skipped", "frame_id", f.ID, "reason", err)
		} else {
			p.logger.Warn("capture processing failed", "frame_id", f.ID, "error", err)
		}
	}
}

// processText runs the serialized tail of the OCR-completion path: clean,
// dedup, session/activity updates, store insert, export.
func (p *Pipeline) processText(raw string, f capture.Frame) error {
	p.procMu.Lock()
	defer p.procMu.Unlock()

	cleaned := textproc.Clean(raw)
	if cleaned == "" {
		return errors.NewSkipped("empty")
	}
	if !textproc.HasMinimumContent(cleaned) {
		return errors.NewSkipped("thin")
	}
	if p.deduper.IsDuplicate(cleaned, f.App) {
		return errors.NewSkipped("duplicate")
	}

	var title, url string
	if t, ok := p.meta.WindowTitle(f.App); ok {
		title = t
	}
	if u, ok := p.meta.BrowserURL(f.App); ok {
		url = u
	}

	sessionID, durationSec := p.tracker.Observe(f.App, f.CapturedAt)

	rec := &store.CaptureRecord{
		FrameID:         f.ID,
		CapturedAt:      f.CapturedAt.Unix(),
		App:             f.App,
		Text:            cleaned,
		SessionID:       &sessionID,
		SessionDuration: &durationSec,
	}
	if title != "" {
		rec.WindowTitle = &title
	}
	if url != "" {
		rec.URL = &url
	}

	// The export write goes first: a date-folder change there finalizes
	// the previous day before this capture is aggregated into the new one.
	if _, err := p.writer.WriteCapture(rec); err != nil {
		return err
	}
	if err := store.InsertRecognizedText(p.db, rec); err != nil {
		return err
	}

	// Dedup state advances only now: a capture dropped by a write failure
	// must not suppress an identical successor.
	p.deduper.Commit(cleaned, f.App)
	p.agg.Record(f.App, title, url, cleaned, f.CapturedAt)
	return nil
}

// drainAndEncode empties the frame buffer and encodes the remainder
// synchronously. Runs when the pipeline leaves the recording state.
func (p *Pipeline) drainAndEncode() {
	frames := p.buf.Drain()
	if len(frames) == 0 {
		return
	}
	if _, err := p.enc.Encode(context.Background(), frames); err != nil {
		p.logger.Warn("final chunk discarded", "frames", len(frames), "error", err)
	}
}

// onHourEnd receives the swapped-out hour bucket from the aggregator.
func (p *Pipeline) onHourEnd(snap *activity.HourBucket) {
	summary := activity.SummarizeHour(snap)
	if _, err := p.writer.WriteHourlySummary(summary); err != nil {
		p.logger.Warn("hourly summary write failed", "hour", snap.Hour, "error", err)
	}
}

// onDayEnd fires when the export writer's date folder changes. It flushes
// the still-open hour, then finalizes the previous day's journal and digest.
func (p *Pipeline) onDayEnd(prevDate string) {
	if hour := p.agg.FlushHour(); hour != nil {
		p.onHourEnd(hour)
	}

	day, digest := p.agg.RolloverDay(p.writer.CurrentDate())
	p.writeDay(day, digest, prevDate)
}

// finalizeDay writes the journal and digest for whatever day is open,
// used at shutdown.
func (p *Pipeline) finalizeDay() {
	p.procMu.Lock()
	defer p.procMu.Unlock()

	if hour := p.agg.FlushHour(); hour != nil {
		p.onHourEnd(hour)
	}
	day, digest := p.agg.RolloverDay("")
	p.writeDay(day, digest, "")
}

func (p *Pipeline) writeDay(day *activity.DayBucket, digest *activity.Digest, fallbackDate string) {
	if day != nil && len(day.Timeline) > 0 {
		journal := activity.SummarizeDay(day)
		if journal.Date == "" {
			journal.Date = fallbackDate
		}
		if _, err := p.writer.WriteDailyJournal(journal); err != nil {
			p.logger.Warn("daily journal write failed", "date", journal.Date, "error", err)
		}
	}
	if digest != nil && len(digest.AppCaptures) > 0 {
		if digest.Date == "" {
			digest.Date = fallbackDate
		}
		if _, err := p.writer.WriteDigest(digest); err != nil {
			p.logger.Warn("digest write failed", "date", digest.Date, "error", err)
		}
	}
}
