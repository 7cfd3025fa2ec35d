// Package pipeline drives sessions through the full analysis flow:
// retrieve, extract, analyze, synthesize, persist. A fixed worker pool pulls
// session IDs off a bounded queue; a separate semaphore caps concurrent
// decoding so CPU-bound ffmpeg work cannot saturate the host even when the
// pool is mostly waiting on the vision service.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/routelens/routelens/internal/extractor"
	"github.com/routelens/routelens/internal/metrics"
	"github.com/routelens/routelens/internal/models"
	"github.com/routelens/routelens/internal/overlay"
	"github.com/routelens/routelens/internal/session"
)

var ErrQueueFull = errors.New("analysis queue is full")

type Retriever interface {
	Fetch(ctx context.Context, ref string) (string, func(), error)
}

type FrameExtractor interface {
	Extract(ctx context.Context, path string, maxFrames int) (*extractor.Result, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, frames []models.VideoFrame, sport models.SportType) (*models.AnalysisResult, error)
}

type Config struct {
	Workers   int
	QueueSize int
	MaxFrames int
	// Deadline bounds one session end to end. A session that exceeds it
	// fails with kind Timeout instead of occupying a worker forever.
	Deadline time.Duration
	Overlay  overlay.Config
}

type Runner struct {
	store     session.Store
	retriever Retriever
	extractor FrameExtractor
	analyzer  Analyzer
	logger    *zap.Logger

	cfg       Config
	queue     chan string
	decodeSem chan struct{}
	wg        sync.WaitGroup
}

func NewRunner(store session.Store, retriever Retriever, ext FrameExtractor, analyzer Analyzer, cfg Config, logger *zap.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = 5
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 4 * time.Minute
	}
	if cfg.Overlay == (overlay.Config{}) {
		cfg.Overlay = overlay.DefaultConfig()
	}
	return &Runner{
		store:     store,
		retriever: retriever,
		extractor: ext,
		analyzer:  analyzer,
		logger:    logger,
		cfg:       cfg,
		queue:     make(chan string, cfg.QueueSize),
		decodeSem: make(chan struct{}, runtime.NumCPU()),
	}
}

// Start launches the worker pool. Workers drain until ctx is cancelled; Wait
// blocks until the last in-flight session finishes.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
}

func (r *Runner) Wait() {
	r.wg.Wait()
}

// Enqueue hands a session to the pool without blocking. A full queue is the
// caller's backpressure signal.
func (r *Runner) Enqueue(id string) error {
	select {
	case r.queue <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *Runner) worker(ctx context.Context, n int) {
	defer r.wg.Done()
	logger := r.logger.With(zap.Int("worker", n))

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			metrics.ActiveWorkers.Inc()
			r.process(ctx, id, logger)
			metrics.ActiveWorkers.Dec()
		}
	}
}

func (r *Runner) process(ctx context.Context, id string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Deadline)
	defer cancel()

	logger = logger.With(zap.String("session_id", id))

	// Claiming is a CAS on pending: losing it means another worker (or a
	// requeue of an already-finished session) got here first, and the
	// session must not be touched again.
	err := r.store.Transition(ctx, id, models.StatusPending, models.StatusProcessing, session.TransitionPayload{})
	if errors.Is(err, session.ErrConflict) {
		logger.Debug("session already claimed, skipping")
		return
	}
	if errors.Is(err, session.ErrNotFound) {
		logger.Warn("queued session no longer exists")
		return
	}
	if err != nil {
		logger.Error("failed to claim session", zap.Error(err))
		return
	}

	sess, err := r.store.Get(ctx, id)
	if err != nil {
		logger.Error("failed to load claimed session", zap.Error(err))
		r.fail(id, err, logger)
		return
	}

	result, err := r.run(ctx, sess, logger)
	if err != nil {
		r.fail(id, err, logger)
		return
	}

	// The terminal write gets its own context: the session deadline may
	// have expired while the last stage was finishing, and a result that
	// exists must never be lost to it, nor the session left in processing.
	tctx, tcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer tcancel()
	err = r.store.Transition(tctx, id, models.StatusProcessing, models.StatusCompleted, session.TransitionPayload{Result: result})
	if errors.Is(err, session.ErrConflict) {
		logger.Debug("session reached a terminal status elsewhere")
		return
	}
	if err != nil {
		logger.Error("failed to complete session", zap.Error(err))
		r.fail(id, err, logger)
		return
	}
	metrics.SessionsProcessedTotal.WithLabelValues(string(models.StatusCompleted)).Inc()
	logger.Info("session completed",
		zap.Float64("overall_score", result.Analysis.OverallScore),
		zap.Int("overlay_elements", len(result.Overlay)),
	)
}

func (r *Runner) run(ctx context.Context, sess *models.AnalysisSession, logger *zap.Logger) (*models.CompositeResult, error) {
	r.progress(ctx, sess.ID, 10)

	start := time.Now()
	path, cleanup, err := r.retriever.Fetch(ctx, sess.VideoReference)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer cleanup()
	metrics.StageDuration.WithLabelValues("retrieve").Observe(time.Since(start).Seconds())
	r.progress(ctx, sess.ID, 35)

	extracted, err := r.extract(ctx, path)
	if err != nil {
		return nil, classify(ctx, err)
	}
	r.progress(ctx, sess.ID, 70)

	start = time.Now()
	analysis, err := r.analyzer.Analyze(ctx, extracted.Frames, sess.SportType)
	if err != nil {
		return nil, classify(ctx, err)
	}
	metrics.StageDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	r.progress(ctx, sess.ID, 90)

	frameDims := overlay.Dimensions{}
	if len(extracted.Frames) > 0 {
		frameDims = overlay.Dimensions{Width: extracted.Frames[0].Width, Height: extracted.Frames[0].Height}
	}
	videoDims := overlay.Dimensions{Width: extracted.Metadata.Width, Height: extracted.Metadata.Height}
	elements := overlay.Synthesize(analysis, frameDims, videoDims, extracted.Metadata.Duration, r.cfg.Overlay)

	return &models.CompositeResult{
		Analysis: *analysis,
		Overlay:  elements,
		Video:    extracted.Metadata,
	}, nil
}

// extract runs the decode under the CPU semaphore.
func (r *Runner) extract(ctx context.Context, path string) (*extractor.Result, error) {
	select {
	case r.decodeSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.decodeSem }()

	start := time.Now()
	res, err := r.extractor.Extract(ctx, path, r.cfg.MaxFrames)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
	return res, nil
}

// fail records the terminal failure with a fresh context: the session context
// is usually the thing that just expired.
func (r *Runner) fail(id string, cause error, logger *zap.Logger) {
	perr := classify(context.Background(), cause)
	kind := models.KindOf(perr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := r.store.Transition(ctx, id, models.StatusProcessing, models.StatusFailed, session.TransitionPayload{
		Error: &models.SessionError{Kind: kind, Message: perr.Error()},
	})
	if err != nil {
		logger.Error("failed to record session failure", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	metrics.SessionsProcessedTotal.WithLabelValues(string(models.StatusFailed)).Inc()
	logger.Warn("session failed", zap.String("kind", kind), zap.Error(cause))
}

// classify maps context expiry onto the Timeout kind; everything else keeps
// the kind assigned where the error was produced.
func classify(ctx context.Context, err error) error {
	var perr *models.PipelineError
	if errors.As(err, &perr) && perr.Kind == models.KindTimeout {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &models.PipelineError{
			Kind:    models.KindTimeout,
			Message: fmt.Sprintf("session deadline exceeded: %v", err),
			Err:     err,
		}
	}
	return err
}

func (r *Runner) progress(ctx context.Context, id string, pct int) {
	if err := r.store.SetProgress(ctx, id, pct); err != nil {
		r.logger.Debug("failed to update progress", zap.String("session_id", id), zap.Error(err))
	}
}
