package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/routelens/routelens/internal/metrics"
	"github.com/routelens/routelens/internal/models"
)

// Backend is one concrete strategy for opening a video container/codec.
// Backends are tried in order; the first one whose Probe succeeds is used for
// the whole extraction.
type Backend interface {
	Name() string
	Probe(ctx context.Context, path string) (models.VideoMetadata, error)
	ExtractFrame(ctx context.Context, path string, timestamp float64, maxSize int) (data []byte, width, height int, err error)
}

// DecodeError reports that every backend in the ladder failed to open the
// file. Attempted lists the backends in the order they were tried.
type DecodeError struct {
	Path      string
	Attempted []string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("no decoding backend could open %s (attempted: %s)", filepath.Base(e.Path), strings.Join(e.Attempted, ", "))
}

type Result struct {
	Metadata models.VideoMetadata
	Frames   []models.VideoFrame
}

type Extractor struct {
	backends  []Backend
	frameSize int
	logger    *zap.Logger
}

// New builds an extractor with the default ffmpeg-based backend ladder.
func New(frameSize int, logger *zap.Logger) (*Extractor, error) {
	backends, err := DefaultBackends(logger)
	if err != nil {
		return nil, err
	}
	return NewWithBackends(backends, frameSize, logger), nil
}

func NewWithBackends(backends []Backend, frameSize int, logger *zap.Logger) *Extractor {
	if frameSize <= 0 {
		frameSize = 640
	}
	return &Extractor{backends: backends, frameSize: frameSize, logger: logger}
}

// Extract opens path with the first working backend and returns metadata plus
// at most maxFrames frames at deterministic, evenly spaced timestamps.
func (e *Extractor) Extract(ctx context.Context, path string, maxFrames int) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &models.PipelineError{Kind: models.KindDecode, Message: "video file not accessible", Err: err}
	}

	var attempted []string
	for _, backend := range e.backends {
		meta, err := backend.Probe(ctx, path)
		if err != nil || meta.Duration <= 0 {
			attempted = append(attempted, backend.Name())
			e.logger.Warn("decoding backend failed to open video",
				zap.String("backend", backend.Name()),
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}

		e.logger.Info("video opened",
			zap.String("backend", backend.Name()),
			zap.Float64("duration", meta.Duration),
			zap.Float64("fps", meta.FPS),
			zap.Int("width", meta.Width),
			zap.Int("height", meta.Height),
		)
		return e.extractWith(ctx, backend, path, meta, maxFrames)
	}

	return nil, &models.PipelineError{
		Kind:    models.KindDecode,
		Message: "all decoding backends failed",
		Err:     &DecodeError{Path: path, Attempted: attempted},
	}
}

func (e *Extractor) extractWith(ctx context.Context, backend Backend, path string, meta models.VideoMetadata, maxFrames int) (*Result, error) {
	timestamps := FrameTimestamps(meta.Duration, meta.FPS, maxFrames)

	frames := make([]models.VideoFrame, 0, len(timestamps))
	for _, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return nil, &models.PipelineError{Kind: models.KindTimeout, Message: "frame extraction cancelled", Err: err}
		}

		data, w, h, err := backend.ExtractFrame(ctx, path, ts, e.frameSize)
		if err != nil {
			e.logger.Warn("frame extraction failed",
				zap.String("backend", backend.Name()),
				zap.Float64("timestamp", ts),
				zap.Error(err),
			)
			continue
		}
		frames = append(frames, models.VideoFrame{
			Index:     len(frames),
			Timestamp: ts,
			Data:      data,
			Width:     w,
			Height:    h,
		})
	}

	if len(frames) == 0 {
		return nil, &models.PipelineError{
			Kind:    models.KindDecode,
			Message: fmt.Sprintf("failed to extract any frames (backend %s, %d timestamps)", backend.Name(), len(timestamps)),
		}
	}

	metrics.FramesExtractedTotal.Add(float64(len(frames)))
	return &Result{Metadata: meta, Frames: frames}, nil
}

// FrameTimestamps returns min(n, feasible) timestamps evenly spaced across
// [0, duration). The last timestamp is clamped below the duration so a seek
// to it always lands inside the video. The selection depends only on
// (duration, fps, n), which keeps extraction reproducible.
func FrameTimestamps(duration, fps float64, n int) []float64 {
	if n <= 0 || duration <= 0 {
		return nil
	}

	feasible := n
	if fps > 0 {
		feasible = int(duration * fps)
		if feasible < 1 {
			feasible = 1
		}
	}
	if n > feasible {
		n = feasible
	}

	if n == 1 {
		return []float64{0}
	}

	step := duration / float64(n-1)
	out := make([]float64, n)
	for i := 0; i < n-1; i++ {
		out[i] = float64(i) * step
	}

	last := duration - 0.1
	if last <= out[n-2] {
		last = (out[n-2] + duration) / 2
	}
	out[n-1] = last
	return out
}
