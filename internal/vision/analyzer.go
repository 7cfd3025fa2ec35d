package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/routelens/routelens/internal/metrics"
	"github.com/routelens/routelens/internal/models"
)

// SchemaVersion pins the response contract carried inside the prompt. Bump
// it together with the wire structs in parse.go.
const SchemaVersion = "1"

type Config struct {
	Attempts    int
	BaseBackoff time.Duration
}

// Analyzer turns extracted frames plus sport context into a validated
// AnalysisResult. Transport failures are retried with backoff; a response
// that fails schema validation gets exactly one corrective re-prompt before
// the call is declared failed.
type Analyzer struct {
	client      ChatClient
	attempts    int
	baseBackoff time.Duration
	logger      *zap.Logger
}

func NewAnalyzer(client ChatClient, cfg Config, logger *zap.Logger) *Analyzer {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	return &Analyzer{
		client:      client,
		attempts:    cfg.Attempts,
		baseBackoff: cfg.BaseBackoff,
		logger:      logger,
	}
}

func (a *Analyzer) Analyze(ctx context.Context, frames []models.VideoFrame, sport models.SportType) (*models.AnalysisResult, error) {
	if len(frames) == 0 {
		return nil, &models.PipelineError{Kind: models.KindVision, Message: "no frames to analyze"}
	}

	images := make([][]byte, len(frames))
	for i, f := range frames {
		images[i] = f.Data
	}

	prompt := buildPrompt(sport, frames)
	content, err := a.complete(ctx, prompt, images)
	if err != nil {
		return nil, err
	}

	result, parseErr := parseResult(content)
	if parseErr == nil {
		return result, nil
	}

	a.logger.Warn("vision response failed validation, issuing corrective re-prompt",
		zap.String("sport", string(sport)),
		zap.Error(parseErr),
	)

	content, err = a.complete(ctx, correctivePrompt(prompt, parseErr), images)
	if err != nil {
		return nil, err
	}
	result, parseErr = parseResult(content)
	if parseErr != nil {
		return nil, &models.PipelineError{
			Kind:    models.KindVision,
			Message: "response failed schema validation after corrective retry",
			Err:     parseErr,
		}
	}
	return result, nil
}

// complete retries transport-class failures with exponential backoff.
// Permanent service errors are returned as-is.
func (a *Analyzer) complete(ctx context.Context, prompt string, images [][]byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt < a.attempts; attempt++ {
		if attempt > 0 {
			metrics.RetryTotal.WithLabelValues("vision").Inc()
			select {
			case <-time.After(a.baseBackoff << (attempt - 1)):
			case <-ctx.Done():
				return "", &models.PipelineError{Kind: models.KindTimeout, Message: "vision call cancelled", Err: ctx.Err()}
			}
		}

		content, err := a.client.Complete(ctx, prompt, images)
		if err == nil {
			return content, nil
		}
		if !models.IsRetryable(err) {
			return "", err
		}
		lastErr = err
		a.logger.Warn("vision service call failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", a.attempts),
			zap.Error(err),
		)
	}
	return "", lastErr
}

// Per-sport coaching focus folded into the prompt. Route geometry is only
// meaningful for the route sports.
var sportFocus = map[models.SportType]string{
	models.SportClimbing:     "grip positioning, foot placement accuracy, center of gravity management, movement flow, energy conservation",
	models.SportBouldering:   "problem reading, power-to-weight utilization, precision on small holds, controlled dynamic movement",
	models.SportSkiing:       "weight distribution, edge engagement and release, turn initiation and completion, stance, rhythm",
	models.SportMotocross:    "body positioning on the bike, throttle and brake control, jump takeoff and landing, cornering lines",
	models.SportMountainbike: "bike handling, line selection, braking timing, climbing efficiency, overall flow",
}

func routeSport(sport models.SportType) bool {
	return sport == models.SportClimbing || sport == models.SportBouldering
}

func buildPrompt(sport models.SportType, frames []models.VideoFrame) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an expert %s coach analyzing technique from video frames.\n", sport)
	fmt.Fprintf(&b, "Focus areas: %s.\n\n", sportFocus[sport])

	fmt.Fprintf(&b, "The %d attached frames were sampled from one continuous attempt, at these timestamps (seconds): ", len(frames))
	for i, f := range frames {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%.2f", f.Timestamp)
	}
	fmt.Fprintf(&b, ". Frame resolution: %dx%d pixels.\n\n", frames[0].Width, frames[0].Height)

	b.WriteString(`Respond with ONLY a JSON object, no markdown fences and no prose, matching exactly this schema:
{
  "schema_version": "` + SchemaVersion + `",
  "overall_score": <number 0.0-1.0>,
  "confidence": <number 0.0-1.0>,
  "insights": [{"category": "<string>", "severity": "info"|"warning"|"critical", "message": "<string>", "priority": <integer, 1 = highest>}],
  "recommendations": ["<string>", ...],
  "route_analysis": {
    "difficulty_estimate": "<string, e.g. 6a+ / V3>",
    "total_moves": <integer>,
    "ideal_route": [{"x": <integer>, "y": <integer>, "time": <number, seconds>, "hold_type": "<string>"}],
    "performance_segments": [{"time_start": <number>, "time_end": <number>, "score": <number 0.0-1.0>, "issue": "<string or omit>"}]
  }
}

Rules:
- ideal_route times must be strictly increasing.
- performance_segments must be ordered and non-overlapping; gaps are allowed.
- x/y coordinates are pixels in the attached frame resolution.
`)

	if !routeSport(sport) {
		b.WriteString("- This sport has no fixed route: omit route_analysis entirely.\n")
	}

	return b.String()
}

func correctivePrompt(prompt string, parseErr error) string {
	return prompt + fmt.Sprintf(
		"\n\nYour previous response was rejected: %v.\nRespond again with ONLY the JSON object described above. No explanation, no markdown.",
		parseErr,
	)
}
