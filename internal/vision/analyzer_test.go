package vision

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/routelens/routelens/internal/models"
)

// scriptedClient returns canned responses (or errors) in order.
type scriptedClient struct {
	responses []string
	errs      []error
	prompts   []string
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string, images [][]byte) (string, error) {
	i := c.calls
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	return c.responses[i], nil
}

func testFrames(n int) []models.VideoFrame {
	frames := make([]models.VideoFrame, n)
	for i := range frames {
		frames[i] = models.VideoFrame{
			Index:     i,
			Timestamp: float64(i) * 5.0,
			Data:      []byte{0xFF, 0xD8},
			Width:     640,
			Height:    360,
		}
	}
	return frames
}

func fastConfig() Config {
	return Config{Attempts: 3, BaseBackoff: time.Millisecond}
}

func TestAnalyzeHappyPath(t *testing.T) {
	client := &scriptedClient{responses: []string{validPayload}}
	a := NewAnalyzer(client, fastConfig(), zap.NewNop())

	result, err := a.Analyze(context.Background(), testFrames(3), models.SportClimbing)
	if err != nil {
		t.Fatal(err)
	}
	if result.OverallScore != 0.82 {
		t.Errorf("overall score = %v", result.OverallScore)
	}
	if client.calls != 1 {
		t.Errorf("expected 1 call, got %d", client.calls)
	}
}

func TestAnalyzeCorrectiveRetryRecovers(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Sure! The climber shows strong technique overall.",
		validPayload,
	}}
	a := NewAnalyzer(client, fastConfig(), zap.NewNop())

	result, err := a.Analyze(context.Background(), testFrames(2), models.SportBouldering)
	if err != nil {
		t.Fatal(err)
	}
	if result == nil || result.OverallScore != 0.82 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if client.calls != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", client.calls)
	}
	if !strings.Contains(client.prompts[1], "previous response was rejected") {
		t.Error("second prompt should carry the corrective instruction")
	}
}

func TestAnalyzeCorrectiveRetryGivesUp(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"not json",
		"still not json",
	}}
	a := NewAnalyzer(client, fastConfig(), zap.NewNop())

	_, err := a.Analyze(context.Background(), testFrames(2), models.SportClimbing)
	if err == nil {
		t.Fatal("expected error after failed corrective retry")
	}
	if kind := models.KindOf(err); kind != models.KindVision {
		t.Errorf("expected %s, got %s", models.KindVision, kind)
	}
	if client.calls != 2 {
		t.Errorf("exactly one corrective retry allowed, got %d calls", client.calls)
	}
}

func TestAnalyzeRetriesTransportErrors(t *testing.T) {
	transient := &models.PipelineError{Kind: models.KindVision, Message: "vision service returned 503", Retryable: true}
	client := &scriptedClient{
		errs:      []error{transient, transient, nil},
		responses: []string{"", "", validPayload},
	}
	a := NewAnalyzer(client, fastConfig(), zap.NewNop())

	result, err := a.Analyze(context.Background(), testFrames(1), models.SportClimbing)
	if err != nil {
		t.Fatal(err)
	}
	if result.OverallScore != 0.82 {
		t.Errorf("overall score = %v", result.OverallScore)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 calls, got %d", client.calls)
	}
}

func TestAnalyzePermanentErrorNotRetried(t *testing.T) {
	permanent := &models.PipelineError{Kind: models.KindVision, Message: "vision service error: invalid api key"}
	client := &scriptedClient{errs: []error{permanent}, responses: []string{""}}
	a := NewAnalyzer(client, fastConfig(), zap.NewNop())

	_, err := a.Analyze(context.Background(), testFrames(1), models.SportClimbing)
	if err == nil {
		t.Fatal("expected error")
	}
	if client.calls != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", client.calls)
	}
}

func TestAnalyzeNoFrames(t *testing.T) {
	a := NewAnalyzer(&scriptedClient{}, fastConfig(), zap.NewNop())
	_, err := a.Analyze(context.Background(), nil, models.SportClimbing)
	if err == nil {
		t.Fatal("expected error for empty frame set")
	}
}
