package extractor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/routelens/routelens/internal/models"
)

func TestFrameTimestamps(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		fps      float64
		n        int
		want     []float64
	}{
		{
			name:     "standard 30s video",
			duration: 30, fps: 30, n: 5,
			want: []float64{0, 7.5, 15, 22.5, 29.9},
		},
		{
			name:     "single frame requested",
			duration: 30, fps: 30, n: 1,
			want: []float64{0},
		},
		{
			name:     "short video limits frame count",
			duration: 0.1, fps: 30, n: 5,
			want: []float64{0, 0.05, 0.075},
		},
		{
			name:     "two frames",
			duration: 10, fps: 25, n: 2,
			want: []float64{0, 9.9},
		},
		{
			name:     "zero duration",
			duration: 0, fps: 30, n: 5,
			want: nil,
		},
		{
			name:     "unknown fps keeps requested count",
			duration: 30, fps: 0, n: 5,
			want: []float64{0, 7.5, 15, 22.5, 29.9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FrameTimestamps(tt.duration, tt.fps, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d timestamps %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("timestamp %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFrameTimestampsDeterministic(t *testing.T) {
	a := FrameTimestamps(42.7, 29.97, 5)
	b := FrameTimestamps(42.7, 29.97, 5)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("timestamps differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
	for i := range a {
		if a[i] >= 42.7 {
			t.Errorf("timestamp %d (%v) not inside video duration", i, a[i])
		}
	}
}

// fakeBackend scripts Probe and per-frame outcomes.
type fakeBackend struct {
	name      string
	meta      models.VideoMetadata
	probeErr  error
	frameErrs map[int]error
	calls     int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Probe(ctx context.Context, path string) (models.VideoMetadata, error) {
	if f.probeErr != nil {
		return models.VideoMetadata{}, f.probeErr
	}
	return f.meta, nil
}

func (f *fakeBackend) ExtractFrame(ctx context.Context, path string, timestamp float64, maxSize int) ([]byte, int, int, error) {
	call := f.calls
	f.calls++
	if err, ok := f.frameErrs[call]; ok {
		return nil, 0, 0, err
	}
	return []byte{0xFF, 0xD8}, 640, 360, nil
}

func tempVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractFallsBackThroughLadder(t *testing.T) {
	broken := &fakeBackend{name: "primary", probeErr: errors.New("moov atom not found")}
	working := &fakeBackend{name: "fallback", meta: models.VideoMetadata{Duration: 30, FPS: 30, Width: 1920, Height: 1080}}

	e := NewWithBackends([]Backend{broken, working}, 640, zap.NewNop())
	res, err := e.Extract(context.Background(), tempVideo(t), 5)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Frames) != 5 {
		t.Errorf("expected 5 frames, got %d", len(res.Frames))
	}
	if res.Metadata.Width != 1920 {
		t.Errorf("metadata should come from the working backend, got width %d", res.Metadata.Width)
	}
	if broken.calls != 0 {
		t.Error("failed backend should never be asked for frames")
	}
}

func TestExtractAllBackendsFail(t *testing.T) {
	a := &fakeBackend{name: "first", probeErr: errors.New("bad header")}
	b := &fakeBackend{name: "second", probeErr: errors.New("bad header")}

	e := NewWithBackends([]Backend{a, b}, 640, zap.NewNop())
	_, err := e.Extract(context.Background(), tempVideo(t), 5)
	if err == nil {
		t.Fatal("expected error when every backend fails")
	}
	if kind := models.KindOf(err); kind != models.KindDecode {
		t.Errorf("expected %s, got %s", models.KindDecode, kind)
	}

	var dec *DecodeError
	if !errors.As(err, &dec) {
		t.Fatalf("expected DecodeError in chain, got %v", err)
	}
	if len(dec.Attempted) != 2 || dec.Attempted[0] != "first" || dec.Attempted[1] != "second" {
		t.Errorf("attempted list = %v, want [first second]", dec.Attempted)
	}
}

func TestExtractSkipsFailedFrames(t *testing.T) {
	backend := &fakeBackend{
		name:      "flaky",
		meta:      models.VideoMetadata{Duration: 30, FPS: 30},
		frameErrs: map[int]error{2: fmt.Errorf("seek failed")},
	}

	e := NewWithBackends([]Backend{backend}, 640, zap.NewNop())
	res, err := e.Extract(context.Background(), tempVideo(t), 5)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Frames) != 4 {
		t.Fatalf("expected 4 frames after one failure, got %d", len(res.Frames))
	}
	for i, f := range res.Frames {
		if f.Index != i {
			t.Errorf("frame %d has index %d, indexes must stay contiguous", i, f.Index)
		}
	}
}

func TestExtractMissingFile(t *testing.T) {
	e := NewWithBackends([]Backend{&fakeBackend{name: "any", meta: models.VideoMetadata{Duration: 10}}}, 640, zap.NewNop())
	_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), 5)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if kind := models.KindOf(err); kind != models.KindDecode {
		t.Errorf("expected %s, got %s", models.KindDecode, kind)
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30000/1001", 29.97002997002997},
		{"25/1", 25},
		{"24", 24},
		{"0/0", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
