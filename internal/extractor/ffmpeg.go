package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/routelens/routelens/internal/models"
)

// DefaultBackends builds the production decoding ladder: an ffprobe-based
// backend first, then a legacy backend that parses ffmpeg's own stderr.
// Containers with broken or missing format headers frequently defeat ffprobe
// while plain ffmpeg still opens them, so both stay in the ladder.
func DefaultBackends(logger *zap.Logger) ([]Backend, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	tempDir := filepath.Join(os.TempDir(), "routelens-frames")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame temp directory: %w", err)
	}

	grabber := &frameGrabber{ffmpegPath: ffmpegPath, tempDir: tempDir}

	var backends []Backend
	if ffprobePath, err := exec.LookPath("ffprobe"); err == nil {
		backends = append(backends, &ffprobeBackend{ffprobePath: ffprobePath, grabber: grabber})
	} else {
		logger.Warn("ffprobe not found, relying on legacy ffmpeg probing only")
	}
	backends = append(backends, &legacyFFmpegBackend{ffmpegPath: ffmpegPath, grabber: grabber})
	return backends, nil
}

// frameGrabber seeks to a timestamp and returns one JPEG-encoded frame,
// downscaled to fit maxSize while preserving aspect ratio.
type frameGrabber struct {
	ffmpegPath string
	tempDir    string
}

func (g *frameGrabber) grab(ctx context.Context, path string, timestamp float64, maxSize int) ([]byte, int, int, error) {
	tempFile := filepath.Join(g.tempDir, uuid.New().String()+".jpg")
	defer os.Remove(tempFile)

	args := []string{
		"-ss", fmt.Sprintf("%.2f", timestamp),
		"-i", path,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease", maxSize, maxSize),
		"-q:v", "2",
		"-f", "mjpeg",
		tempFile,
	}

	cmd := exec.CommandContext(ctx, g.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, 0, 0, fmt.Errorf("extract frame at %.2fs: %w (%s)", timestamp, err, firstLine(stderr.String()))
	}

	file, err := os.Open(tempFile)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open extracted frame: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode frame: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode frame: %w", err)
	}

	bounds := img.Bounds()
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

// ffprobeBackend reads container metadata through ffprobe's JSON output.
type ffprobeBackend struct {
	ffprobePath string
	grabber     *frameGrabber
}

func (b *ffprobeBackend) Name() string { return "ffprobe" }

type ffprobeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (b *ffprobeBackend) Probe(ctx context.Context, path string) (models.VideoMetadata, error) {
	cmd := exec.CommandContext(ctx, b.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return models.VideoMetadata{}, fmt.Errorf("ffprobe: %w", err)
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return models.VideoMetadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probed.Streams) == 0 {
		return models.VideoMetadata{}, fmt.Errorf("no video stream in %s", filepath.Base(path))
	}

	duration, err := strconv.ParseFloat(probed.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return models.VideoMetadata{}, fmt.Errorf("invalid duration %q", probed.Format.Duration)
	}

	stream := probed.Streams[0]
	return models.VideoMetadata{
		Duration: duration,
		FPS:      parseFrameRate(stream.AvgFrameRate),
		Width:    stream.Width,
		Height:   stream.Height,
	}, nil
}

func (b *ffprobeBackend) ExtractFrame(ctx context.Context, path string, timestamp float64, maxSize int) ([]byte, int, int, error) {
	return b.grabber.grab(ctx, path, timestamp, maxSize)
}

// legacyFFmpegBackend scrapes duration, resolution and frame rate out of the
// banner ffmpeg prints to stderr when opening an input.
type legacyFFmpegBackend struct {
	ffmpegPath string
	grabber    *frameGrabber
}

func (b *legacyFFmpegBackend) Name() string { return "ffmpeg" }

var (
	durationRe   = regexp.MustCompile(`Duration: (\d+):(\d+):(\d+(?:\.\d+)?)`)
	resolutionRe = regexp.MustCompile(`, (\d{2,5})x(\d{2,5})[, ]`)
	fpsRe        = regexp.MustCompile(`(\d+(?:\.\d+)?) fps`)
)

func (b *legacyFFmpegBackend) Probe(ctx context.Context, path string) (models.VideoMetadata, error) {
	cmd := exec.CommandContext(ctx, b.ffmpegPath, "-i", path, "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// ffmpeg exits non-zero for "-f null" on some inputs; the banner is
	// still printed, so only the parse result decides success.
	_ = cmd.Run()
	banner := stderr.String()

	m := durationRe.FindStringSubmatch(banner)
	if m == nil {
		return models.VideoMetadata{}, fmt.Errorf("duration not found in ffmpeg output")
	}
	hours, _ := strconv.ParseFloat(m[1], 64)
	minutes, _ := strconv.ParseFloat(m[2], 64)
	seconds, _ := strconv.ParseFloat(m[3], 64)
	duration := hours*3600 + minutes*60 + seconds
	if duration <= 0 {
		return models.VideoMetadata{}, fmt.Errorf("invalid duration in ffmpeg output")
	}

	meta := models.VideoMetadata{Duration: duration}
	if rm := resolutionRe.FindStringSubmatch(banner); rm != nil {
		meta.Width, _ = strconv.Atoi(rm[1])
		meta.Height, _ = strconv.Atoi(rm[2])
	}
	if fm := fpsRe.FindStringSubmatch(banner); fm != nil {
		meta.FPS, _ = strconv.ParseFloat(fm[1], 64)
	}
	return meta, nil
}

func (b *legacyFFmpegBackend) ExtractFrame(ctx context.Context, path string, timestamp float64, maxSize int) ([]byte, int, int, error) {
	return b.grabber.grab(ctx, path, timestamp, maxSize)
}

func parseFrameRate(rate string) float64 {
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) == 2 {
		num, err1 := strconv.ParseFloat(parts[0], 64)
		den, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 == nil && err2 == nil && den > 0 {
			return num / den
		}
		return 0
	}
	v, _ := strconv.ParseFloat(rate, 64)
	return v
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
