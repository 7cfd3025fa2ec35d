// analyze-video runs the full analysis flow against one local file and prints
// the composite result as JSON, bypassing the session store and HTTP API.
// Useful for prompt tuning and for checking a video before uploading it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/routelens/routelens/internal/config"
	"github.com/routelens/routelens/internal/extractor"
	"github.com/routelens/routelens/internal/models"
	"github.com/routelens/routelens/internal/overlay"
	"github.com/routelens/routelens/internal/vision"
	"github.com/routelens/routelens/pkg/logger"
)

func main() {
	var (
		path    = flag.String("file", "", "Path to the video file to analyze")
		sportIn = flag.String("sport", "climbing", "Sport type (climbing, bouldering, skiing, motocross, mountainbike)")
		timeout = flag.Duration("timeout", 4*time.Minute, "Overall deadline")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("Please provide a video file with -file")
	}
	sport, err := models.ParseSportType(*sportIn)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	ext, err := extractor.New(cfg.FrameSize, zl)
	if err != nil {
		log.Fatal("Failed to initialize frame extractor:", err)
	}

	extracted, err := ext.Extract(ctx, *path, cfg.MaxFrames)
	if err != nil {
		log.Fatal("Failed to extract frames: ", err)
	}
	log.Printf("Extracted %d frames from %.1fs of video", len(extracted.Frames), extracted.Metadata.Duration)

	analyzer := vision.NewAnalyzer(
		vision.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.VisionModel),
		vision.Config{Attempts: cfg.VisionAttempts, BaseBackoff: cfg.RetryBaseDelay},
		zl,
	)

	analysis, err := analyzer.Analyze(ctx, extracted.Frames, sport)
	if err != nil {
		log.Fatal("Analysis failed: ", err)
	}

	frameDims := overlay.Dimensions{Width: extracted.Frames[0].Width, Height: extracted.Frames[0].Height}
	videoDims := overlay.Dimensions{Width: extracted.Metadata.Width, Height: extracted.Metadata.Height}
	elements := overlay.Synthesize(analysis, frameDims, videoDims, extracted.Metadata.Duration,
		overlay.Config{GoodScore: cfg.ScoreGood, BorderlineScore: cfg.ScoreBorderline})

	result := models.CompositeResult{
		Analysis: *analysis,
		Overlay:  elements,
		Video:    extracted.Metadata,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal("Failed to encode result:", err)
	}
}
