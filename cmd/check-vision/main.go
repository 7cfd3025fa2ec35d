// check-vision verifies that the configured vision service is reachable and
// that the API key works, without touching any video.
package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"os"
	"time"

	"github.com/routelens/routelens/internal/config"
	"github.com/routelens/routelens/internal/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	fmt.Println("Checking vision service configuration")
	fmt.Println("=====================================")

	if cfg.OpenAIAPIKey == "" {
		fmt.Println("OPENAI_API_KEY is not set")
		os.Exit(1)
	}
	fmt.Printf("Model: %s\n", cfg.VisionModel)

	// A tiny solid-color frame is enough to exercise the full request path.
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		log.Fatal("Failed to encode test frame:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := vision.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.VisionModel)
	start := time.Now()
	content, err := client.Complete(ctx,
		"Reply with the single word OK if you can see the attached image.",
		[][]byte{buf.Bytes()},
	)
	if err != nil {
		fmt.Printf("Vision service check FAILED after %v: %v\n", time.Since(start), err)
		os.Exit(1)
	}

	fmt.Printf("Vision service responded in %v\n", time.Since(start))
	fmt.Printf("Response: %q\n", content)
}
