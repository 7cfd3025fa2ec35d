// Package overlay converts a validated analysis result into timed,
// pixel-addressed primitives for the player to render. Synthesis is a pure
// function: identical input yields identical output, which keeps results
// cacheable and testable.
package overlay

import "github.com/routelens/routelens/internal/models"

const (
	routeLineColor     = "#00BFFF"
	routeLineThickness = 3
	routeLineOpacity   = 0.8

	holdMarkerSize    = 12
	holdMarkerOpacity = 0.9

	performanceMarkerOpacity = 0.85

	colorGood       = "#00FF00"
	colorBorderline = "#FFA500"
	colorPoor       = "#FF0000"

	// holdVisibilityWindow is how long a hold marker stays visible on each
	// side of its route point's time.
	holdVisibilityWindow = 2.0

	// RouteRevealLookahead is the progressive-reveal preview: at playback
	// time t the route line shows every point with time <= t + this value.
	RouteRevealLookahead = 1.0
)

// Config holds the score banding thresholds for performance coloring.
type Config struct {
	GoodScore       float64
	BorderlineScore float64
}

func DefaultConfig() Config {
	return Config{GoodScore: 0.80, BorderlineScore: 0.65}
}

type Dimensions struct {
	Width  int
	Height int
}

// Synthesize maps an analysis result onto overlay elements in the source
// video's native pixel space. frameDims is the resolution of the frames the
// model saw; route coordinates are scaled from frame space to videoDims.
// Results without route analysis synthesize to no elements.
func Synthesize(result *models.AnalysisResult, frameDims, videoDims Dimensions, totalDuration float64, cfg Config) []models.OverlayElement {
	if result == nil || result.RouteAnalysis == nil {
		return nil
	}
	route := result.RouteAnalysis

	sx, sy := 1.0, 1.0
	if frameDims.Width > 0 && videoDims.Width > 0 {
		sx = float64(videoDims.Width) / float64(frameDims.Width)
	}
	if frameDims.Height > 0 && videoDims.Height > 0 {
		sy = float64(videoDims.Height) / float64(frameDims.Height)
	}

	elements := make([]models.OverlayElement, 0, 1+len(route.IdealRoute)+len(route.PerformanceSegments))

	if len(route.IdealRoute) > 0 {
		points := make([]models.OverlayPoint, len(route.IdealRoute))
		for i, p := range route.IdealRoute {
			points[i] = models.OverlayPoint{
				X:    scale(p.X, sx),
				Y:    scale(p.Y, sy),
				Time: p.Time,
			}
		}
		elements = append(elements, models.OverlayElement{
			Type:      models.ElementRouteLine,
			Points:    points,
			TimeStart: 0,
			TimeEnd:   totalDuration,
			Style: models.OverlayStyle{
				Color:     routeLineColor,
				Thickness: routeLineThickness,
				Opacity:   routeLineOpacity,
			},
		})
	}

	for _, p := range route.IdealRoute {
		// Hold color follows the score of the segment covering the
		// hold's time, defaulting to good when no segment covers it.
		score := 0.85
		if seg := segmentAt(route.PerformanceSegments, p.Time); seg != nil {
			score = seg.Score
		}

		start := p.Time - holdVisibilityWindow
		if start < 0 {
			start = 0
		}
		end := p.Time + holdVisibilityWindow
		if end > totalDuration {
			end = totalDuration
		}

		elements = append(elements, models.OverlayElement{
			Type:      models.ElementHoldMarker,
			X:         scale(p.X, sx),
			Y:         scale(p.Y, sy),
			HoldType:  p.HoldType,
			Time:      p.Time,
			TimeStart: start,
			TimeEnd:   end,
			Style: models.OverlayStyle{
				Color:   bandColor(score, cfg),
				Size:    holdMarkerSize,
				Opacity: holdMarkerOpacity,
			},
		})
	}

	for _, seg := range route.PerformanceSegments {
		elements = append(elements, models.OverlayElement{
			Type:      models.ElementPerformanceMarker,
			Score:     seg.Score,
			Issue:     seg.Issue,
			TimeStart: seg.TimeStart,
			TimeEnd:   seg.TimeEnd,
			Style: models.OverlayStyle{
				Color:   bandColor(seg.Score, cfg),
				Opacity: performanceMarkerOpacity,
			},
		})
	}

	return elements
}

// VisiblePrefix returns the route-line points visible at playback time t:
// every point whose time is at most t plus the one-second reveal look-ahead.
func VisiblePrefix(points []models.OverlayPoint, t float64) []models.OverlayPoint {
	cut := 0
	for cut < len(points) && points[cut].Time <= t+RouteRevealLookahead {
		cut++
	}
	return points[:cut]
}

func bandColor(score float64, cfg Config) string {
	switch {
	case score >= cfg.GoodScore:
		return colorGood
	case score >= cfg.BorderlineScore:
		return colorBorderline
	default:
		return colorPoor
	}
}

func segmentAt(segments []models.PerformanceSegment, t float64) *models.PerformanceSegment {
	for i := range segments {
		if t >= segments[i].TimeStart && t <= segments[i].TimeEnd {
			return &segments[i]
		}
	}
	return nil
}

func scale(v int, factor float64) int {
	return int(float64(v)*factor + 0.5)
}
