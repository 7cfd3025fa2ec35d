package models

import "fmt"

type Insight struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

type RoutePoint struct {
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Time     float64 `json:"time"`
	HoldType string  `json:"hold_type"`
}

type PerformanceSegment struct {
	TimeStart float64 `json:"time_start"`
	TimeEnd   float64 `json:"time_end"`
	Score     float64 `json:"score"`
	Issue     string  `json:"issue,omitempty"`
}

// RouteAnalysis is the sport-specific sub-result describing an ideal movement
// path and segment-by-segment performance scoring.
type RouteAnalysis struct {
	DifficultyEstimate  string               `json:"difficulty_estimate"`
	TotalMoves          int                  `json:"total_moves"`
	IdealRoute          []RoutePoint         `json:"ideal_route"`
	PerformanceSegments []PerformanceSegment `json:"performance_segments"`
}

type AnalysisResult struct {
	OverallScore    float64        `json:"overall_score"`
	Confidence      float64        `json:"confidence"`
	Insights        []Insight      `json:"insights"`
	Recommendations []string       `json:"recommendations"`
	RouteAnalysis   *RouteAnalysis `json:"route_analysis,omitempty"`
}

// CompositeResult is the full per-session output: the validated model result
// plus the overlay synthesized from it, addressed to the source video's
// native resolution.
type CompositeResult struct {
	Analysis AnalysisResult   `json:"analysis"`
	Overlay  []OverlayElement `json:"overlay"`
	Video    VideoMetadata    `json:"video"`
}

// Validate enforces the result invariants: normalized scores, strictly
// increasing route point times, and non-overlapping performance segments.
// Overlapping segments are rejected here, never silently merged.
func (r *AnalysisResult) Validate() error {
	if r.OverallScore < 0 || r.OverallScore > 1 {
		return &PipelineError{Kind: KindValidation, Message: fmt.Sprintf("overall_score %.3f out of range [0,1]", r.OverallScore)}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return &PipelineError{Kind: KindValidation, Message: fmt.Sprintf("confidence %.3f out of range [0,1]", r.Confidence)}
	}
	if r.RouteAnalysis == nil {
		return nil
	}

	for i := 1; i < len(r.RouteAnalysis.IdealRoute); i++ {
		prev, cur := r.RouteAnalysis.IdealRoute[i-1], r.RouteAnalysis.IdealRoute[i]
		if cur.Time <= prev.Time {
			return &PipelineError{
				Kind:    KindValidation,
				Message: fmt.Sprintf("ideal_route times not strictly increasing at index %d (%.2f <= %.2f)", i, cur.Time, prev.Time),
			}
		}
	}

	segs := r.RouteAnalysis.PerformanceSegments
	for i, s := range segs {
		if s.TimeEnd <= s.TimeStart {
			return &PipelineError{
				Kind:    KindValidation,
				Message: fmt.Sprintf("performance_segment %d has non-positive span [%.2f, %.2f]", i, s.TimeStart, s.TimeEnd),
			}
		}
		if s.Score < 0 || s.Score > 1 {
			return &PipelineError{Kind: KindValidation, Message: fmt.Sprintf("performance_segment %d score %.3f out of range [0,1]", i, s.Score)}
		}
		if i > 0 && s.TimeStart < segs[i-1].TimeEnd {
			return &PipelineError{
				Kind:    KindValidation,
				Message: fmt.Sprintf("performance_segments %d and %d overlap", i-1, i),
			}
		}
	}
	return nil
}
