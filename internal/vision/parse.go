package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/routelens/routelens/internal/models"
)

// Wire shapes mirror the schema pinned in the prompt. Pointer fields
// distinguish "absent" from zero so required fields can be enforced.
type wireResult struct {
	SchemaVersion   string        `json:"schema_version"`
	OverallScore    *float64      `json:"overall_score"`
	Confidence      *float64      `json:"confidence"`
	Insights        []wireInsight `json:"insights"`
	Recommendations []string      `json:"recommendations"`
	RouteAnalysis   *wireRoute    `json:"route_analysis"`
}

type wireInsight struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

type wireRoute struct {
	DifficultyEstimate  string                      `json:"difficulty_estimate"`
	TotalMoves          int                         `json:"total_moves"`
	IdealRoute          []models.RoutePoint         `json:"ideal_route"`
	PerformanceSegments []models.PerformanceSegment `json:"performance_segments"`
}

// parseResult converts raw model output into a validated AnalysisResult.
// Missing cosmetic fields are defaulted; anything structural (required
// fields, ranges, ordering invariants) fails the parse and is eligible for
// one corrective re-prompt upstream.
func parseResult(content string) (*models.AnalysisResult, error) {
	payload := stripFences(content)

	var wire wireResult
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	if wire.OverallScore == nil {
		return nil, fmt.Errorf("overall_score missing")
	}

	result := &models.AnalysisResult{
		OverallScore:    *wire.OverallScore,
		Confidence:      0.7,
		Recommendations: wire.Recommendations,
	}
	if wire.Confidence != nil {
		result.Confidence = *wire.Confidence
	}

	for i, in := range wire.Insights {
		if in.Message == "" {
			continue
		}
		severity := in.Severity
		switch severity {
		case "info", "warning", "critical":
		default:
			severity = "info"
		}
		priority := in.Priority
		if priority <= 0 {
			priority = i + 1
		}
		category := in.Category
		if category == "" {
			category = "technique"
		}
		result.Insights = append(result.Insights, models.Insight{
			Category: category,
			Severity: severity,
			Message:  in.Message,
			Priority: priority,
		})
	}

	if wire.RouteAnalysis != nil {
		route := &models.RouteAnalysis{
			DifficultyEstimate:  wire.RouteAnalysis.DifficultyEstimate,
			TotalMoves:          wire.RouteAnalysis.TotalMoves,
			IdealRoute:          wire.RouteAnalysis.IdealRoute,
			PerformanceSegments: wire.RouteAnalysis.PerformanceSegments,
		}
		for i := range route.IdealRoute {
			if route.IdealRoute[i].HoldType == "" {
				route.IdealRoute[i].HoldType = "hold"
			}
		}
		if route.TotalMoves <= 0 {
			route.TotalMoves = len(route.IdealRoute)
		}
		result.RouteAnalysis = route
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// stripFences tolerates the model wrapping its JSON in a markdown code
// block despite the prompt asking it not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
