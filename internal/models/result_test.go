package models

import "testing"

func validResult() *AnalysisResult {
	return &AnalysisResult{
		OverallScore: 0.82,
		Confidence:   0.9,
		RouteAnalysis: &RouteAnalysis{
			DifficultyEstimate: "6b",
			TotalMoves:         3,
			IdealRoute: []RoutePoint{
				{X: 100, Y: 400, Time: 1.0, HoldType: "jug"},
				{X: 120, Y: 320, Time: 3.5, HoldType: "crimp"},
				{X: 150, Y: 240, Time: 6.0, HoldType: "sloper"},
			},
			PerformanceSegments: []PerformanceSegment{
				{TimeStart: 0, TimeEnd: 3.0, Score: 0.9},
				{TimeStart: 3.0, TimeEnd: 7.0, Score: 0.6, Issue: "hesitation before crux"},
			},
		},
	}
}

func TestAnalysisResultValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AnalysisResult)
		wantErr bool
	}{
		{"valid result", func(r *AnalysisResult) {}, false},
		{"no route analysis", func(r *AnalysisResult) { r.RouteAnalysis = nil }, false},
		{"overall score above 1", func(r *AnalysisResult) { r.OverallScore = 1.2 }, true},
		{"negative confidence", func(r *AnalysisResult) { r.Confidence = -0.1 }, true},
		{"route times not increasing", func(r *AnalysisResult) {
			r.RouteAnalysis.IdealRoute[2].Time = 3.5
		}, true},
		{"route times decreasing", func(r *AnalysisResult) {
			r.RouteAnalysis.IdealRoute[1].Time = 0.5
		}, true},
		{"overlapping segments", func(r *AnalysisResult) {
			r.RouteAnalysis.PerformanceSegments[1].TimeStart = 2.5
		}, true},
		{"segment with zero span", func(r *AnalysisResult) {
			r.RouteAnalysis.PerformanceSegments[0].TimeEnd = 0
		}, true},
		{"segment score out of range", func(r *AnalysisResult) {
			r.RouteAnalysis.PerformanceSegments[0].Score = 1.5
		}, true},
		{"gap between segments is allowed", func(r *AnalysisResult) {
			r.RouteAnalysis.PerformanceSegments[1].TimeStart = 4.0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validResult()
			tt.mutate(r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && KindOf(err) != KindValidation {
				t.Errorf("expected %s, got %s", KindValidation, KindOf(err))
			}
		})
	}
}
