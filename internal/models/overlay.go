package models

type OverlayElementType string

const (
	ElementRouteLine         OverlayElementType = "route_line"
	ElementHoldMarker        OverlayElementType = "hold_marker"
	ElementPerformanceMarker OverlayElementType = "performance_marker"
)

type OverlayStyle struct {
	Color     string  `json:"color"`
	Thickness int     `json:"thickness,omitempty"`
	Size      int     `json:"size,omitempty"`
	Opacity   float64 `json:"opacity"`
}

// OverlayPoint is one vertex of a route line. Time drives the progressive
// reveal of the line during playback.
type OverlayPoint struct {
	X    int     `json:"x"`
	Y    int     `json:"y"`
	Time float64 `json:"time"`
}

// OverlayElement is a timed, pixel-addressed visual primitive. All
// coordinates are in the source video's native pixel space; display scaling
// is the renderer's concern. Exactly one of the geometry groups is populated
// depending on Type.
type OverlayElement struct {
	Type OverlayElementType `json:"type"`

	// route_line
	Points []OverlayPoint `json:"points,omitempty"`

	// hold_marker
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
	HoldType string `json:"hold_type,omitempty"`

	// performance_marker
	Score float64 `json:"score,omitempty"`
	Issue string  `json:"issue,omitempty"`

	// Visibility window. Point-in-time elements use Time; ranged elements
	// use TimeStart/TimeEnd.
	Time      float64 `json:"time,omitempty"`
	TimeStart float64 `json:"time_start"`
	TimeEnd   float64 `json:"time_end"`

	Style OverlayStyle `json:"style"`
}
