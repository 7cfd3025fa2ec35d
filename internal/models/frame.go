package models

// VideoMetadata describes the source video as opened by a decoding backend.
// Width and Height are the native resolution; overlay geometry is expressed
// in this pixel space.
type VideoMetadata struct {
	Duration float64 `json:"duration"`
	FPS      float64 `json:"fps"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// VideoFrame is one extracted frame. Data holds JPEG bytes sized for model
// input; Width and Height are the dimensions of the encoded frame, which may
// be smaller than the source video.
type VideoFrame struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp_seconds"`
	Data      []byte  `json:"-"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}
