package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusProcessing SessionStatus = "processing"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
)

// Terminal reports whether a session in this status can never change again.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo enforces the one-directional session lifecycle:
// pending -> processing -> completed|failed.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

type SportType string

const (
	SportClimbing     SportType = "climbing"
	SportBouldering   SportType = "bouldering"
	SportSkiing       SportType = "skiing"
	SportMotocross    SportType = "motocross"
	SportMountainbike SportType = "mountainbike"
)

var sportTypes = map[SportType]bool{
	SportClimbing:     true,
	SportBouldering:   true,
	SportSkiing:       true,
	SportMotocross:    true,
	SportMountainbike: true,
}

func ParseSportType(s string) (SportType, error) {
	st := SportType(s)
	if !sportTypes[st] {
		return "", &PipelineError{Kind: KindValidation, Message: fmt.Sprintf("unknown sport type: %q", s)}
	}
	return st, nil
}

// SessionError is the stable error shape exposed to pollers of a failed
// session.
type SessionError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// AnalysisSession is one end-to-end analysis request for a single uploaded
// video. The session store is the only component allowed to mutate Status.
type AnalysisSession struct {
	ID             string           `json:"session_id"`
	SportType      SportType        `json:"sport_type"`
	Status         SessionStatus    `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	VideoReference string           `json:"video_reference"`
	Progress       int              `json:"progress,omitempty"`
	Error          *SessionError    `json:"error,omitempty"`
	Result         *CompositeResult `json:"result,omitempty"`
}

func NewAnalysisSession(videoReference string, sport SportType) *AnalysisSession {
	return &AnalysisSession{
		ID:             uuid.New().String(),
		SportType:      sport,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
		VideoReference: videoReference,
	}
}
