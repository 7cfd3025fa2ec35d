// Package session persists analysis sessions and owns the status lifecycle.
// Every status change goes through Transition, which is compare-and-swap on
// the current status so concurrent workers cannot double-process a session or
// resurrect a terminal one.
package session

import (
	"context"
	"errors"

	"github.com/routelens/routelens/internal/models"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrConflict means the session was not in the expected status. The
	// caller lost the race (or the lifecycle forbids the move) and must
	// not touch the session further.
	ErrConflict = errors.New("session status conflict")
)

// TransitionPayload carries the data written atomically with a status change.
// Result accompanies completed, Error accompanies failed.
type TransitionPayload struct {
	Result *models.CompositeResult
	Error  *models.SessionError
}

type Store interface {
	Create(ctx context.Context, s *models.AnalysisSession) error
	Get(ctx context.Context, id string) (*models.AnalysisSession, error)

	// Transition atomically moves the session from one status to another.
	// Returns ErrConflict when the session is not currently in `from` or
	// when the lifecycle does not allow from -> to.
	Transition(ctx context.Context, id string, from, to models.SessionStatus, payload TransitionPayload) error

	// SetProgress is advisory and best-effort; it never changes status.
	SetProgress(ctx context.Context, id string, progress int) error

	Close() error
}
