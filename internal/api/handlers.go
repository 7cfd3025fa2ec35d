package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/routelens/routelens/internal/models"
	"github.com/routelens/routelens/internal/pipeline"
	"github.com/routelens/routelens/internal/session"
)

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// Enqueuer is the slice of the pipeline the API needs: hand over a session ID
// and get backpressure when the system is saturated.
type Enqueuer interface {
	Enqueue(id string) error
}

type App struct {
	Store    session.Store
	Pipeline Enqueuer
	Logger   *zap.Logger
}

type createSessionRequest struct {
	VideoReference string `json:"video_reference"`
	SportType      string `json:"sport_type"`
}

type createSessionResponse struct {
	SessionID string               `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
}

type statusResponse struct {
	SessionID string               `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
	Progress  int                  `json:"progress"`
	Error     *models.SessionError `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (app *App) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.VideoReference == "" {
		writeError(w, http.StatusBadRequest, "video_reference is required")
		return
	}
	sport, err := models.ParseSportType(req.SportType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess := models.NewAnalysisSession(req.VideoReference, sport)
	if err := app.Store.Create(r.Context(), sess); err != nil {
		app.Logger.Error("failed to create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	if err := app.Pipeline.Enqueue(sess.ID); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			// The pending row stays behind; a requeue endpoint or
			// janitor can pick it up, but the client should back off
			// now.
			writeError(w, http.StatusServiceUnavailable, "analysis queue is full, try again later")
			return
		}
		app.Logger.Error("failed to enqueue session", zap.String("session_id", sess.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enqueue session")
		return
	}

	app.Logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("sport_type", string(sport)),
	)
	writeJSON(w, http.StatusAccepted, createSessionResponse{SessionID: sess.ID, Status: sess.Status})
}

func (app *App) SessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		SessionID: sess.ID,
		Status:    sess.Status,
		Progress:  sess.Progress,
		Error:     sess.Error,
	})
}

func (app *App) SessionResultHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.loadSession(w, r)
	if !ok {
		return
	}
	switch sess.Status {
	case models.StatusCompleted:
		writeJSON(w, http.StatusOK, sess.Result)
	case models.StatusFailed:
		writeJSON(w, http.StatusConflict, statusResponse{
			SessionID: sess.ID,
			Status:    sess.Status,
			Error:     sess.Error,
		})
	default:
		writeError(w, http.StatusConflict, "analysis not finished yet")
	}
}

func (app *App) loadSession(w http.ResponseWriter, r *http.Request) (*models.AnalysisSession, bool) {
	id := chi.URLParam(r, "id")
	sess, err := app.Store.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		app.Logger.Error("failed to load session", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
