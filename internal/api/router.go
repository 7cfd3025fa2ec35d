package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", app.CreateSessionHandler)
		r.Get("/sessions/{id}/status", app.SessionStatusHandler)
		r.Get("/sessions/{id}/result", app.SessionResultHandler)
	})

	return r
}
