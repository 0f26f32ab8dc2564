package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/HienH/sale-smell/internal/app"
	"github.com/HienH/sale-smell/internal/observability/metrics"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	return newRouter(NewHandler(application.Transcriptions, application.Validator))
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(metrics.DefaultMetrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1/transcriptions", func(r chi.Router) {
		r.Post("/", h.createTranscription)
		r.Get("/{id}", h.getTranscription)
		r.Delete("/{id}", h.cancelTranscription)
		r.Get("/{id}/events", h.streamEvents)
	})

	return r
}
