package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/HienH/sale-smell/internal/models"
	"github.com/HienH/sale-smell/internal/observability/logging"
	"github.com/HienH/sale-smell/internal/observability/metrics"
	"github.com/HienH/sale-smell/internal/service/normalize"
	"github.com/HienH/sale-smell/internal/service/orchestrator"
	"github.com/HienH/sale-smell/internal/service/provider"
	"github.com/HienH/sale-smell/internal/service/transcription"
	"github.com/HienH/sale-smell/internal/validation"
)

const (
	// multipartMemory is held in memory before spilling to temp files.
	multipartMemory = 32 << 20
	// multipartOverhead allows for form fields and part headers.
	multipartOverhead = 1 << 20

	writeWait = 10 * time.Second
	pingEvery = 30 * time.Second
)

// startResponse is returned when a transcription is accepted.
type startResponse struct {
	ID       string           `json:"id"`
	Status   models.JobStatus `json:"status"`
	Progress int              `json:"progress"`
}

// statusResponse is returned for a status check.
type statusResponse struct {
	Result   *models.TranscriptionResult `json:"result"`
	Progress int                         `json:"progress"`
}

// Handler serves the transcription API.
type Handler struct {
	svc       *transcription.Service
	validator *validation.Validator
	hub       *Hub
	upgrader  websocket.Upgrader
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewHandler creates the API handler.
func NewHandler(svc *transcription.Service, validator *validation.Validator) *Handler {
	return &Handler{
		svc:       svc,
		validator: validator,
		hub:       NewHub(10 * time.Minute),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the UI may be served from another origin
			},
		},
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("http"),
	}
}

// createTranscription accepts a multipart upload and starts a job.
func (h *Handler) createTranscription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.validator.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, validation.ErrFileTooLarge)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Request must be multipart/form-data with a file field."})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.reject(w, validation.ErrMissingFile)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if err := h.validator.ValidateHeader(header.Filename, contentType, header.Size); err != nil {
		h.reject(w, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read upload")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Could not read the uploaded file."})
		return
	}

	opts, err := parseOptions(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid form field: " + err.Error()})
		return
	}

	audio := &validation.Audio{
		Name:        header.Filename,
		ContentType: validation.MediaType(header.Filename, contentType),
		Data:        data,
	}

	stream := h.hub.Open()
	session, err := h.svc.StartTranscription(r.Context(), audio, opts, stream.Callbacks())
	if err != nil {
		h.logger.Warn().Err(err).Str("file", header.Filename).Msg("Transcription not started")
		writeError(w, err)
		return
	}

	h.hub.Register(session.ID, stream)
	go func() {
		<-session.Done()
		h.hub.Expire(session.ID, stream)
	}()

	h.logger.Info().
		Str("jobId", session.ID).
		Str("runId", session.RunID()).
		Str("file", header.Filename).
		Int("bytes", len(data)).
		Msg("Transcription accepted")

	writeJSON(w, http.StatusAccepted, startResponse{
		ID:       session.ID,
		Status:   models.StatusQueued,
		Progress: 20,
	})
}

func (h *Handler) reject(w http.ResponseWriter, err error) {
	h.metrics.RecordValidationFailure("http")
	writeError(w, err)
}

// getTranscription returns the current result snapshot of a job.
func (h *Handler) getTranscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.svc.CheckStatus(r.Context(), id)
	if err != nil {
		if provider.StatusCode(err) == http.StatusNotFound {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "Transcription not found."})
			return
		}
		writeError(w, err)
		return
	}

	progress := normalize.Progress(result.Status)
	if stream, ok := h.hub.Get(id); ok && result.Status != models.StatusCompleted {
		if ev, ok := stream.Latest(); ok && ev.Progress > progress {
			progress = ev.Progress
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{Result: result, Progress: progress})
}

// cancelTranscription stops following a job. The provider job continues.
func (h *Handler) cancelTranscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.svc.Cancel(id) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "No transcription in progress with that id."})
		return
	}
	if stream, ok := h.hub.Get(id); ok {
		latest, _ := stream.Latest()
		stream.Publish(Event{
			Type:     EventTypeCancelled,
			Progress: latest.Progress,
			Message:  transcription.UserMessage(orchestrator.ErrCancelled),
		})
	}
	h.logger.Info().Str("jobId", id).Msg("Transcription cancelled by client")
	w.WriteHeader(http.StatusNoContent)
}

// streamEvents upgrades to a WebSocket and streams progress for a job.
// Jobs not started by this process are watched by polling.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	h.metrics.RecordWebSocketOpen()
	defer h.metrics.RecordWebSocketClose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, ok := h.hub.Get(id)
	if !ok {
		stream = h.watch(ctx, id)
	}
	events, unsubscribe := stream.Subscribe()
	defer unsubscribe()

	// Reads detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug().Err(err).Str("jobId", id).Msg("WebSocket write failed")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// watch polls an existing job for the lifetime of ctx.
func (h *Handler) watch(ctx context.Context, id string) *Stream {
	stream := h.hub.Open()
	go func() {
		_, err := h.svc.PollTranscriptionStatus(ctx, id, stream.Callbacks())
		if err != nil {
			h.logger.Debug().Err(err).Str("jobId", id).Msg("Watch ended")
		}
	}()
	return stream
}

// parseOptions reads optional feature overrides from the form.
func parseOptions(r *http.Request) (transcription.Options, error) {
	features := provider.DefaultFeatures()
	features.LanguageCode = r.FormValue("language_code")

	flags := []struct {
		field  string
		target *bool
	}{
		{"speaker_labels", &features.SpeakerLabels},
		{"sentiment_analysis", &features.SentimentAnalysis},
		{"summarization", &features.Summarization},
		{"redact_pii", &features.RedactPII},
		{"auto_highlights", &features.AutoHighlights},
	}
	for _, f := range flags {
		v := r.FormValue(f.field)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return transcription.Options{}, fmt.Errorf("%s must be true or false, got %q", f.field, v)
		}
		*f.target = b
	}

	return transcription.Options{Features: &features}, nil
}
