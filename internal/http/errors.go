package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/HienH/sale-smell/internal/service/orchestrator"
	"github.com/HienH/sale-smell/internal/service/provider"
	"github.com/HienH/sale-smell/internal/service/transcription"
	"github.com/HienH/sale-smell/internal/validation"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error string `json:"error"`
}

// StatusFor maps a service error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, validation.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, validation.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, orchestrator.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, orchestrator.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, provider.ErrAuthentication),
		errors.Is(err, provider.ErrAuthorization),
		errors.Is(err, provider.ErrProvider),
		errors.Is(err, provider.ErrInvalidRequest),
		errors.Is(err, provider.ErrUpload),
		errors.Is(err, orchestrator.ErrJobFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError renders err with its mapped status and a human-readable
// message.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), errorResponse{Error: transcription.UserMessage(err)})
}
