package transcription

import (
	"context"
	"errors"

	"github.com/HienH/sale-smell/internal/service/orchestrator"
	"github.com/HienH/sale-smell/internal/service/provider"
	"github.com/HienH/sale-smell/internal/validation"
)

// UserMessage renders err as text fit for the UI. Provider vocabulary and
// transport details never leak through, except the failure message of a
// job the provider rejected.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var jf *orchestrator.JobFailedError
	switch {
	case errors.Is(err, validation.ErrMissingFile):
		return "Please choose an audio file to upload."
	case errors.Is(err, validation.ErrEmptyFile):
		return "The audio file is empty."
	case errors.Is(err, validation.ErrFileTooLarge):
		return "The audio file is too large. The maximum size is 100 MB."
	case errors.Is(err, validation.ErrUnsupportedType):
		return "Unsupported audio format. Please upload an MP3, WAV or M4A file."
	case errors.Is(err, validation.ErrValidation):
		return "The audio file is not valid."
	case errors.As(err, &jf):
		if jf.Message == "" {
			return "Transcription failed."
		}
		return jf.Message
	case errors.Is(err, orchestrator.ErrTimeout):
		return "Transcription is still processing. Please check back later."
	case errors.Is(err, orchestrator.ErrCancelled):
		return "Transcription was cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "Transcription timed out. Please try again."
	case errors.Is(err, provider.ErrAuthentication):
		return "Transcription service rejected the credentials: invalid credentials."
	case errors.Is(err, provider.ErrAuthorization):
		return "Transcription service denied access."
	case errors.Is(err, provider.ErrRateLimit):
		return "Rate limit exceeded. Please retry later."
	case errors.Is(err, provider.ErrInvalidRequest):
		return "The transcription request was rejected. Please check the audio format."
	case errors.Is(err, provider.ErrProvider):
		return "The transcription service had an upstream error. Please try again."
	case errors.Is(err, provider.ErrUpload):
		return "Uploading the audio failed. Please try again."
	default:
		return "Transcription failed. Please try again."
	}
}
