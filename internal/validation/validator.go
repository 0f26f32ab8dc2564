// Package validation checks uploaded audio before any provider call is made.
// The HTTP layer and the provider client share these rules so both agree on
// the accepted media types and size limits.
package validation

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// MaxFileSize is the largest accepted upload (100 MiB).
const MaxFileSize int64 = 100 * 1024 * 1024

// ErrValidation is the parent of every validation failure.
var ErrValidation = errors.New("validation failed")

var (
	ErrMissingFile     = fmt.Errorf("%w: no audio file provided", ErrValidation)
	ErrEmptyFile       = fmt.Errorf("%w: audio file is empty", ErrValidation)
	ErrFileTooLarge    = fmt.Errorf("%w: audio file is too large", ErrValidation)
	ErrUnsupportedType = fmt.Errorf("%w: unsupported audio type", ErrValidation)
)

// supportedTypes is the media type allow-list.
var supportedTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/mp3":   true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/wave":  true,
	"audio/mp4":   true,
	"audio/m4a":   true,
	"audio/x-m4a": true,
}

// extensionTypes resolves a media type when the client did not declare one.
var extensionTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".mpeg": "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
}

// Audio is an uploaded recording.
type Audio struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload length in bytes.
func (a *Audio) Size() int64 {
	if a == nil {
		return 0
	}
	return int64(len(a.Data))
}

// Validator enforces the audio upload rules.
type Validator struct {
	maxBytes int64
}

// New returns a validator using MaxFileSize.
func New() *Validator {
	return &Validator{maxBytes: MaxFileSize}
}

// NewWithLimit returns a validator with a custom size limit. Non-positive
// limits fall back to MaxFileSize.
func NewWithLimit(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = MaxFileSize
	}
	return &Validator{maxBytes: maxBytes}
}

// MaxBytes returns the configured size limit.
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}

// Validate checks presence, media type, emptiness and size of the audio.
func (v *Validator) Validate(a *Audio) error {
	if a == nil {
		return ErrMissingFile
	}
	return v.ValidateHeader(a.Name, a.ContentType, a.Size())
}

// ValidateHeader applies the same rules using only upload metadata, so a
// request can be rejected before its body is buffered.
func (v *Validator) ValidateHeader(name, contentType string, size int64) error {
	mediaType := MediaType(name, contentType)
	if !supportedTypes[mediaType] {
		if mediaType == "" {
			mediaType = "unknown"
		}
		return fmt.Errorf("%w %q", ErrUnsupportedType, mediaType)
	}
	if size <= 0 {
		return ErrEmptyFile
	}
	if size > v.maxBytes {
		return fmt.Errorf("%w (%d bytes, max %d)", ErrFileTooLarge, size, v.maxBytes)
	}
	return nil
}

// MediaType resolves the effective media type of an upload. The declared
// content type wins unless it is missing or generic, in which case the file
// extension decides.
func MediaType(name, contentType string) string {
	mediaType := ""
	if contentType != "" {
		if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
			mediaType = strings.ToLower(parsed)
		}
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		if ext, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
			return ext
		}
	}
	return mediaType
}

// IsSupported reports whether the media type is on the allow-list.
func IsSupported(mediaType string) bool {
	return supportedTypes[strings.ToLower(mediaType)]
}
