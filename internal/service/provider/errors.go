package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds. Every provider failure matches exactly one of these through
// errors.Is; upload failures additionally match ErrUpload.
var (
	ErrUpload         = errors.New("upload failed")
	ErrAuthentication = errors.New("invalid credentials")
	ErrAuthorization  = errors.New("access denied")
	ErrRateLimit      = errors.New("rate limit exceeded, retry later")
	ErrInvalidRequest = errors.New("invalid request, check audio format")
	ErrProvider       = errors.New("upstream service error")
	ErrOperation      = errors.New("operation failed")
)

// StatusError is a non-success transport response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	if body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, body)
}

// Error is a classified provider failure.
type Error struct {
	Kind error  // one of the Err* kinds above
	Op   string // operation context, e.g. "submit job"
	Err  error  // underlying failure
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Kind.Error())
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind and the underlying error to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// StatusCode extracts the transport status code from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// KindForStatus maps a transport status code onto an error kind.
func KindForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrAuthentication
	case code == http.StatusForbidden:
		return ErrAuthorization
	case code == http.StatusTooManyRequests:
		return ErrRateLimit
	case code == http.StatusBadRequest:
		return ErrInvalidRequest
	case code >= http.StatusInternalServerError:
		return ErrProvider
	default:
		return ErrOperation
	}
}

// Classify wraps err in an *Error whose kind is derived from its status
// code. Already classified errors and context errors pass through.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Kind: KindForStatus(StatusCode(err)), Op: op, Err: err}
}

// Kind returns the error kind carried by err, or nil when err is not a
// classified provider error.
func Kind(err error) error {
	for _, kind := range []error{
		ErrAuthentication,
		ErrAuthorization,
		ErrRateLimit,
		ErrInvalidRequest,
		ErrProvider,
		ErrUpload,
		ErrOperation,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindLabel is a short metric label for the kind of err.
func KindLabel(err error) string {
	switch Kind(err) {
	case ErrAuthentication:
		return "authentication"
	case ErrAuthorization:
		return "authorization"
	case ErrRateLimit:
		return "rate_limit"
	case ErrInvalidRequest:
		return "invalid_request"
	case ErrProvider:
		return "provider"
	case ErrUpload:
		return "upload"
	case ErrOperation:
		return "operation"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "unknown"
}

// Retryable reports whether another attempt may succeed. Credential
// failures and cancellation are final.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrAuthorization):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
