// Package provider defines the boundary to the external speech-analysis
// service and the client that wraps every call with retries and error
// mapping.
package provider

import (
	"context"

	"github.com/HienH/sale-smell/internal/validation"
)

// API is the raw, single-attempt interface of one speech-analysis service.
// Implementations return *StatusError for non-success responses so the
// Client can map them onto the error taxonomy.
type API interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Upload stores the audio with the provider and returns a reference
	// usable as JobRequest.AudioURL.
	Upload(ctx context.Context, audio *validation.Audio) (string, error)

	// CreateJob submits a transcription job and returns its id.
	CreateJob(ctx context.Context, req JobRequest) (string, error)

	// GetJob returns the current provider-side job record.
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
}

// DefaultLanguageCode is used when a caller does not pick a language.
const DefaultLanguageCode = "en"

// DefaultPIIPolicies lists the entity types redacted from every call.
var DefaultPIIPolicies = []string{
	"person_name",
	"email_address",
	"phone_number",
	"credit_card_number",
	"date",
	"location",
	"us_social_security_number",
	"banking_information",
	"date_of_birth",
}

// Features selects the analyses run on a job.
type Features struct {
	SpeakerLabels     bool
	SentimentAnalysis bool
	Summarization     bool
	RedactPII         bool
	PIIPolicies       []string
	AutoHighlights    bool
	LanguageCode      string
}

// DefaultFeatures enables every analysis.
func DefaultFeatures() Features {
	return Features{
		SpeakerLabels:     true,
		SentimentAnalysis: true,
		Summarization:     true,
		RedactPII:         true,
		PIIPolicies:       append([]string(nil), DefaultPIIPolicies...),
		AutoHighlights:    true,
		LanguageCode:      DefaultLanguageCode,
	}
}

// JobRequest is the job creation payload.
type JobRequest struct {
	AudioURL          string   `json:"audio_url"`
	SpeakerLabels     bool     `json:"speaker_labels"`
	SentimentAnalysis bool     `json:"sentiment_analysis"`
	Summarization     bool     `json:"summarization"`
	SummaryModel      string   `json:"summary_model,omitempty"`
	SummaryType       string   `json:"summary_type,omitempty"`
	RedactPII         bool     `json:"redact_pii"`
	RedactPIIPolicies []string `json:"redact_pii_policies,omitempty"`
	AutoHighlights    bool     `json:"auto_highlights"`
	LanguageCode      string   `json:"language_code"`
}

// NewJobRequest builds the fixed job request shape for the given audio
// reference. Missing language and policies fall back to the defaults.
func NewJobRequest(audioURL string, f Features) JobRequest {
	req := JobRequest{
		AudioURL:          audioURL,
		SpeakerLabels:     f.SpeakerLabels,
		SentimentAnalysis: f.SentimentAnalysis,
		Summarization:     f.Summarization,
		RedactPII:         f.RedactPII,
		AutoHighlights:    f.AutoHighlights,
		LanguageCode:      f.LanguageCode,
	}
	if req.LanguageCode == "" {
		req.LanguageCode = DefaultLanguageCode
	}
	if req.Summarization {
		req.SummaryModel = "informative"
		req.SummaryType = "bullets"
	}
	if req.RedactPII {
		req.RedactPIIPolicies = f.PIIPolicies
		if len(req.RedactPIIPolicies) == 0 {
			req.RedactPIIPolicies = append([]string(nil), DefaultPIIPolicies...)
		}
	}
	return req
}
