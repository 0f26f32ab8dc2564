// Package models defines the normalized transcription schema and the events
// emitted while a transcription is in flight.
package models

import "strings"

// JobStatus is the provider-side status of a transcription job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// IsTerminal returns true for completed and error.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ParseStatus maps a provider status string onto JobStatus. Unknown values
// are treated as still processing.
func ParseStatus(s string) JobStatus {
	switch JobStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusQueued:
		return StatusQueued
	case StatusCompleted:
		return StatusCompleted
	case StatusError:
		return StatusError
	default:
		return StatusProcessing
	}
}

// Sentiment labels used for the overall call sentiment.
const (
	SentimentPositive = "POSITIVE"
	SentimentNegative = "NEGATIVE"
	SentimentNeutral  = "NEUTRAL"
)

// TranscriptionResult is a point-in-time snapshot of a job. It is rebuilt on
// every fetch and never mutated afterwards.
type TranscriptionResult struct {
	ID             string             `json:"id"`
	Status         JobStatus          `json:"status"`
	Text           string             `json:"text,omitempty"`
	Speakers       []SpeakerSegment   `json:"speakers"`
	Sentiment      *SentimentAnalysis `json:"sentiment"`
	Summary        string             `json:"summary,omitempty"`
	PIIRedactions  []Redaction        `json:"piiRedactions"`
	AutoHighlights []Highlight        `json:"autoHighlights"`
	Error          string             `json:"error,omitempty"`
}

// SpeakerSegment is one diarized turn. Start and End are milliseconds from
// the start of the call.
type SpeakerSegment struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
}

// SentimentAnalysis aggregates per-sentence sentiment. Overall is derived
// from Scores.
type SentimentAnalysis struct {
	Overall  string             `json:"overall"`
	Scores   SentimentScores    `json:"scores"`
	Segments []SentimentSegment `json:"segments"`
}

// SentimentScores counts segments per label.
type SentimentScores struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// SentimentSegment is a sentence-level sentiment classification.
type SentimentSegment struct {
	Text       string  `json:"text"`
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
}

// Redaction is a detected PII entity.
type Redaction struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
}

// Highlight is a provider-ranked key phrase.
type Highlight struct {
	Text       string      `json:"text"`
	Count      int         `json:"count"`
	Rank       float64     `json:"rank"`
	Timestamps []Timestamp `json:"timestamps"`
}

// Timestamp is a millisecond range.
type Timestamp struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}
