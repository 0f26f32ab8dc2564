package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JobRecord is the provider's job representation. Speaker data may arrive
// in any of three shapes; the normalizer decides which one to use.
type JobRecord struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Text    string `json:"text"`
	Error   string `json:"error"`
	Summary string `json:"summary"`

	Utterances      []RawUtterance `json:"utterances"`
	SpeakerSegments []RawUtterance `json:"speaker_segments"`
	SpeakerLabels   *SpeakerLabels `json:"speaker_labels"`

	SentimentAnalysisResults []RawSentiment `json:"sentiment_analysis_results"`
	PIIRedactionResults      []RawRedaction `json:"pii_redaction_results"`
	AutoHighlightsResult     *RawHighlights `json:"auto_highlights_result"`
}

// RawUtterance is a speaker turn. Times are milliseconds.
type RawUtterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// SpeakerLabels is either the request flag echoed back (true/false) or an
// object carrying nested segments.
type SpeakerLabels struct {
	Enabled  bool
	Segments []RawUtterance
}

// UnmarshalJSON accepts a boolean or an object with a segments array.
func (s *SpeakerLabels) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case 't', 'f':
		return json.Unmarshal(trimmed, &s.Enabled)
	case '{':
		var obj struct {
			Segments []RawUtterance `json:"segments"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		s.Enabled = true
		s.Segments = obj.Segments
		return nil
	default:
		return fmt.Errorf("speaker_labels: unexpected JSON %q", string(trimmed))
	}
}

// RawSentiment is one sentence-level sentiment result.
type RawSentiment struct {
	Text       string  `json:"text"`
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Speaker    string  `json:"speaker"`
}

// RawRedaction is one detected PII entity. Providers name the category
// either entity_type or type.
type RawRedaction struct {
	Text       string  `json:"text"`
	EntityType string  `json:"entity_type"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

// RawHighlights wraps the auto-highlight results.
type RawHighlights struct {
	Status  string         `json:"status"`
	Results []RawHighlight `json:"results"`
}

// RawHighlight is one ranked key phrase.
type RawHighlight struct {
	Text       string         `json:"text"`
	Count      int            `json:"count"`
	Rank       float64        `json:"rank"`
	Timestamps []RawTimestamp `json:"timestamps"`
}

// RawTimestamp is a millisecond range.
type RawTimestamp struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
