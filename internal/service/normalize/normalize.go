// Package normalize converts provider job records into the stable
// TranscriptionResult schema. Every function here is pure.
package normalize

import (
	"math"
	"strings"

	"github.com/HienH/sale-smell/internal/models"
	"github.com/HienH/sale-smell/internal/service/provider"
)

// speakerShape is one way a provider may report diarized turns.
type speakerShape struct {
	name    string
	extract func(r *provider.JobRecord) ([]provider.RawUtterance, bool)
}

// speakerShapes are checked in order; the first present shape wins.
var speakerShapes = []speakerShape{
	{
		name: "utterances",
		extract: func(r *provider.JobRecord) ([]provider.RawUtterance, bool) {
			return r.Utterances, r.Utterances != nil
		},
	},
	{
		name: "speaker_segments",
		extract: func(r *provider.JobRecord) ([]provider.RawUtterance, bool) {
			return r.SpeakerSegments, r.SpeakerSegments != nil
		},
	},
	{
		name: "speaker_labels.segments",
		extract: func(r *provider.JobRecord) ([]provider.RawUtterance, bool) {
			if r.SpeakerLabels == nil || r.SpeakerLabels.Segments == nil {
				return nil, false
			}
			return r.SpeakerLabels.Segments, true
		},
	},
}

// Normalize builds a result snapshot from a provider job record.
func Normalize(r *provider.JobRecord) models.TranscriptionResult {
	result := models.TranscriptionResult{
		Speakers:       []models.SpeakerSegment{},
		PIIRedactions:  []models.Redaction{},
		AutoHighlights: []models.Highlight{},
	}
	if r == nil {
		result.Status = models.StatusError
		result.Error = "empty job record"
		return result
	}

	result.ID = r.ID
	result.Status = models.ParseStatus(r.Status)

	// Analysis fields of a failed job are not usable.
	if result.Status == models.StatusError {
		result.Error = strings.TrimSpace(r.Error)
		if result.Error == "" {
			result.Error = "transcription failed"
		}
		return result
	}

	result.Text = r.Text
	result.Summary = r.Summary
	result.Speakers = speakers(r)
	result.Sentiment = sentiment(r.SentimentAnalysisResults)
	result.PIIRedactions = redactions(r.PIIRedactionResults)
	result.AutoHighlights = highlights(r.AutoHighlightsResult)
	return result
}

// SpeakerShape names the speaker shape Normalize would use, or "" when the
// record carries no speaker data.
func SpeakerShape(r *provider.JobRecord) string {
	if r == nil {
		return ""
	}
	for _, shape := range speakerShapes {
		if _, ok := shape.extract(r); ok {
			return shape.name
		}
	}
	return ""
}

// Progress maps a job status onto a fixed completion percentage.
func Progress(status models.JobStatus) int {
	switch status {
	case models.StatusQueued:
		return 10
	case models.StatusProcessing:
		return 50
	case models.StatusCompleted:
		return 100
	default:
		return 0
	}
}

// Overall derives the call sentiment from label counts. Only a strict
// majority of positive over negative (or the reverse) is decisive.
func Overall(scores models.SentimentScores) string {
	switch {
	case scores.Positive > scores.Negative:
		return models.SentimentPositive
	case scores.Negative > scores.Positive:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

func speakers(r *provider.JobRecord) []models.SpeakerSegment {
	out := []models.SpeakerSegment{}
	for _, shape := range speakerShapes {
		raw, ok := shape.extract(r)
		if !ok {
			continue
		}
		for _, u := range raw {
			start, end := span(u.Start, u.End)
			out = append(out, models.SpeakerSegment{
				Speaker:    u.Speaker,
				Text:       u.Text,
				Start:      start,
				End:        end,
				Confidence: u.Confidence,
			})
		}
		break
	}
	return out
}

func sentiment(raw []provider.RawSentiment) *models.SentimentAnalysis {
	if raw == nil {
		return nil
	}

	analysis := &models.SentimentAnalysis{
		Segments: make([]models.SentimentSegment, 0, len(raw)),
	}
	for _, s := range raw {
		start, end := span(s.Start, s.End)
		analysis.Segments = append(analysis.Segments, models.SentimentSegment{
			Text:       s.Text,
			Sentiment:  s.Sentiment,
			Confidence: s.Confidence,
			Start:      start,
			End:        end,
		})

		switch strings.ToLower(s.Sentiment) {
		case "positive":
			analysis.Scores.Positive++
		case "negative":
			analysis.Scores.Negative++
		case "neutral":
			analysis.Scores.Neutral++
		}
	}
	analysis.Overall = Overall(analysis.Scores)
	return analysis
}

func redactions(raw []provider.RawRedaction) []models.Redaction {
	out := make([]models.Redaction, 0, len(raw))
	for _, r := range raw {
		kind := r.EntityType
		if kind == "" {
			kind = r.Type
		}
		start, end := span(r.Start, r.End)
		out = append(out, models.Redaction{
			Text:       r.Text,
			Type:       kind,
			Confidence: r.Confidence,
			Start:      start,
			End:        end,
		})
	}
	return out
}

func highlights(raw *provider.RawHighlights) []models.Highlight {
	if raw == nil {
		return []models.Highlight{}
	}
	out := make([]models.Highlight, 0, len(raw.Results))
	for _, h := range raw.Results {
		timestamps := make([]models.Timestamp, 0, len(h.Timestamps))
		for _, ts := range h.Timestamps {
			start, end := span(ts.Start, ts.End)
			timestamps = append(timestamps, models.Timestamp{Start: start, End: end})
		}
		out = append(out, models.Highlight{
			Text:       h.Text,
			Count:      h.Count,
			Rank:       h.Rank,
			Timestamps: timestamps,
		})
	}
	return out
}

// span rounds millisecond offsets and keeps end >= start.
func span(start, end float64) (int64, int64) {
	s := int64(math.Round(start))
	e := int64(math.Round(end))
	if e < s {
		e = s
	}
	return s, e
}
