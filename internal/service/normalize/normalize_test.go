package normalize

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/HienH/sale-smell/internal/models"
	"github.com/HienH/sale-smell/internal/service/provider"
)

func decodeRecord(t *testing.T, raw string) *provider.JobRecord {
	t.Helper()
	var r provider.JobRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	return &r
}

func TestNormalize_Completed(t *testing.T) {
	r := decodeRecord(t, `{
		"id": "tx-1",
		"status": "completed",
		"text": "Hi there. Too expensive.",
		"summary": "- pricing objection",
		"speaker_labels": true,
		"utterances": [
			{"speaker": "A", "text": "Hi there.", "start": 0.4, "end": 1200.6, "confidence": 0.93},
			{"speaker": "B", "text": "Too expensive.", "start": 1300, "end": 2100, "confidence": 0.88}
		],
		"sentiment_analysis_results": [
			{"text": "Hi there.", "sentiment": "POSITIVE", "confidence": 0.9, "start": 0, "end": 1200},
			{"text": "Too expensive.", "sentiment": "NEGATIVE", "confidence": 0.8, "start": 1300, "end": 2100}
		],
		"pii_redaction_results": [
			{"text": "Dana", "entity_type": "person_name", "confidence": 0.97, "start": 10, "end": 20}
		],
		"auto_highlights_result": {
			"status": "success",
			"results": [{"text": "too expensive", "count": 1, "rank": 0.08, "timestamps": [{"start": 1300, "end": 2100}]}]
		}
	}`)

	got := Normalize(r)

	if got.ID != "tx-1" || got.Status != models.StatusCompleted {
		t.Errorf("unexpected id/status %s/%s", got.ID, got.Status)
	}
	if got.Summary != "- pricing objection" {
		t.Errorf("unexpected summary %q", got.Summary)
	}
	if len(got.Speakers) != 2 {
		t.Fatalf("expected 2 speakers, got %d", len(got.Speakers))
	}
	if got.Speakers[0].Start != 0 || got.Speakers[0].End != 1201 {
		t.Errorf("expected rounded offsets, got %d-%d", got.Speakers[0].Start, got.Speakers[0].End)
	}
	if got.Sentiment == nil || got.Sentiment.Overall != models.SentimentNeutral {
		t.Errorf("expected NEUTRAL for a 1/1 tie, got %+v", got.Sentiment)
	}
	if len(got.PIIRedactions) != 1 || got.PIIRedactions[0].Type != "person_name" {
		t.Errorf("unexpected redactions %+v", got.PIIRedactions)
	}
	if len(got.AutoHighlights) != 1 || got.AutoHighlights[0].Timestamps[0].End != 2100 {
		t.Errorf("unexpected highlights %+v", got.AutoHighlights)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	r := decodeRecord(t, `{"id":"tx-2","status":"completed","text":"hello","speaker_segments":[{"speaker":"A","text":"hello","start":0,"end":500}]}`)

	first := Normalize(r)
	second := Normalize(r)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical snapshots:\n%+v\n%+v", first, second)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	got := Normalize(&provider.JobRecord{ID: "tx-3", Status: "processing"})

	if got.Speakers == nil || len(got.Speakers) != 0 {
		t.Errorf("expected empty speakers, got %v", got.Speakers)
	}
	if got.Sentiment != nil {
		t.Errorf("expected nil sentiment, got %+v", got.Sentiment)
	}
	if got.PIIRedactions == nil || got.AutoHighlights == nil {
		t.Error("expected empty, non-nil redactions and highlights")
	}

	data, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	if m["sentiment"] != nil {
		t.Errorf("expected sentiment null, got %v", m["sentiment"])
	}
	if speakers, ok := m["speakers"].([]any); !ok || len(speakers) != 0 {
		t.Errorf("expected speakers [], got %v", m["speakers"])
	}
}

func TestNormalize_Error(t *testing.T) {
	tests := []struct {
		name    string
		record  *provider.JobRecord
		wantMsg string
	}{
		{"nil record", nil, "empty job record"},
		{"provider message", &provider.JobRecord{Status: "error", Error: " audio too short ", Text: "partial"}, "audio too short"},
		{"no message", &provider.JobRecord{Status: "error"}, "transcription failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.record)
			if got.Status != models.StatusError {
				t.Errorf("expected error status, got %s", got.Status)
			}
			if got.Error != tt.wantMsg {
				t.Errorf("Error = %q, want %q", got.Error, tt.wantMsg)
			}
			if got.Text != "" {
				t.Errorf("expected analysis fields cleared, got text %q", got.Text)
			}
		})
	}
}

func TestSpeakerShape_Priority(t *testing.T) {
	seg := []provider.RawUtterance{{Speaker: "A", Text: "x"}}
	tests := []struct {
		name   string
		record *provider.JobRecord
		want   string
	}{
		{"utterances first", &provider.JobRecord{
			Utterances:      seg,
			SpeakerSegments: seg,
			SpeakerLabels:   &provider.SpeakerLabels{Enabled: true, Segments: seg},
		}, "utterances"},
		{"speaker segments", &provider.JobRecord{
			SpeakerSegments: seg,
			SpeakerLabels:   &provider.SpeakerLabels{Enabled: true, Segments: seg},
		}, "speaker_segments"},
		{"nested segments", &provider.JobRecord{
			SpeakerLabels: &provider.SpeakerLabels{Enabled: true, Segments: seg},
		}, "speaker_labels.segments"},
		{"flag only", &provider.JobRecord{SpeakerLabels: &provider.SpeakerLabels{Enabled: true}}, ""},
		{"empty utterances still win", &provider.JobRecord{
			Utterances:      []provider.RawUtterance{},
			SpeakerSegments: seg,
		}, "utterances"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpeakerShape(tt.record); got != tt.want {
				t.Errorf("SpeakerShape() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOverall(t *testing.T) {
	tests := []struct {
		name   string
		scores models.SentimentScores
		want   string
	}{
		{"tie", models.SentimentScores{Positive: 2, Negative: 2}, models.SentimentNeutral},
		{"positive majority", models.SentimentScores{Positive: 3, Negative: 1}, models.SentimentPositive},
		{"negative majority", models.SentimentScores{Positive: 1, Negative: 4, Neutral: 9}, models.SentimentNegative},
		{"empty", models.SentimentScores{}, models.SentimentNeutral},
		{"only neutral", models.SentimentScores{Neutral: 5}, models.SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overall(tt.scores); got != tt.want {
				t.Errorf("Overall() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSentiment_CountsLabels(t *testing.T) {
	got := sentiment([]provider.RawSentiment{
		{Sentiment: "POSITIVE"},
		{Sentiment: "positive"},
		{Sentiment: "NEUTRAL"},
		{Sentiment: "NEGATIVE"},
		{Sentiment: "MIXED"},
	})

	want := models.SentimentScores{Positive: 2, Negative: 1, Neutral: 1}
	if got.Scores != want {
		t.Errorf("Scores = %+v, want %+v", got.Scores, want)
	}
	if len(got.Segments) != 5 {
		t.Errorf("expected every segment kept, got %d", len(got.Segments))
	}
	if got.Overall != models.SentimentPositive {
		t.Errorf("expected POSITIVE, got %s", got.Overall)
	}
}

func TestRedactions_TypeFallback(t *testing.T) {
	got := redactions([]provider.RawRedaction{{Text: "555", Type: "phone_number"}})
	if got[0].Type != "phone_number" {
		t.Errorf("expected type fallback, got %q", got[0].Type)
	}
}

func TestSpan(t *testing.T) {
	tests := []struct {
		start, end float64
		wantS      int64
		wantE      int64
	}{
		{0, 100, 0, 100},
		{10.4, 20.6, 10, 21},
		{500, 100, 500, 500},
	}
	for _, tt := range tests {
		s, e := span(tt.start, tt.end)
		if s != tt.wantS || e != tt.wantE {
			t.Errorf("span(%v, %v) = %d, %d; want %d, %d", tt.start, tt.end, s, e, tt.wantS, tt.wantE)
		}
	}
}

func TestProgress(t *testing.T) {
	tests := map[models.JobStatus]int{
		models.StatusQueued:     10,
		models.StatusProcessing: 50,
		models.StatusCompleted:  100,
		models.StatusError:      0,
	}
	for status, want := range tests {
		if got := Progress(status); got != want {
			t.Errorf("Progress(%s) = %d, want %d", status, got, want)
		}
	}
}
