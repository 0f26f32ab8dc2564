package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/HienH/sale-smell/internal/models"
)

// Formatter renders results for a terminal.
type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) Progress(percent int, message string) {
	fmt.Fprintf(f.w, "[%3d%%] %s\n", percent, message)
}

func (f *Formatter) Status(id string, status models.JobStatus, percent int) {
	fmt.Fprintf(f.w, "Job %s: %s (%d%%)\n", id, status, percent)
}

func (f *Formatter) Event(runID, msg string) {
	fmt.Fprintf(f.w, "%s  %s\n", runID, msg)
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "Error: %s\n", msg)
}

func (f *Formatter) JSON(v any) error {
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Result prints a human-readable summary of a completed transcript.
func (f *Formatter) Result(r *models.TranscriptionResult) {
	fmt.Fprintf(f.w, "\nTranscript %s\n", r.ID)

	if r.Summary != "" {
		fmt.Fprintf(f.w, "\nSummary:\n%s\n", strings.TrimSpace(r.Summary))
	}

	if r.Sentiment != nil {
		s := r.Sentiment.Scores
		fmt.Fprintf(f.w, "\nSentiment: %s (positive %d, negative %d, neutral %d)\n",
			r.Sentiment.Overall, s.Positive, s.Negative, s.Neutral)
	}

	if len(r.Speakers) > 0 {
		fmt.Fprintf(f.w, "\nSpeakers:\n")
		for _, seg := range r.Speakers {
			fmt.Fprintf(f.w, "  %s %s: %s\n", formatOffset(seg.Start), seg.Speaker, seg.Text)
		}
	} else if r.Text != "" {
		fmt.Fprintf(f.w, "\nText:\n%s\n", r.Text)
	}

	if len(r.AutoHighlights) > 0 {
		phrases := make([]string, 0, len(r.AutoHighlights))
		for _, h := range r.AutoHighlights {
			phrases = append(phrases, h.Text)
		}
		fmt.Fprintf(f.w, "\nHighlights: %s\n", strings.Join(phrases, ", "))
	}

	if len(r.PIIRedactions) > 0 {
		fmt.Fprintf(f.w, "\nRedacted entities: %d\n", len(r.PIIRedactions))
	}
}

func formatOffset(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("[%02d:%02d]", m, s)
}
