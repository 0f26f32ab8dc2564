package mock

import (
	"strings"

	"github.com/HienH/sale-smell/internal/service/provider"
)

// SimulatedCall is a canned sales call returned once a job completes.
type SimulatedCall struct {
	Turns      []provider.RawUtterance
	Sentiments []string // one label per turn
	Summary    string
	Redactions []provider.RawRedaction
	Highlights []provider.RawHighlight
}

// DefaultCalls provides sample calls for simulation.
var DefaultCalls = []SimulatedCall{
	{
		Turns: []provider.RawUtterance{
			{Speaker: "A", Text: "Hi, this is Dana from Brightline, thanks for taking the call.", Start: 0, End: 3200, Confidence: 0.95},
			{Speaker: "B", Text: "Sure. We have been looking at options for our support team.", Start: 3400, End: 6900, Confidence: 0.92},
			{Speaker: "A", Text: "Great. Our plan includes call analytics and you can try it free for thirty days.", Start: 7100, End: 11800, Confidence: 0.94},
			{Speaker: "B", Text: "Pricing is my main concern, the last vendor was far too expensive.", Start: 12000, End: 15600, Confidence: 0.9},
		},
		Sentiments: []string{"POSITIVE", "NEUTRAL", "POSITIVE", "NEGATIVE"},
		Summary:    "- Prospect evaluating support tooling\n- Free thirty day trial offered\n- Pricing raised as the main objection",
		Redactions: []provider.RawRedaction{
			{Text: "Dana", EntityType: "person_name", Confidence: 0.97, Start: 1100, End: 1400},
		},
		Highlights: []provider.RawHighlight{
			{Text: "call analytics", Count: 1, Rank: 0.08, Timestamps: []provider.RawTimestamp{{Start: 8900, End: 9800}}},
			{Text: "free for thirty days", Count: 1, Rank: 0.06, Timestamps: []provider.RawTimestamp{{Start: 10100, End: 11700}}},
		},
	},
	{
		Turns: []provider.RawUtterance{
			{Speaker: "A", Text: "Thanks for getting back to me about the renewal.", Start: 0, End: 2600, Confidence: 0.96},
			{Speaker: "B", Text: "We are happy with the product and want to add ten seats.", Start: 2800, End: 6100, Confidence: 0.93},
			{Speaker: "A", Text: "Perfect, I will send the updated order form today.", Start: 6300, End: 9000, Confidence: 0.95},
		},
		Sentiments: []string{"NEUTRAL", "POSITIVE", "POSITIVE"},
		Summary:    "- Customer renewing\n- Expansion of ten seats\n- Order form to follow",
		Highlights: []provider.RawHighlight{
			{Text: "ten seats", Count: 1, Rank: 0.09, Timestamps: []provider.RawTimestamp{{Start: 5200, End: 5900}}},
		},
	},
}

// Record builds the completed job record for the call.
func (c SimulatedCall) Record() *provider.JobRecord {
	texts := make([]string, 0, len(c.Turns))
	sentiments := make([]provider.RawSentiment, 0, len(c.Turns))
	for i, turn := range c.Turns {
		texts = append(texts, turn.Text)
		if i < len(c.Sentiments) {
			sentiments = append(sentiments, provider.RawSentiment{
				Text:       turn.Text,
				Sentiment:  c.Sentiments[i],
				Confidence: turn.Confidence,
				Start:      turn.Start,
				End:        turn.End,
				Speaker:    turn.Speaker,
			})
		}
	}

	return &provider.JobRecord{
		Status:                   "completed",
		Text:                     strings.Join(texts, " "),
		Summary:                  c.Summary,
		Utterances:               append([]provider.RawUtterance{}, c.Turns...),
		SentimentAnalysisResults: sentiments,
		PIIRedactionResults:      append([]provider.RawRedaction{}, c.Redactions...),
		AutoHighlightsResult: &provider.RawHighlights{
			Status:  "success",
			Results: append([]provider.RawHighlight{}, c.Highlights...),
		},
	}
}
