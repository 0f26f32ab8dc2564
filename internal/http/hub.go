package http

import (
	"sync"
	"time"

	"github.com/HienH/sale-smell/internal/models"
	"github.com/HienH/sale-smell/internal/service/transcription"
)

// Event types sent to progress subscribers.
const (
	EventTypeProgress  = "progress"
	EventTypeComplete  = "complete"
	EventTypeError     = "error"
	EventTypeCancelled = "cancelled"
)

// subscriberBuffer is the per-subscriber backlog before old progress
// events are dropped.
const subscriberBuffer = 32

// Event is one message on the progress stream.
type Event struct {
	Type     string                      `json:"type"`
	Progress int                         `json:"progress"`
	Message  string                      `json:"message"`
	Result   *models.TranscriptionResult `json:"result,omitempty"`
}

func (e Event) terminal() bool {
	switch e.Type {
	case EventTypeComplete, EventTypeError, EventTypeCancelled:
		return true
	}
	return false
}

// Stream fans the events of one transcription out to subscribers. Late
// subscribers receive the latest event first.
type Stream struct {
	mu     sync.Mutex
	latest *Event
	subs   map[chan Event]struct{}
	closed bool
}

func newStream() *Stream {
	return &Stream{subs: make(map[chan Event]struct{})}
}

// Callbacks returns transcription callbacks that feed the stream.
func (s *Stream) Callbacks() transcription.Callbacks {
	return transcription.Callbacks{
		OnProgress: func(progress int, message string) {
			s.Publish(Event{Type: EventTypeProgress, Progress: progress, Message: message})
		},
		OnComplete: func(result *models.TranscriptionResult) {
			s.Publish(Event{Type: EventTypeComplete, Progress: 100, Message: "Transcription complete", Result: result})
		},
		OnError: func(message string) {
			s.mu.Lock()
			progress := 0
			if s.latest != nil {
				progress = s.latest.Progress
			}
			s.mu.Unlock()
			s.Publish(Event{Type: EventTypeError, Progress: progress, Message: message})
		},
	}
}

// Publish delivers ev to every subscriber. A terminal event closes the
// stream.
func (s *Stream) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.latest = &ev
	for ch := range s.subs {
		deliver(ch, ev)
	}
	if ev.terminal() {
		s.closed = true
		for ch := range s.subs {
			close(ch)
		}
		s.subs = nil
	}
}

// Subscribe returns a channel of events, starting with the latest one.
// The channel is closed after a terminal event. Call cancel to stop
// receiving.
func (s *Stream) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if s.latest != nil {
		ch <- *s.latest
	}
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	s.subs[ch] = struct{}{}
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

// Latest returns the most recent event.
func (s *Stream) Latest() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Event{}, false
	}
	return *s.latest, true
}

// deliver drops the oldest queued event when a subscriber lags.
func deliver(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Hub tracks streams by job ID. Finished streams are kept for retention so
// late subscribers still see the outcome.
type Hub struct {
	mu        sync.Mutex
	streams   map[string]*Stream
	retention time.Duration
}

// NewHub creates a hub keeping finished streams for retention.
func NewHub(retention time.Duration) *Hub {
	return &Hub{
		streams:   make(map[string]*Stream),
		retention: retention,
	}
}

// Open creates a stream not yet bound to a job ID.
func (h *Hub) Open() *Stream {
	return newStream()
}

// Register binds a stream to a job ID.
func (h *Hub) Register(id string, s *Stream) {
	h.mu.Lock()
	h.streams[id] = s
	h.mu.Unlock()
}

// Get returns the stream for a job ID.
func (h *Hub) Get(id string) (*Stream, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[id]
	return s, ok
}

// Expire removes the stream for id after the retention period.
func (h *Hub) Expire(id string, s *Stream) {
	time.AfterFunc(h.retention, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.streams[id] == s {
			delete(h.streams, id)
		}
	})
}

// Len returns the number of tracked streams.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}
