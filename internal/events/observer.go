package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/HienH/sale-smell/internal/models"
)

const (
	// publishTimeout bounds a single queued publish.
	publishTimeout = 5 * time.Second
	// queueSize is the backlog of events waiting for the broker.
	queueSize = 256
	// drainTimeout bounds how long Close waits for queued events.
	drainTimeout = 5 * time.Second
)

// ErrQueueFull is recorded when an event is dropped because the broker is
// not keeping up.
var ErrQueueFull = errors.New("event queue full")

// Observer forwards run events to a Publisher from its own goroutine, so a
// slow broker never holds up a run. Events keep their order. When the queue
// is full new events are dropped and logged. Publish failures never fail
// the run.
type Observer struct {
	publisher *Publisher
	queue     chan func(ctx context.Context)
	drain     time.Duration

	ctx  context.Context
	stop context.CancelFunc
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewObserver creates an observer publishing through p. Call Close before
// closing p.
func NewObserver(p *Publisher) *Observer {
	return newObserver(p, queueSize, drainTimeout)
}

func newObserver(p *Publisher, size int, drain time.Duration) *Observer {
	ctx, stop := context.WithCancel(context.Background())
	o := &Observer{
		publisher: p,
		queue:     make(chan func(ctx context.Context), size),
		drain:     drain,
		ctx:       ctx,
		stop:      stop,
		done:      make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *Observer) loop() {
	defer close(o.done)
	for publish := range o.queue {
		ctx, cancel := context.WithTimeout(o.ctx, publishTimeout)
		publish(ctx)
		cancel()
	}
}

func (o *Observer) OnProgress(ev models.ProgressEvent) {
	o.enqueue(o.publisher.topicProgress, ev.EventType, ev.RunID, func(ctx context.Context) {
		if err := o.publisher.PublishProgress(ctx, ev); err != nil {
			log.Warn().Err(err).Str("runId", ev.RunID).Msg("Progress event not published")
		}
	})
}

func (o *Observer) OnComplete(ev models.ResultEvent) {
	o.result(ev)
}

func (o *Observer) OnError(ev models.ResultEvent) {
	o.result(ev)
}

func (o *Observer) result(ev models.ResultEvent) {
	o.enqueue(o.publisher.topicResult, ev.EventType, ev.RunID, func(ctx context.Context) {
		if err := o.publisher.PublishResult(ctx, ev); err != nil {
			log.Warn().Err(err).Str("runId", ev.RunID).Str("outcome", ev.Outcome).Msg("Result event not published")
		}
	})
}

func (o *Observer) enqueue(topic, eventType, runID string, publish func(ctx context.Context)) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.queue <- publish:
	default:
		o.publisher.metrics.RecordKafkaPublish(topic, eventType, ErrQueueFull, 0)
		log.Warn().Str("runId", runID).Str("topic", topic).Msg("Event dropped, queue full")
	}
}

// Close stops accepting events and waits for queued ones to be published.
// Publishes still pending after the drain timeout are abandoned.
func (o *Observer) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		<-o.done
		return nil
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	timer := time.NewTimer(o.drain)
	defer timer.Stop()
	select {
	case <-o.done:
	case <-timer.C:
		log.Warn().Int("pending", len(o.queue)).Msg("Abandoning unpublished events")
		o.stop()
		<-o.done
	}
	o.stop()
	return nil
}
