package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/HienH/sale-smell/internal/models"
)

// DefaultLookback is how far back a consumer starts reading.
const DefaultLookback = time.Hour

// ErrNoBrokers is returned when a consumer is created without brokers.
var ErrNoBrokers = errors.New("kafka brokers are required")

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	SetOffsetAt(ctx context.Context, t time.Time) error
	Close() error
}

// Handlers receive decoded events. Either may be nil.
type Handlers struct {
	Progress func(ev models.ProgressEvent)
	Result   func(ev models.ResultEvent)
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers       []string
	TopicProgress string
	TopicResult   string
	Lookback      time.Duration
	// RunID limits delivery to one run. Empty means every run.
	RunID string
}

// Consumer tails the progress and result topics.
type Consumer struct {
	progress messageReader
	result   messageReader
	lookback time.Duration
	runID    string
	retry    time.Duration
	mu       sync.Mutex
}

// NewConsumer creates a consumer reading partition 0 of both topics.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	topicProgress := cfg.TopicProgress
	if topicProgress == "" {
		topicProgress = DefaultTopicProgress
	}
	topicResult := cfg.TopicResult
	if topicResult == "" {
		topicResult = DefaultTopicResult
	}
	return newConsumer(newReader(cfg.Brokers, topicProgress), newReader(cfg.Brokers, topicResult), cfg), nil
}

func newConsumer(progress, result messageReader, cfg ConsumerConfig) *Consumer {
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Consumer{
		progress: progress,
		result:   result,
		lookback: lookback,
		runID:    cfg.RunID,
		retry:    time.Second,
	}
}

// Partition reader without a consumer group, so tailing never commits
// offsets on behalf of real consumers.
func newReader(brokers []string, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
}

// Run reads both topics until ctx is done. Handlers are called one at a
// time.
func (c *Consumer) Run(ctx context.Context, h Handlers) error {
	since := time.Now().Add(-c.lookback)
	for _, r := range []messageReader{c.progress, c.result} {
		if err := r.SetOffsetAt(ctx, since); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.consume(ctx, c.progress, func(value []byte) error {
			var ev models.ProgressEvent
			if err := json.Unmarshal(value, &ev); err != nil {
				return err
			}
			if h.Progress != nil {
				h.Progress(ev)
			}
			return nil
		})
	}()
	go func() {
		defer wg.Done()
		c.consume(ctx, c.result, func(value []byte) error {
			var ev models.ResultEvent
			if err := json.Unmarshal(value, &ev); err != nil {
				return err
			}
			if h.Result != nil {
				h.Result(ev)
			}
			return nil
		})
	}()
	wg.Wait()
	return nil
}

func (c *Consumer) consume(ctx context.Context, r messageReader, deliver func(value []byte) error) {
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retry):
			}
			continue
		}

		if c.runID != "" && string(msg.Key) != c.runID {
			continue
		}

		c.mu.Lock()
		err = deliver(msg.Value)
		c.mu.Unlock()
		if err != nil {
			log.Warn().Err(err).
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Msg("Skipping undecodable event")
		}
	}
}

// Close closes both readers.
func (c *Consumer) Close() error {
	return errors.Join(c.progress.Close(), c.result.Close())
}
