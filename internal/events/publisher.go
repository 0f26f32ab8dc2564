// Package events publishes transcription progress and results to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/HienH/sale-smell/internal/models"
	"github.com/HienH/sale-smell/internal/observability/metrics"
)

// Default topic names.
const (
	DefaultTopicProgress = "transcription.progress"
	DefaultTopicResult   = "transcription.result"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes run events to separate Kafka topics.
type Publisher struct {
	writerProgress messageWriter
	writerResult   messageWriter
	principal      string
	topicProgress  string
	topicResult    string
	enabled        bool
	metrics        *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers       []string
	TopicProgress string
	TopicResult   string
	Principal     string
	Enabled       bool
}

// New creates a Kafka event publisher with separate topics for progress
// and results. A nil or disabled config yields a log-only publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			topicProgress: DefaultTopicProgress,
			topicResult:   DefaultTopicResult,
			enabled:       false,
			metrics:       m,
		}
	}

	topicProgress := cfg.TopicProgress
	if topicProgress == "" {
		topicProgress = DefaultTopicProgress
	}
	topicResult := cfg.TopicResult
	if topicResult == "" {
		topicResult = DefaultTopicResult
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:     cfg.Principal,
			topicProgress: topicProgress,
			topicResult:   topicResult,
			enabled:       false,
			metrics:       m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicProgress", topicProgress).
		Str("topicResult", topicResult).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerProgress: newWriter(cfg.Brokers, topicProgress, transport),
		writerResult:   newWriter(cfg.Brokers, topicResult, transport),
		principal:      cfg.Principal,
		topicProgress:  topicProgress,
		topicResult:    topicResult,
		enabled:        true,
		metrics:        m,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // same run id, same partition
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishProgress publishes a progress event keyed by run ID.
func (p *Publisher) PublishProgress(ctx context.Context, ev models.ProgressEvent) error {
	return p.publish(ctx, p.writerProgress, p.topicProgress, ev.EventType, ev.RunID, ev)
}

// PublishResult publishes a terminal event keyed by run ID.
func (p *Publisher) PublishResult(ctx context.Context, ev models.ResultEvent) error {
	return p.publish(ctx, p.writerResult, p.topicResult, ev.EventType, ev.RunID, ev)
}

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerProgress != nil {
		if e := p.writerProgress.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing progress writer")
			err = e
		}
	}
	if p.writerResult != nil {
		if e := p.writerResult.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing result writer")
			err = e
		}
	}
	return err
}
