package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/HienH/sale-smell/internal/observability/logging"
	"github.com/HienH/sale-smell/internal/observability/metrics"
	"github.com/HienH/sale-smell/internal/validation"
)

// MaxRetries bounds Config.MaxRetries.
const MaxRetries = 10

// maxBackoff caps a single backoff delay.
const maxBackoff = 5 * time.Minute

// Config tunes the retry policy of a Client.
type Config struct {
	MaxRetries     int           // total attempts per call
	RetryDelay     time.Duration // base delay, doubled after every failure
	MaxUploadBytes int64
}

// DefaultConfig returns the default retry policy: 3 attempts, 1s base delay.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		RetryDelay:     time.Second,
		MaxUploadBytes: validation.MaxFileSize,
	}
}

// Client wraps an API with validation, retry with exponential backoff and
// error classification. It holds no per-job state and is safe for
// concurrent use.
type Client struct {
	api       API
	cfg       Config
	validator *validation.Validator
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewClient creates a provider client. It fails when api is nil or the
// retry policy is invalid.
func NewClient(api API, cfg Config) (*Client, error) {
	if api == nil {
		return nil, errors.New("provider API cannot be nil")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries cannot be negative: %d", cfg.MaxRetries)
	}
	if cfg.MaxRetries > MaxRetries {
		return nil, fmt.Errorf("max retries cannot exceed %d: %d", MaxRetries, cfg.MaxRetries)
	}
	if cfg.RetryDelay < 0 {
		return nil, fmt.Errorf("retry delay cannot be negative: %v", cfg.RetryDelay)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	return &Client{
		api:       api,
		cfg:       cfg,
		validator: validation.NewWithLimit(cfg.MaxUploadBytes),
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithProvider(api.Name()),
		sleep:     sleepContext,
	}, nil
}

// Name returns the wrapped provider's name.
func (c *Client) Name() string {
	return c.api.Name()
}

// Upload validates and uploads the audio. Uploads are not retried.
func (c *Client) Upload(ctx context.Context, audio *validation.Audio) (string, error) {
	if err := c.validator.Validate(audio); err != nil {
		c.metrics.RecordValidationFailure("provider")
		return "", err
	}

	start := time.Now()
	ref, err := c.api.Upload(ctx, audio)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("upload audio: %w", ctxErr)
		}
		classified := Classify("", err)
		c.metrics.RecordProviderCall("upload", KindLabel(classified), time.Since(start).Seconds())
		c.logger.Error().Err(classified).Int64("bytes", audio.Size()).Msg("Audio upload failed")
		return "", &Error{Kind: ErrUpload, Op: "upload audio", Err: classified}
	}

	c.metrics.RecordProviderCall("upload", "", time.Since(start).Seconds())
	c.metrics.RecordUpload(len(audio.Data))
	c.logger.Debug().Int64("bytes", audio.Size()).Msg("Audio uploaded")
	return ref, nil
}

// SubmitJob creates a transcription job for an uploaded audio reference.
func (c *Client) SubmitJob(ctx context.Context, audioRef string, features Features) (string, error) {
	req := NewJobRequest(audioRef, features)

	var jobID string
	err := c.withRetry(ctx, "submit", "submit job", func(ctx context.Context) error {
		id, err := c.api.CreateJob(ctx, req)
		if err != nil {
			return err
		}
		if id == "" {
			return errors.New("provider returned an empty job id")
		}
		jobID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// FetchJob returns the current provider-side record of a job.
func (c *Client) FetchJob(ctx context.Context, jobID string) (*JobRecord, error) {
	var record *JobRecord
	err := c.withRetry(ctx, "fetch", "fetch job "+jobID, func(ctx context.Context) error {
		r, err := c.api.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if r == nil {
			return errors.New("provider returned an empty job record")
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// withRetry runs fn up to MaxRetries times. Failed attempt n waits
// RetryDelay * 2^(n-1) before the next one.
func (c *Client) withRetry(ctx context.Context, metric, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		attempts = attempt
		start := time.Now()
		err := fn(ctx)
		if err == nil {
			c.metrics.RecordProviderCall(metric, "", time.Since(start).Seconds())
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}

		lastErr = Classify(op, err)
		c.metrics.RecordProviderCall(metric, KindLabel(lastErr), time.Since(start).Seconds())

		if !Retryable(lastErr) {
			c.logger.Error().Err(lastErr).Str("operation", op).Int("attempt", attempt).Msg("Provider call failed, not retrying")
			return lastErr
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		delay := backoff(c.cfg.RetryDelay, attempt)
		c.logger.Warn().
			Err(lastErr).
			Str("operation", op).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Provider call failed, retrying")
		c.metrics.RecordProviderRetry(metric)

		if err := c.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

// backoff returns base * 2^(attempt-1), capped at maxBackoff.
func backoff(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= maxBackoff/2 {
			return maxBackoff
		}
		delay *= 2
	}
	return min(delay, maxBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
