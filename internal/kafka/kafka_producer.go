package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"opsmon/internal/config"
	"opsmon/internal/logger"
	"opsmon/internal/metrics"
	"opsmon/internal/models"
)

var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize envelope")
)

// MessageWriter is the part of *kafka.Writer the producer depends on
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes monitor entries to a Kafka topic. Envelopes are keyed
// by host, so one host's transitions land in one partition in order.
type Producer struct {
	cfg     config.ProducerConfig
	brokers []string
	topic   string
	host    string

	// mu serializes writes; the evaluator emits one entry at a time anyway
	mu     sync.Mutex
	writer MessageWriter
	closed atomic.Bool

	sent   atomic.Uint64
	failed atomic.Uint64
	bytes  atomic.Uint64
}

type ProducerOption func(*Producer)

// WithWriter replaces the broker connection
func WithWriter(w MessageWriter) ProducerOption {
	return func(p *Producer) { p.writer = w }
}

// WithHost sets the host stamped on every envelope and used as message key
func WithHost(host string) ProducerOption {
	return func(p *Producer) { p.host = host }
}

func NewProducer(brokers []string, topic string, cfg config.ProducerConfig, opts ...ProducerOption) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	p := &Producer{cfg: cfg, brokers: brokers, topic: topic}
	for _, opt := range opts {
		opt(p)
	}

	if p.writer == nil {
		p.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    1,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  getCompression(cfg.Compression),
			// retried here so attempts show up in metrics
			MaxAttempts: 1,
		}
	}
	return p, nil
}

func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

func (p *Producer) Name() string { return "kafka" }

// Emit wraps entry in an envelope and publishes it
func (p *Producer) Emit(ctx context.Context, entry models.Entry) error {
	return p.Publish(ctx, models.NewEnvelope(entry, p.host))
}

// Publish writes one envelope, retrying broker errors up to MaxRetries times
func (p *Producer) Publish(ctx context.Context, env *models.Envelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		p.recordFailure()
		return fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	msg := kafka.Message{
		Key:   []byte(env.PartitionKey),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(env.ID)},
			{Key: "host", Value: []byte(env.Host)},
			{Key: "metric", Value: []byte(env.Kind())},
		},
		Time: env.EmittedAt,
	}

	p.mu.Lock()
	start := time.Now()
	err = p.write(ctx, msg)
	metrics.KafkaPublishDuration.Observe(time.Since(start).Seconds())
	p.mu.Unlock()

	if err != nil {
		p.recordFailure()
		return err
	}

	p.sent.Add(1)
	p.bytes.Add(uint64(len(data)))
	metrics.KafkaPublishTotal.WithLabelValues("success").Inc()
	metrics.KafkaBytesWritten.Add(float64(len(data)))
	return nil
}

func (p *Producer) recordFailure() {
	p.failed.Add(1)
	metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
}

func (p *Producer) write(ctx context.Context, msg kafka.Message) error {
	log := logger.WithComponent("kafka_producer")

	b := backoff.NewExponentialBackOff()
	if p.cfg.RetryBackoff > 0 {
		b.InitialInterval = p.cfg.RetryBackoff
	}
	b.Reset()

	attempts := p.cfg.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = p.writer.WriteMessages(ctx, msg); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := b.NextBackOff()
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("kafka publish failed, retrying")
		metrics.KafkaPublishRetries.Inc()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	log.Error().Err(err).Int("attempts", attempts).Msg("kafka publish failed")
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}

// Close flushes and closes the writer. It is safe to call more than once.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Close()
}

func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.sent.Load(),
		MessagesFailed: p.failed.Load(),
		BytesWritten:   p.bytes.Load(),
	}
}

type ProducerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}

// HealthCheck dials the brokers until one accepts a connection
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	var lastErr error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}
