package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsmon/internal/config"
	"opsmon/internal/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	err      error
	messages []kafka.Message
	calls    int
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testProducerConfig() config.ProducerConfig {
	return config.ProducerConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}
}

func warningEntry() models.Entry {
	ev := models.NewEvent(models.Reading{Kind: models.Memory, Value: 90, Timestamp: time.Now()}, models.Warning, 75)
	return models.TransitionEntry(ev)
}

func TestNewProducerValidation(t *testing.T) {
	_, err := NewProducer(nil, "topic", testProducerConfig())
	assert.Error(t, err)

	_, err = NewProducer([]string{"localhost:9092"}, "", testProducerConfig())
	assert.Error(t, err)

	p, err := NewProducer([]string{"localhost:9092"}, "opsmon.events", config.ProducerConfig{Compression: "lz4"})
	require.NoError(t, err)
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "opsmon.events", w.Topic)
	assert.Equal(t, 1, w.MaxAttempts)
	assert.Equal(t, compress.Lz4, w.Compression)
	require.NoError(t, p.Close())
}

func TestEmitPublishesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p, err := NewProducer([]string{"k:9092"}, "opsmon.events", testProducerConfig(), WithWriter(w), WithHost("web-1"))
	require.NoError(t, err)

	entry := warningEntry()
	require.NoError(t, p.Emit(context.Background(), entry))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, []byte("web-1"), msg.Key)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, entry.Event.ID, headers["event_id"])
	assert.Equal(t, "web-1", headers["host"])
	assert.Equal(t, "memory", headers["metric"])

	var env models.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, entry.Event.ID, env.ID)
	assert.Equal(t, entry.Message, env.Entry.Message)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.MessagesSent)
	assert.Equal(t, uint64(len(msg.Value)), stats.BytesWritten)
}

func TestPublishRetries(t *testing.T) {
	w := &fakeWriter{failures: 2, err: errors.New("leader not available")}
	p, err := NewProducer([]string{"k:9092"}, "t", testProducerConfig(), WithWriter(w))
	require.NoError(t, err)

	require.NoError(t, p.Emit(context.Background(), warningEntry()))
	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.messages, 1)
}

func TestPublishGivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10, err: errors.New("leader not available")}
	p, err := NewProducer([]string{"k:9092"}, "t", testProducerConfig(), WithWriter(w))
	require.NoError(t, err)

	err = p.Emit(context.Background(), warningEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, uint64(1), p.Stats().MessagesFailed)
}

func TestPublishStopsOnCancel(t *testing.T) {
	w := &fakeWriter{failures: 10, err: context.Canceled}
	p, err := NewProducer([]string{"k:9092"}, "t", testProducerConfig(), WithWriter(w))
	require.NoError(t, err)

	err = p.Emit(context.Background(), warningEntry())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, w.calls)
}

func TestClosedProducer(t *testing.T) {
	w := &fakeWriter{}
	p, err := NewProducer([]string{"k:9092"}, "t", testProducerConfig(), WithWriter(w))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)

	assert.ErrorIs(t, p.Emit(context.Background(), warningEntry()), ErrProducerClosed)
	assert.ErrorIs(t, p.HealthCheck(context.Background()), ErrProducerClosed)
}

func TestConcurrentPublishIsSerialized(t *testing.T) {
	w := &fakeWriter{}
	p, err := NewProducer([]string{"k:9092"}, "t", testProducerConfig(), WithWriter(w))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Emit(context.Background(), warningEntry()))
		}()
	}
	wg.Wait()

	assert.Len(t, w.messages, 10)
	assert.Equal(t, uint64(10), p.Stats().MessagesSent)
}

func TestGetCompression(t *testing.T) {
	assert.Equal(t, compress.Snappy, getCompression("snappy"))
	assert.Equal(t, compress.Zstd, getCompression("zstd"))
	assert.Equal(t, compress.None, getCompression(""))
}

// skipIfNoKafka skips the test if Kafka is not available
func skipIfNoKafka(t *testing.T) string {
	if os.Getenv("KAFKA_TEST") != "1" {
		t.Skip("Skipping Kafka integration test. Set KAFKA_TEST=1 to run.")
	}
	if b := os.Getenv("KAFKA_BROKER"); b != "" {
		return b
	}
	return "localhost:9092"
}

func TestProducerIntegration(t *testing.T) {
	broker := skipIfNoKafka(t)

	cfg := config.Default()
	p, err := NewProducer([]string{broker}, cfg.KafkaTopic, cfg.Producer(), WithHost("integration"))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, p.HealthCheck(ctx))
	require.NoError(t, p.Emit(ctx, warningEntry()))
	assert.Equal(t, uint64(1), p.Stats().MessagesSent)
}
