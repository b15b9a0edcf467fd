package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"opsmon/internal/logger"
	"opsmon/internal/metrics"
	"opsmon/internal/models"
)

// ErrWebhookRejected is returned when the endpoint answers with a 4xx status
var ErrWebhookRejected = errors.New("webhook rejected message")

// WebhookConfig configures a chat webhook sink
type WebhookConfig struct {
	URL string
	// Username is shown as the sender, usually the host label
	Username       string
	Timeout        time.Duration
	MaxElapsedTime time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Webhook posts entries as chat messages to an incoming webhook URL
type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
}

type webhookPayload struct {
	Text     string   `json:"text"`
	Username string   `json:"username,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = 30 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Webhook{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Emit posts the entry, retrying transport errors and 5xx responses with
// exponential backoff until MaxElapsedTime.
func (w *Webhook) Emit(ctx context.Context, entry models.Entry) error {
	body, err := json.Marshal(webhookPayload{
		Text:     entry.Text(),
		Username: w.cfg.Username,
		Tags:     entry.Tags,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	log := logger.WithComponent("webhook")

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = w.cfg.InitialBackoff
	expBackoff.MaxInterval = w.cfg.MaxBackoff
	expBackoff.Reset()

	start := time.Now()
	for attempt := 1; ; attempt++ {
		err = w.post(ctx, body)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrWebhookRejected) || ctx.Err() != nil {
			return err
		}
		if time.Since(start) >= w.cfg.MaxElapsedTime {
			return fmt.Errorf("webhook delivery gave up after %d attempts: %w", attempt, err)
		}

		delay := expBackoff.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("webhook delivery gave up after %d attempts: %w", attempt, err)
		}

		metrics.WebhookRetries.Inc()
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("webhook delivery failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", ErrWebhookRejected, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
}

func (w *Webhook) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
