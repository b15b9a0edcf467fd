package processor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opsmon/internal/config"
	"opsmon/internal/evaluator"
	"opsmon/internal/handlers"
	"opsmon/internal/kafka"
	"opsmon/internal/logger"
	"opsmon/internal/middleware"
	"opsmon/internal/models"
	"opsmon/internal/sink"
	"opsmon/internal/source"
	"opsmon/internal/state"
	"opsmon/internal/worker"
)

// Processor is the high-level coordinator: it wires the source, evaluator,
// sinks and status server together and drives the polling schedule.
type Processor struct {
	cfg      *config.Config
	hostname string

	source    source.Source
	sinks     []sink.Sink
	sink      *sink.Multi
	producer  *kafka.Producer
	store     *state.Store
	evaluator *evaluator.Evaluator
	scheduler *worker.Scheduler

	httpServer *http.Server
	listener   net.Listener
	ready      chan struct{}
	wg         sync.WaitGroup
}

// Option customizes a Processor
type Option func(*Processor)

// WithSource replaces the host metric source
func WithSource(src source.Source) Option {
	return func(p *Processor) { p.source = src }
}

// WithSink delivers entries to s instead of the sinks derived from configuration.
// It may be given more than once.
func WithSink(s sink.Sink) Option {
	return func(p *Processor) { p.sinks = append(p.sinks, s) }
}

// WithHostname overrides the machine hostname stamped on events
func WithHostname(name string) Option {
	return func(p *Processor) { p.hostname = name }
}

// New constructs a Processor with given config.
func New(cfg *config.Config, opts ...Option) *Processor {
	p := &Processor{
		cfg:   cfg,
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.hostname == "" {
		p.hostname, _ = os.Hostname()
		if p.hostname == "" {
			p.hostname = "unknown"
		}
	}
	if p.source == nil {
		p.source = source.NewHost()
	}
	return p
}

// Ready is closed once Run has finished initializing
func (p *Processor) Ready() <-chan struct{} { return p.ready }

// Addr returns the status server address, or "" when it is disabled.
// It is valid after Ready is closed.
func (p *Processor) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Run starts background goroutines and blocks until context cancelled.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Str("host", p.hostname).Msg("processor starting")

	if err := p.initSinks(ctx); err != nil {
		log.Error().Err(err).Msg("failed to initialize sinks")
		return fmt.Errorf("failed to initialize sinks: %w", err)
	}

	thresholds := p.cfg.Thresholds()
	p.store = state.NewStore(p.hostname, p.cfg.HostLabel, thresholds)
	p.evaluator = evaluator.New(evaluator.Config{
		Thresholds: thresholds,
		Disk:       p.cfg.Disk,
		Partition:  p.cfg.Partition,
		Verbose:    p.cfg.Verbose,
		HostLabel:  p.cfg.HostLabel,
		Hostname:   p.hostname,
	}, p.source, p.sink, p.store)

	if err := p.initHTTPServer(); err != nil {
		p.sink.Close()
		log.Error().Err(err).Msg("failed to initialize HTTP server")
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	p.emitStartup(ctx)

	p.scheduler = worker.NewScheduler(worker.Config{
		Interval: p.cfg.IntervalDuration(),
		Timeout:  p.cfg.CycleTimeoutDuration(),
		OnTick: func(ctx context.Context) {
			p.evaluator.RunCycle(ctx)
		},
	})
	p.scheduler.Start(ctx)

	if p.httpServer != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			log.Info().Str("addr", p.Addr()).Msg("starting HTTP server")
			if err := p.httpServer.Serve(p.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP server error")
			}
		}()
	}

	if p.cfg.StatsInterval > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.reportStats(ctx)
		}()
	}

	close(p.ready)

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return p.shutdown()
}

// initSinks builds the sink fan-out from configuration unless sinks were injected
func (p *Processor) initSinks(ctx context.Context) error {
	log := logger.WithComponent("processor")

	if len(p.sinks) > 0 {
		p.sink = sink.NewMulti(p.sinks...)
		return nil
	}

	sinks := []sink.Sink{sink.NewConsole(logger.WithComponent("ops"))}

	if p.cfg.WebhookURL != "" {
		var limiter state.Limiter = state.NewMemoryLimiter()
		if p.cfg.RedisAddr != "" {
			client, err := state.NewRedisClient(ctx, p.cfg.RedisAddr)
			if err != nil {
				return err
			}
			limiter = state.NewRedisLimiter(client)
			log.Info().Str("addr", p.cfg.RedisAddr).Msg("webhook resend windows shared through redis")
		}

		label := p.cfg.HostLabel
		if label == "" {
			label = p.hostname
		}
		webhook := sink.NewWebhook(sink.WebhookConfig{URL: p.cfg.WebhookURL, Username: label})
		sinks = append(sinks, sink.NewFilter(webhook, p.cfg.WebhookTags, p.cfg.WebhookMinIntervalDuration(), limiter))
		log.Info().
			Strs("tags", p.cfg.WebhookTags).
			Dur("min_interval", p.cfg.WebhookMinIntervalDuration()).
			Msg("webhook sink enabled")
	}

	if len(p.cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(
			p.cfg.KafkaBrokers,
			p.cfg.KafkaTopic,
			p.cfg.Producer(),
			kafka.WithHost(p.hostname),
		)
		if err != nil {
			sink.NewMulti(sinks...).Close()
			return err
		}
		p.producer = producer
		sinks = append(sinks, producer)

		// Unreachable brokers are not fatal; publishes retry each cycle
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := producer.HealthCheck(checkCtx); err != nil {
			log.Warn().Err(err).Msg("kafka brokers not reachable at startup")
		}
		cancel()

		log.Info().
			Strs("brokers", p.cfg.KafkaBrokers).
			Str("topic", p.cfg.KafkaTopic).
			Msg("kafka producer initialized")
	}

	p.sink = sink.NewMulti(sinks...)
	return nil
}

// initHTTPServer binds the status server when an address is configured
func (p *Processor) initHTTPServer() error {
	if p.cfg.Listen == "" {
		return nil
	}

	mux := http.NewServeMux()
	wrap := func(route string, h http.Handler) http.Handler {
		return middleware.Chain(h, middleware.Recovery, middleware.Observe(route))
	}

	// A cycle is overdue after a few missed intervals
	maxAge := 3*p.cfg.IntervalDuration() + p.cfg.CycleTimeoutDuration()

	mux.Handle("/health", wrap("/health", handlers.NewHealthHandler(p.store, maxAge)))
	mux.Handle("/status", wrap("/status", handlers.NewStatusHandler(p.store, p.runtimeStats)))
	mux.Handle("/metrics", promhttp.Handler())

	ln, err := net.Listen("tcp", p.cfg.Listen)
	if err != nil {
		return err
	}
	p.listener = ln

	p.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// emitStartup reports the active configuration once
func (p *Processor) emitStartup(ctx context.Context) {
	fields := p.cfg.Summary()
	fields["hostname"] = p.hostname

	entry := models.Entry{
		Tags:    []string{models.TagOps, models.TagInfo, models.TagStartup},
		Message: "monitoring started",
		Fields:  fields,
		Time:    time.Now().UTC(),
	}
	if err := p.sink.Emit(ctx, entry); err != nil {
		log := logger.WithComponent("processor")
		log.Warn().Err(err).Msg("startup summary not fully delivered")
	}
}

// shutdown performs graceful shutdown
func (p *Processor) shutdown() error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop accepting new HTTP requests
	if p.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		log.Info().Msg("stopping HTTP server")
		if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	// 2. Let the running cycle finish, start no new one
	p.scheduler.Stop()

	// 3. Wait for background goroutines
	p.wg.Wait()

	// 4. Close sinks
	log.Info().Msg("closing sinks")
	if err := p.sink.Close(); err != nil {
		log.Error().Err(err).Msg("sink close error")
	}

	log.Info().Msg("processor stopped gracefully")
	return nil
}

// runtimeStats collects process counters for the status endpoint
func (p *Processor) runtimeStats() map[string]any {
	out := map[string]any{
		"scheduler": p.scheduler.Stats(),
	}
	if p.producer != nil {
		out["kafka"] = p.producer.Stats()
	}
	return out
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(p.cfg.StatsIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sched := p.scheduler.Stats()
			snap := p.store.Snapshot()

			ev := log.Info().
				Uint64("cycles", snap.Cycles).
				Uint64("ticks", sched.Ticks).
				Uint64("panics", sched.Panics).
				Int("failures", len(snap.Failures))

			if p.producer != nil {
				producerStats := p.producer.Stats()
				ev = ev.
					Uint64("producer_sent", producerStats.MessagesSent).
					Uint64("producer_failed", producerStats.MessagesFailed).
					Uint64("producer_bytes", producerStats.BytesWritten)
			}
			ev.Msg("stats")
		}
	}
}
