package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"opsmon/internal/models"
)

// EnvPrefix prefixes every environment override, e.g. OPS_MEMORY=80
const EnvPrefix = "OPS"

// Config holds runtime configuration for the monitor.
type Config struct {
	// Polling interval in seconds
	Interval int `mapstructure:"interval"`

	// Load average limits; 0 disables the window
	CPUOneMinute     float64 `mapstructure:"cpu-one-minute"`
	CPUFiveMinute    float64 `mapstructure:"cpu-five-minute"`
	CPUFifteenMinute float64 `mapstructure:"cpu-fifteen-minute"`

	// Memory and disk limits in percent used
	Memory float64 `mapstructure:"memory"`
	Space  float64 `mapstructure:"space"`
	Disk   string  `mapstructure:"disk"`

	// Inode limit as a used fraction (0.9 = 90%)
	Inode     float64 `mapstructure:"inode"`
	Partition string  `mapstructure:"partition"`

	Verbose   bool   `mapstructure:"verbose"`
	HostLabel string `mapstructure:"host-label"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
	// HTTP status address; empty disables the server
	Listen string `mapstructure:"listen"`
	// Upper bound for one cycle in seconds; 0 uses the interval
	CycleTimeout int `mapstructure:"cycle-timeout"`

	WebhookURL         string   `mapstructure:"webhook-url"`
	WebhookMinInterval int      `mapstructure:"webhook-min-interval"`
	WebhookTags        []string `mapstructure:"webhook-tags"`

	KafkaBrokers     []string `mapstructure:"kafka-brokers"`
	KafkaTopic       string   `mapstructure:"kafka-topic"`
	KafkaCompression string   `mapstructure:"kafka-compression"`

	// Redis address for shared webhook resend windows; empty keeps them in memory
	RedisAddr string `mapstructure:"redis-addr"`

	// Seconds between runtime stats log lines; 0 disables
	StatsInterval int `mapstructure:"stats-interval"`
}

// ProducerConfig tunes the Kafka event publisher
type ProducerConfig struct {
	Compression  string
	WriteTimeout time.Duration
	RequiredAcks int
	MaxRetries   int
	RetryBackoff time.Duration
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Interval:           60,
		CPUOneMinute:       0.75,
		Memory:             75,
		Space:              90,
		Disk:               "/",
		Partition:          "/",
		LogLevel:           "info",
		LogFormat:          "console",
		WebhookMinInterval: 300,
		WebhookTags:        []string{models.TagWarning, models.TagRestored},
		KafkaTopic:         "opsmon.events",
		KafkaCompression:   "snappy",
		StatsInterval:      300,
	}
}

// Load resolves the configuration from defaults, an optional YAML file named
// by the "config" key, OPS_ environment variables and any flags already bound to v.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("interval", d.Interval)
	v.SetDefault("cpu-one-minute", d.CPUOneMinute)
	v.SetDefault("cpu-five-minute", d.CPUFiveMinute)
	v.SetDefault("cpu-fifteen-minute", d.CPUFifteenMinute)
	v.SetDefault("memory", d.Memory)
	v.SetDefault("space", d.Space)
	v.SetDefault("disk", d.Disk)
	v.SetDefault("inode", d.Inode)
	v.SetDefault("partition", d.Partition)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("host-label", d.HostLabel)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("cycle-timeout", d.CycleTimeout)
	v.SetDefault("webhook-url", d.WebhookURL)
	v.SetDefault("webhook-min-interval", d.WebhookMinInterval)
	v.SetDefault("webhook-tags", d.WebhookTags)
	v.SetDefault("kafka-brokers", []string{})
	v.SetDefault("kafka-topic", d.KafkaTopic)
	v.SetDefault("kafka-compression", d.KafkaCompression)
	v.SetDefault("redis-addr", d.RedisAddr)
	v.SetDefault("stats-interval", d.StatsInterval)
}

// Validate checks the configuration once at startup
func (c *Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be a positive number of seconds, got %d", c.Interval))
	}
	if c.CycleTimeout < 0 {
		errs = append(errs, fmt.Errorf("cycle-timeout must not be negative, got %d", c.CycleTimeout))
	}
	if c.Space > 0 && c.Disk == "" {
		errs = append(errs, errors.New("disk must name a mount path when space is enabled"))
	}
	if c.Inode > 1 {
		errs = append(errs, fmt.Errorf("inode is a used fraction between 0 and 1, got %v", c.Inode))
	}
	if c.Inode > 0 && c.Partition == "" {
		errs = append(errs, errors.New("partition must be set when inode is enabled"))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log-format must be console or json, got %q", c.LogFormat))
	}
	if c.WebhookMinInterval < 0 {
		errs = append(errs, fmt.Errorf("webhook-min-interval must not be negative, got %d", c.WebhookMinInterval))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("kafka-topic is required when kafka-brokers is set"))
	}
	switch c.KafkaCompression {
	case "", "none", "gzip", "snappy", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("unknown kafka-compression %q", c.KafkaCompression))
	}
	if c.StatsInterval < 0 {
		errs = append(errs, fmt.Errorf("stats-interval must not be negative, got %d", c.StatsInterval))
	}
	return errors.Join(errs...)
}

// Thresholds returns the per-metric limits in tracker form
func (c *Config) Thresholds() models.Thresholds {
	var t models.Thresholds
	return t.
		With(models.Memory, c.Memory).
		With(models.CpuOneMinute, c.CPUOneMinute).
		With(models.CpuFiveMinute, c.CPUFiveMinute).
		With(models.CpuFifteenMinute, c.CPUFifteenMinute).
		With(models.DiskSpace, c.Space).
		With(models.Inodes, c.Inode)
}

func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// CycleTimeoutDuration bounds one cycle, defaulting to the interval
func (c *Config) CycleTimeoutDuration() time.Duration {
	if c.CycleTimeout <= 0 {
		return c.IntervalDuration()
	}
	return time.Duration(c.CycleTimeout) * time.Second
}

func (c *Config) WebhookMinIntervalDuration() time.Duration {
	return time.Duration(c.WebhookMinInterval) * time.Second
}

func (c *Config) StatsIntervalDuration() time.Duration {
	return time.Duration(c.StatsInterval) * time.Second
}

// Producer returns the Kafka publisher settings
func (c *Config) Producer() ProducerConfig {
	return ProducerConfig{
		Compression:  c.KafkaCompression,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: 1,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
	}
}

// Summary describes the active thresholds for the startup entry
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"interval":           c.Interval,
		"cpu-one-minute":     c.CPUOneMinute,
		"cpu-five-minute":    c.CPUFiveMinute,
		"cpu-fifteen-minute": c.CPUFifteenMinute,
		"memory":             c.Memory,
		"space":              c.Space,
		"disk":               c.Disk,
		"inode":              c.Inode,
		"partition":          c.Partition,
		"verbose":            c.Verbose,
		"host-label":         c.HostLabel,
	}
}
