package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AddFlags registers every configuration key as a flag on cmd and binds the
// flag set to v. Flags only win over file and environment values when set.
func AddFlags(cmd *cobra.Command, v *viper.Viper) error {
	d := Default()
	flags := cmd.Flags()

	flags.String("config", "", "YAML configuration file")

	flags.IntP("interval", "i", d.Interval, "Seconds between polling cycles")
	flags.Float64("cpu-one-minute", d.CPUOneMinute, "One minute load average limit (0 disables)")
	flags.Float64("cpu-five-minute", d.CPUFiveMinute, "Five minute load average limit (0 disables)")
	flags.Float64("cpu-fifteen-minute", d.CPUFifteenMinute, "Fifteen minute load average limit (0 disables)")
	flags.Float64P("memory", "m", d.Memory, "Memory usage limit in percent (0 disables)")
	flags.Float64P("space", "s", d.Space, "Disk usage limit in percent (0 disables)")
	flags.StringP("disk", "d", d.Disk, "Mount path checked for disk usage")
	flags.Float64("inode", d.Inode, "Inode usage limit as a fraction, e.g. 0.9 (0 disables)")
	flags.String("partition", d.Partition, "Filesystem or mount point checked for inode usage")
	flags.BoolP("verbose", "v", d.Verbose, "Report every reading, not only threshold crossings")
	flags.String("host-label", d.HostLabel, "Host name shown as the webhook sender and as the host_label field (defaults to the hostname)")

	flags.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	flags.String("log-format", d.LogFormat, "Log format (console, json)")
	flags.String("listen", d.Listen, "Status server address, e.g. :9100 (empty disables)")
	flags.Int("cycle-timeout", d.CycleTimeout, "Seconds one cycle may take (0 uses the interval)")
	flags.Int("stats-interval", d.StatsInterval, "Seconds between runtime stats log lines (0 disables)")

	flags.String("webhook-url", d.WebhookURL, "Chat webhook receiving notifications")
	flags.Int("webhook-min-interval", d.WebhookMinInterval, "Minimum seconds before the same notification is resent")
	flags.StringSlice("webhook-tags", d.WebhookTags, "Tags forwarded to the webhook")

	flags.StringSlice("kafka-brokers", d.KafkaBrokers, "Kafka brokers receiving event envelopes")
	flags.String("kafka-topic", d.KafkaTopic, "Kafka topic for event envelopes")
	flags.String("kafka-compression", d.KafkaCompression, "Kafka compression (none, gzip, snappy, lz4, zstd)")
	flags.String("redis-addr", d.RedisAddr, "Redis address for shared webhook resend windows")

	return v.BindPFlags(flags)
}
