package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration. The recognized top-level options are
// data_dir (required), relays, user_pubkey, signer, log_path; everything
// else is an operational tunable with a working default.
type Config struct {
	DataDir    string   `yaml:"data_dir"`
	Relays     []string `yaml:"relays"`
	UserPubkey string   `yaml:"user_pubkey"`
	// Signer is either "local" or a bunker:// URL.
	Signer  string `yaml:"signer"`
	LogPath string `yaml:"log_path"`

	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Changes   ChangesConfig   `yaml:"changes"`
	Retention RetentionConfig `yaml:"retention"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig controls the loopback metrics/status HTTP listener. An
// empty address disables the listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DaemonConfig holds the control-plane socket path.
type DaemonConfig struct {
	Socket string `yaml:"socket"`
}

// IngestConfig holds queueing and commit batching tunables.
type IngestConfig struct {
	QueueCapacity        int       `yaml:"queue_capacity"`
	MaxBatch             int       `yaml:"max_batch"`
	FlushInterval        Duration  `yaml:"flush_interval"`
	MaxPooledBufferBytes SizeBytes `yaml:"max_pooled_buffer_bytes"`
}

// ChangesConfig holds change-bus tunables.
type ChangesConfig struct {
	CoalesceWindow Duration `yaml:"coalesce_window"`
	SubscriberCap  int      `yaml:"subscriber_cap"`
}

// RetentionConfig controls the status garbage-collect pass.
type RetentionConfig struct {
	Cron      string   `yaml:"cron"`
	StatusTTL Duration `yaml:"status_ttl"`
}

// SizeBytes is a byte count parsed from human-friendly strings like "64MB"
// or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration for YAML parsing from strings like "50ms"
// or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
