package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the file or env leave a field unset.
const (
	DefaultQueueCapacity   = 64 * 1024
	DefaultMaxBatch        = 128
	DefaultFlushInterval   = 50 * time.Millisecond
	DefaultCoalesceWindow  = 33 * time.Millisecond
	DefaultSubscriberCap   = 16
	DefaultStatusTTL       = 24 * time.Hour
	DefaultRetentionCron   = "0 * * * *"
	DefaultMaxPooledBuffer = 256 * 1024
)

// Load reads the yaml config at path, applies environment overrides and
// defaults, and validates required fields.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and option shapes.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Signer != "" && c.Signer != "local" && !strings.HasPrefix(c.Signer, "bunker://") {
		return fmt.Errorf("signer must be \"local\" or a bunker:// url, got %q", c.Signer)
	}
	if c.UserPubkey != "" && len(c.UserPubkey) != 64 {
		return fmt.Errorf("user_pubkey must be 64 hex chars")
	}
	for _, r := range c.Relays {
		if !strings.HasPrefix(r, "ws://") && !strings.HasPrefix(r, "wss://") {
			return fmt.Errorf("relay url must be ws:// or wss://, got %q", r)
		}
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Signer == "" {
		c.Signer = "local"
	}
	if c.Daemon.Socket == "" && c.DataDir != "" {
		c.Daemon.Socket = c.DataDir + "/harbord.sock"
	}
	if c.Ingest.QueueCapacity <= 0 {
		c.Ingest.QueueCapacity = DefaultQueueCapacity
	}
	if c.Ingest.MaxBatch <= 0 {
		c.Ingest.MaxBatch = DefaultMaxBatch
	}
	if c.Ingest.FlushInterval.Duration() <= 0 {
		c.Ingest.FlushInterval = Duration(DefaultFlushInterval)
	}
	if c.Ingest.MaxPooledBufferBytes.Int64() <= 0 {
		c.Ingest.MaxPooledBufferBytes = SizeBytes(DefaultMaxPooledBuffer)
	}
	if c.Changes.CoalesceWindow.Duration() <= 0 {
		c.Changes.CoalesceWindow = Duration(DefaultCoalesceWindow)
	}
	if c.Changes.SubscriberCap <= 0 {
		c.Changes.SubscriberCap = DefaultSubscriberCap
	}
	if c.Retention.StatusTTL.Duration() <= 0 {
		c.Retention.StatusTTL = Duration(DefaultStatusTTL)
	}
	if c.Retention.Cron == "" {
		c.Retention.Cron = DefaultRetentionCron
	}
}

func applyEnvOverrides(c *Config) {
	parseList := func(v string) []string {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}
	if v := os.Getenv("HARBOR_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("HARBOR_RELAYS"); v != "" {
		c.Relays = parseList(v)
	}
	if v := os.Getenv("HARBOR_USER_PUBKEY"); v != "" {
		c.UserPubkey = v
	}
	if v := os.Getenv("HARBOR_SIGNER"); v != "" {
		c.Signer = v
	}
	if v := os.Getenv("HARBOR_LOG_PATH"); v != "" {
		c.LogPath = v
	}
	if v := os.Getenv("HARBOR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HARBOR_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("HARBOR_SOCKET"); v != "" {
		c.Daemon.Socket = v
	}
}

// ParseCommandFlags defines and parses the daemon's command-line flags and
// returns their values along with a map of flags the user explicitly set.
func ParseCommandFlags() (cfgPath, dataDir, socket string, setFlags map[string]bool) {
	cfgPtr := flag.String("config", "./config.yaml", "path to config file")
	dataPtr := flag.String("data", "", "data directory (overrides config)")
	sockPtr := flag.String("socket", "", "control socket path (overrides config)")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *cfgPtr, *dataPtr, *sockPtr, setFlags
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and the HARBOR_CONFIG env var when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("HARBOR_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
