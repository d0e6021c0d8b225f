package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func repeat64(s string) string { return strings.Repeat(s, 64) }

func unmarshalYAML(t *testing.T, body string, c *Config) error {
	t.Helper()
	*c = Config{}
	return yaml.Unmarshal([]byte(body), c)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/harbor
relays:
  - wss://relay.one
  - wss://relay.two
user_pubkey: `+"\""+repeat64("a")+"\""+`
signer: local
logging:
  level: debug
metrics:
  addr: 127.0.0.1:9187
daemon:
  socket: /tmp/harbor/control.sock
ingest:
  queue_capacity: 1024
  max_batch: 32
  flush_interval: 25ms
  max_pooled_buffer_bytes: 64KB
changes:
  coalesce_window: 100ms
  subscriber_cap: 8
retention:
  cron: "*/30 * * * *"
  status_ttl: 12h
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/harbor", cfg.DataDir)
	require.Equal(t, []string{"wss://relay.one", "wss://relay.two"}, cfg.Relays)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "/tmp/harbor/control.sock", cfg.Daemon.Socket)
	require.Equal(t, 1024, cfg.Ingest.QueueCapacity)
	require.Equal(t, 32, cfg.Ingest.MaxBatch)
	require.Equal(t, 25*time.Millisecond, cfg.Ingest.FlushInterval.Duration())
	require.Equal(t, int64(64000), cfg.Ingest.MaxPooledBufferBytes.Int64())
	require.Equal(t, 100*time.Millisecond, cfg.Changes.CoalesceWindow.Duration())
	require.Equal(t, 8, cfg.Changes.SubscriberCap)
	require.Equal(t, "*/30 * * * *", cfg.Retention.Cron)
	require.Equal(t, 12*time.Hour, cfg.Retention.StatusTTL.Duration())
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "data_dir: /tmp/harbor\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "local", cfg.Signer)
	require.Equal(t, "/tmp/harbor/harbord.sock", cfg.Daemon.Socket)
	require.Equal(t, DefaultQueueCapacity, cfg.Ingest.QueueCapacity)
	require.Equal(t, DefaultMaxBatch, cfg.Ingest.MaxBatch)
	require.Equal(t, DefaultFlushInterval, cfg.Ingest.FlushInterval.Duration())
	require.Equal(t, int64(DefaultMaxPooledBuffer), cfg.Ingest.MaxPooledBufferBytes.Int64())
	require.Equal(t, DefaultCoalesceWindow, cfg.Changes.CoalesceWindow.Duration())
	require.Equal(t, DefaultSubscriberCap, cfg.Changes.SubscriberCap)
	require.Equal(t, DefaultStatusTTL, cfg.Retention.StatusTTL.Duration())
	require.Equal(t, DefaultRetentionCron, cfg.Retention.Cron)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "data_dir: /tmp/from-file\nsigner: local\n")
	t.Setenv("HARBOR_DATA_DIR", "/tmp/from-env")
	t.Setenv("HARBOR_RELAYS", "wss://a.example, wss://b.example")
	t.Setenv("HARBOR_SOCKET", "/tmp/env.sock")
	t.Setenv("HARBOR_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-env", cfg.DataDir)
	require.Equal(t, []string{"wss://a.example", "wss://b.example"}, cfg.Relays)
	require.Equal(t, "/tmp/env.sock", cfg.Daemon.Socket)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "config file not found")
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"missing data dir", Config{}, "data_dir is required"},
		{
			"bad signer",
			Config{DataDir: "/tmp", Signer: "keychain"},
			"signer must be",
		},
		{
			"short pubkey",
			Config{DataDir: "/tmp", UserPubkey: "abcd"},
			"user_pubkey must be 64 hex chars",
		},
		{
			"http relay",
			Config{DataDir: "/tmp", Relays: []string{"https://relay.example"}},
			"relay url must be",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateAcceptsBunkerSigner(t *testing.T) {
	cfg := Config{
		DataDir: "/tmp",
		Signer:  "bunker://" + repeat64("b") + "?relay=wss://r.example",
	}
	require.NoError(t, cfg.Validate())
}

func TestDurationParsing(t *testing.T) {
	var c Config
	require.NoError(t, unmarshalYAML(t, "ingest:\n  flush_interval: 1.5\n", &c))
	require.Equal(t, 1500*time.Millisecond, c.Ingest.FlushInterval.Duration())

	require.Error(t, unmarshalYAML(t, "ingest:\n  flush_interval: soon\n", &c))
}

func TestSizeBytesParsing(t *testing.T) {
	var c Config
	require.NoError(t, unmarshalYAML(t, "ingest:\n  max_pooled_buffer_bytes: 1MiB\n", &c))
	require.Equal(t, int64(1<<20), c.Ingest.MaxPooledBufferBytes.Int64())

	require.NoError(t, unmarshalYAML(t, "ingest:\n  max_pooled_buffer_bytes: 4096\n", &c))
	require.Equal(t, int64(4096), c.Ingest.MaxPooledBufferBytes.Int64())

	require.Error(t, unmarshalYAML(t, "ingest:\n  max_pooled_buffer_bytes: lots\n", &c))
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("HARBOR_CONFIG", "/etc/harbor/config.yaml")
	require.Equal(t, "/flag/path.yaml", ResolveConfigPath("/flag/path.yaml", true))
	require.Equal(t, "/etc/harbor/config.yaml", ResolveConfigPath("./config.yaml", false))

	t.Setenv("HARBOR_CONFIG", "")
	require.Equal(t, "./config.yaml", ResolveConfigPath("./config.yaml", false))
}
