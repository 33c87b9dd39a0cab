package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToml = `
[db]
host = "localhost"
port = 3306
database = "domadao_indexer"
username = "indexer"
password = "indexer"

[logger]
level = "DEBUG"
console = true

[feed]
base_url = "https://api.example.org/v1"
api_key = "secret"
timeout_millis = 2500

[consumer]
batch_size = 50
poll_interval_millis = 1500
max_retries = 5
backoff_init_millis = 200
backoff_max_millis = 10000

[monitor]
enabled = true
address = ":9000"
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestParseConfigFile(t *testing.T) {
	cfg := newConfig()
	err := ParseConfigFile(cfg, writeConfigFile(t, testToml))
	require.NoError(t, err)

	assert.Equal(t, "domadao_indexer", cfg.DB.Database)
	assert.Equal(t, "https://api.example.org/v1", cfg.Feed.BaseURL)
	assert.Equal(t, 2500*time.Millisecond, cfg.Feed.Timeout())
	assert.Equal(t, 50, cfg.Consumer.BatchSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.Consumer.PollInterval())
	assert.Equal(t, uint(5), cfg.Consumer.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.Consumer.BackoffInitial())
	assert.Equal(t, 10*time.Second, cfg.Consumer.BackoffMax())
	assert.True(t, cfg.Monitor.Enabled)
	assert.Equal(t, ":9000", cfg.Monitor.Address)
}

func TestParseConfigFileMissing(t *testing.T) {
	cfg := newConfig()
	err := ParseConfigFile(cfg, filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestDefaultsWhenUnset(t *testing.T) {
	cfg := newConfig()

	assert.Equal(t, FeedTimeoutDefault, cfg.Feed.Timeout())
	assert.Equal(t, PollIntervalDefault, cfg.Consumer.PollInterval())
	assert.Equal(t, BatchSizeDefault, cfg.Consumer.BatchSize)
	assert.Equal(t, BackoffInitialDefault, cfg.Consumer.BackoffInitial())
	assert.Equal(t, BackoffMaxDefault, cfg.Consumer.BackoffMax())

	var zero ConsumerConfig
	assert.Equal(t, PollIntervalDefault, zero.PollInterval())
}

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("FEED_API_KEY", "from-env")

	cfg := newConfig()
	require.NoError(t, ParseConfigFile(cfg, writeConfigFile(t, testToml)))
	require.NoError(t, ReadEnv(cfg))

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "from-env", cfg.Feed.APIKey)
}

func TestFeedFullURL(t *testing.T) {
	feedCfg := FeedConfig{BaseURL: "https://api.example.org/v1"}
	u, err := feedCfg.FullURL()
	require.NoError(t, err)
	assert.Equal(t, "api.example.org", u.Host)
}
