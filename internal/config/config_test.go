package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromReaderOverridesDefaults(t *testing.T) {
	t.Parallel()

	raw := `
crawl:
  seed: " example.com/ "
  extractor: GoQuery
  request_timeout: 5s
  headers:
    accept-language: " en "
worker:
  concurrency: 4
termination:
  wait_timeout: 90
logging:
  level: DEBUG
`
	cfg, err := LoadFromReader(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "example.com/", cfg.Crawl.Seed)
	assert.Equal(t, ExtractorHTML, cfg.Crawl.Extractor)
	assert.Equal(t, 5*time.Second, cfg.Crawl.RequestTimeout.Duration)
	assert.Equal(t, map[string]string{"Accept-Language": "en"}, cfg.Crawl.Headers)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Termination.WaitTimeout.Duration)
	assert.Equal(t, time.Minute, cfg.Termination.ShutdownGrace.Duration)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "Mozilla/5.0", cfg.Crawl.UserAgent)
}

func TestLoadFromReaderEmptyDocument(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Worker.Concurrency)
	assert.Equal(t, ExtractorRegex, cfg.Crawl.Extractor)
	assert.Equal(t, time.Minute, cfg.Termination.WaitTimeout.Duration)
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader("crawl:\n  seeds: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero workers", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, wantErr: "worker.concurrency"},
		{name: "body limit", mutate: func(c *Config) { c.Crawl.MaxBodyBytes = 0 }, wantErr: "max_body_bytes"},
		{name: "user agent", mutate: func(c *Config) { c.Crawl.UserAgent = " " }, wantErr: "user_agent"},
		{name: "extractor", mutate: func(c *Config) { c.Crawl.Extractor = "xpath" }, wantErr: "crawl.extractor"},
		{name: "negative wait", mutate: func(c *Config) { c.Termination.WaitTimeout = DurationFrom(-time.Second) }, wantErr: "wait_timeout"},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: "logging.level"},
		{name: "metrics addr", mutate: func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, wantErr: "metrics.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDurationYAML(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader("termination:\n  wait_timeout: 1m30s\n  shutdown_grace: 0.5\n"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Termination.WaitTimeout.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Termination.ShutdownGrace.Duration)

	_, err = LoadFromReader(strings.NewReader("termination:\n  wait_timeout: soon\n"))
	require.Error(t, err)
}
