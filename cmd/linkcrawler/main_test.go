package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) options {
	t.Helper()
	var o options
	_, err := newApp(&o).Parse(args)
	require.NoError(t, err)
	return o
}

func TestTimeoutFlag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want time.Duration
	}{
		{name: "default from config", args: []string{"example.com"}, want: time.Minute},
		{name: "explicit duration", args: []string{"example.com", "--timeout", "45s"}, want: 45 * time.Second},
		{name: "explicit zero waits forever", args: []string{"example.com", "--timeout", "0s"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := loadConfig(parse(t, tt.args...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Termination.WaitTimeout.Duration)
		})
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "crawl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker:\n  concurrency: 3\ntermination:\n  wait_timeout: 2m\n"), 0o600))

	cfg, err := loadConfig(parse(t, "https://example.com", "--config", path))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Worker.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Termination.WaitTimeout.Duration)

	cfg, err = loadConfig(parse(t, "https://example.com", "-c", path, "-w", "7", "--timeout", "0s",
		"--request-timeout", "5s", "--extractor", "html", "--metrics-addr", ":9999"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Worker.Concurrency)
	assert.Zero(t, cfg.Termination.WaitTimeout.Duration)
	assert.Equal(t, 5*time.Second, cfg.Crawl.RequestTimeout.Duration)
	assert.Equal(t, "html", cfg.Crawl.Extractor)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9999", cfg.Metrics.Addr)
	assert.Equal(t, "https://example.com", cfg.Crawl.Seed)
}

func TestInvalidWorkerFlag(t *testing.T) {
	t.Parallel()

	_, err := loadConfig(parse(t, "example.com", "--workers=-1"))
	assert.ErrorContains(t, err, "worker.concurrency")
}
