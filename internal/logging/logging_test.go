package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkcrawler/internal/config"
)

func TestNewStructured(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "warn", Structured: true}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("fetch failed", "url", "https://example.com")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"fetch failed"`)
	assert.Contains(t, out, `"url":"https://example.com"`)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("verbose")
	require.Error(t, err)
}
