package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "studio", "production", "warn")

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "export").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "component=export")
	assert.Contains(t, out, "app=studio")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "studio", "production", "loud")

	logger.Debug().Msg("debug line")
	logger.Info().Msg("info line")

	assert.NotContains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "info line")
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "studio", "production", "info")

	ctx := IntoContext(context.Background(), logger)
	ctxLogger := FromContext(ctx)
	ctxLogger.Info().Msg("from context")
	assert.Contains(t, buf.String(), "from context")

	nopLogger := FromContext(context.Background())
	nopLogger.Info().Msg("dropped")
	assert.NotContains(t, buf.String(), "dropped")
}
