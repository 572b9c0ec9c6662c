package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWritesJSONFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	dir := filepath.Join(t.TempDir(), "logs")
	logger, cleanup, err := InitLogger(dir, slog.LevelInfo)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("session created", "session_id", "s1")
	cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "teachme.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"session created"`)
	assert.Contains(t, string(data), `"session_id":"s1"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestInitTelemetry(t *testing.T) {
	dir := t.TempDir()
	tracer, meter, cleanup, err := InitTelemetry(context.Background(), dir)
	require.NoError(t, err)
	assert.NotNil(t, tracer)
	assert.NotNil(t, meter)

	_, span := tracer.Start(context.Background(), "test")
	span.End()
	cleanup()

	_, err = os.Stat(filepath.Join(dir, "teachme_traces.log"))
	assert.NoError(t, err)
}
