package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8501", cfg.ListenAddr)
	assert.Equal(t, "", cfg.BackendURL)
	assert.Equal(t, "test123", cfg.QuestionCode)
	assert.Equal(t, 60*time.Second, cfg.BackendTimeout)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teachme.yaml")
	err := os.WriteFile(path, []byte(`
listen_addr: ":9000"
backend_url: "http://api.example.com"
store: sqlite
session_ttl: 30m
log_level: warn
`), 0o644)
	require.NoError(t, err)

	cfg, err := Load([]string{"-config", path, "-listen", ":9100"})
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.ListenAddr, "flag overrides file")
	assert.Equal(t, "http://api.example.com", cfg.BackendURL)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
	assert.Equal(t, "test123", cfg.QuestionCode, "unset keys keep defaults")
}

func TestDebugForcesDebugLevel(t *testing.T) {
	cfg, err := Load([]string{"-debug", "-log-level", "error"})
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := [][]string{
		{"-store", "redis"},
		{"-question-code", ""},
		{"-session-ttl", "0s"},
		{"-log-level", "loud"},
		{"-config", "/does/not/exist.yaml"},
		{"-unknown-flag"},
	}
	for _, args := range tests {
		_, err := Load(args)
		assert.Error(t, err, "%v", args)
	}
}
