package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8723", cfg.Backend.BaseURL)
	require.Equal(t, "COXSWAIN_API_KEY", cfg.Backend.APIKeyEnv)
	require.Equal(t, 64, cfg.Client.EventBuffer)
	require.Equal(t, "INFO", cfg.Client.LogLevel)
	require.Equal(t, time.Duration(0), cfg.EmitTimeout())
}

func TestLoadParsesAndFillsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend:
  base_url: https://agent.example.com
client:
  emit_timeout_ms: 250
  log_level: DEBUG
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://agent.example.com", cfg.Backend.BaseURL)
	require.Equal(t, "COXSWAIN_API_KEY", cfg.Backend.APIKeyEnv)
	require.Equal(t, 64, cfg.Client.EventBuffer)
	require.Equal(t, 250*time.Millisecond, cfg.EmitTimeout())
	require.Equal(t, "DEBUG", cfg.Client.LogLevel)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("COX_TEST_BASE", "https://from-env.example.com")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "backend:\n  base_url: ${COX_TEST_BASE}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://from-env.example.com", cfg.Backend.BaseURL)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultPathUnderUserConfigDir(t *testing.T) {
	path := DefaultPath()
	require.Equal(t, "config.yaml", filepath.Base(path))
	require.Equal(t, "coxswain", filepath.Base(filepath.Dir(path)))
}
