package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

sendgrid:
  api_key: "test-api-key"
  base_url: "https://api.sendgrid.com/v3"
  timeout_seconds: 45

polling:
  refresh_interval_seconds: 120
  verify_interval_seconds: 180
  send_interval_seconds: 30

dispatch:
  batch_size: 25
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "test-api-key", cfg.SendGrid.APIKey)
	assert.Equal(t, "https://api.sendgrid.com/v3", cfg.SendGrid.BaseURL)
	assert.Equal(t, 45, cfg.SendGrid.TimeoutSeconds)

	assert.Equal(t, 120, cfg.Polling.RefreshIntervalSeconds)
	assert.Equal(t, 180, cfg.Polling.VerifyIntervalSeconds)
	assert.Equal(t, 30, cfg.Polling.SendIntervalSeconds)

	assert.Equal(t, 25, cfg.Dispatch.BatchSize)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
sendgrid:
  api_key: "test-key"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 30, cfg.SendGrid.TimeoutSeconds)
	assert.Equal(t, "https://api.sendgrid.com/v3", cfg.SendGrid.BaseURL)
	assert.Equal(t, 300, cfg.Polling.RefreshIntervalSeconds)
	assert.Equal(t, 300, cfg.Polling.VerifyIntervalSeconds)
	assert.Equal(t, 60, cfg.Polling.SendIntervalSeconds)
	assert.Equal(t, 50, cfg.Dispatch.BatchSize)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)
}

func TestLoadFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
sendgrid:
  api_key: "file-key"
  base_url: "https://file-url.com"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	os.Setenv("SENDGRID_API_KEY", "env-key")
	os.Setenv("TOKEN_ENCRYPTION_KEY", "env-encryption-key")
	defer func() {
		os.Unsetenv("SENDGRID_API_KEY")
		os.Unsetenv("TOKEN_ENCRYPTION_KEY")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.SendGrid.APIKey)
	assert.Equal(t, "https://file-url.com", cfg.SendGrid.BaseURL)
	assert.Equal(t, "env-encryption-key", cfg.Crypto.TokenEncryptionKey)
}

func TestLoadFromEnvDatabaseURLOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`database:
  url: "postgres://file"
`), 0644))

	os.Setenv("SUPABASE_URL", "postgres://supabase")
	defer os.Unsetenv("SUPABASE_URL")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)
	assert.Equal(t, "postgres://supabase", cfg.Database.URL)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestSendGridTimeout(t *testing.T) {
	cfg := SendGridConfig{TimeoutSeconds: 45}
	assert.Equal(t, 45*1000000000, int(cfg.Timeout().Nanoseconds()))
}

func TestPollingIntervals(t *testing.T) {
	cfg := PollingConfig{RefreshIntervalSeconds: 120, VerifyIntervalSeconds: 90, SendIntervalSeconds: 30}
	assert.Equal(t, 120*1000000000, int(cfg.RefreshInterval().Nanoseconds()))
	assert.Equal(t, 90*1000000000, int(cfg.VerifyInterval().Nanoseconds()))
	assert.Equal(t, 30*1000000000, int(cfg.SendInterval().Nanoseconds()))
}
