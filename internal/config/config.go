package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	SendGrid    SendGridConfig    `yaml:"sendgrid"`
	Auth        AuthConfig        `yaml:"auth"`
	Crypto      CryptoConfig      `yaml:"crypto"`
	Polling     PollingConfig     `yaml:"polling"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Unsubscribe UnsubscribeConfig `yaml:"unsubscribe"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection (Supabase-hosted in production).
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the distributed-lock backend for cmd/worker.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// SendGridConfig holds outbound-send and inbound-validation credentials.
type SendGridConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	ValidationKey  string `yaml:"validation_key"`
	ForwardFrom    string `yaml:"forward_from"`
}

// Timeout returns the configured timeout as a duration.
func (c SendGridConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AuthConfig holds OAuth credentials for the Gmail/Microsoft inbox-injection providers.
type AuthConfig struct {
	GoogleClientID        string `yaml:"google_client_id"`
	GoogleClientSecret    string `yaml:"google_client_secret"`
	MicrosoftClientID     string `yaml:"microsoft_client_id"`
	MicrosoftClientSecret string `yaml:"microsoft_client_secret"`
	MicrosoftTenantID     string `yaml:"microsoft_tenant_id"`
	FrontendURL           string `yaml:"frontend_url"`
}

// CryptoConfig holds the token-vault encryption key.
type CryptoConfig struct {
	TokenEncryptionKey string `yaml:"token_encryption_key"`
}

// PollingConfig holds cmd/worker's periodic-tick intervals.
type PollingConfig struct {
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds"`
	VerifyIntervalSeconds  int `yaml:"verify_interval_seconds"`
	SendIntervalSeconds    int `yaml:"send_interval_seconds"`
}

// RefreshInterval returns the refresh polling interval as a duration.
func (c PollingConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// VerifyInterval returns the verify polling interval as a duration.
func (c PollingConfig) VerifyInterval() time.Duration {
	return time.Duration(c.VerifyIntervalSeconds) * time.Second
}

// SendInterval returns the send polling interval as a duration.
func (c PollingConfig) SendInterval() time.Duration {
	return time.Duration(c.SendIntervalSeconds) * time.Second
}

// DispatchConfig holds dispatcher batch sizing.
type DispatchConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// UnsubscribeConfig holds the public unsubscribe-landing-page base URL.
type UnsubscribeConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SendGrid.BaseURL == "" {
		cfg.SendGrid.BaseURL = "https://api.sendgrid.com/v3"
	}
	if cfg.SendGrid.TimeoutSeconds == 0 {
		cfg.SendGrid.TimeoutSeconds = 30
	}
	if cfg.Polling.RefreshIntervalSeconds == 0 {
		cfg.Polling.RefreshIntervalSeconds = 300
	}
	if cfg.Polling.VerifyIntervalSeconds == 0 {
		cfg.Polling.VerifyIntervalSeconds = 300
	}
	if cfg.Polling.SendIntervalSeconds == 0 {
		cfg.Polling.SendIntervalSeconds = 60
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 50
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.SendGrid.APIKey = v
	}
	if v := os.Getenv("SENDGRID_VALIDATION_KEY"); v != "" {
		cfg.SendGrid.ValidationKey = v
	}
	if v := os.Getenv("SENDGRID_FORWARD_FROM"); v != "" {
		cfg.SendGrid.ForwardFrom = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.GoogleClientSecret = v
	}
	if v := os.Getenv("MICROSOFT_CLIENT_ID"); v != "" {
		cfg.Auth.MicrosoftClientID = v
	}
	if v := os.Getenv("MICROSOFT_CLIENT_SECRET"); v != "" {
		cfg.Auth.MicrosoftClientSecret = v
	}
	if v := os.Getenv("MICROSOFT_TENANT_ID"); v != "" {
		cfg.Auth.MicrosoftTenantID = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.Auth.FrontendURL = v
	}
	if v := os.Getenv("TOKEN_ENCRYPTION_KEY"); v != "" {
		cfg.Crypto.TokenEncryptionKey = v
	}
	if v := os.Getenv("UNSUBSCRIBE_URL"); v != "" {
		cfg.Unsubscribe.BaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}

	return cfg, nil
}
