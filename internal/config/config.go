package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Transport backends.
const (
	TransportSMTP    = "smtp"
	TransportWebhook = "webhook"
	TransportLog     = "log"
)

// Lock backends.
const (
	LockPostgres = "postgres"
	LockFile     = "file"
)

// Config holds all runtime configuration. Values come from environment
// variables, optionally layered over a YAML/JSON file named by CONFIG_FILE.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Transport
	Transport        string
	DefaultFrom      string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPStartTLS     bool
	WebhookURL       string
	TransportTimeout time.Duration
	TransportRetries uint64
	RateLimit        float64
	RateBurst        int

	// Sink mode reroutes every delivery to SinkAddress. SinkRecipientLimit
	// caps recipients handled per run while sink mode is active (0 = no cap).
	SinkAddress        string
	SinkRecipientLimit int

	// Pipeline
	MaxRetries          int
	RenderFailurePolicy string
	DeploySchedule      string

	// Deploy guard
	LockBackend string
	LockName    string
	LockDir     string

	// Logging
	LogLevel  string
	LogFormat string
}

// SinkMode reports whether deliveries are rerouted to a sink address.
func (c *Config) SinkMode() bool { return c.SinkAddress != "" }

// RecipientLimit is the per-run recipient cap handed to the queue processor.
func (c *Config) RecipientLimit() int {
	if !c.SinkMode() {
		return 0
	}
	return c.SinkRecipientLimit
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		HTTPPort:        v.GetString("HTTP_PORT"),
		ReadTimeout:     v.GetDuration("READ_TIMEOUT"),
		WriteTimeout:    v.GetDuration("WRITE_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),

		DatabaseURL: v.GetString("DATABASE_URL"),
		DBMaxConns:  v.GetInt32("DB_MAX_CONNS"),
		DBMinConns:  v.GetInt32("DB_MIN_CONNS"),

		Transport:        v.GetString("TRANSPORT"),
		DefaultFrom:      v.GetString("DEFAULT_FROM"),
		SMTPHost:         v.GetString("SMTP_HOST"),
		SMTPPort:         v.GetInt("SMTP_PORT"),
		SMTPUsername:     v.GetString("SMTP_USERNAME"),
		SMTPPassword:     v.GetString("SMTP_PASSWORD"),
		SMTPStartTLS:     v.GetBool("SMTP_STARTTLS"),
		WebhookURL:       v.GetString("WEBHOOK_URL"),
		TransportTimeout: v.GetDuration("TRANSPORT_TIMEOUT"),
		TransportRetries: v.GetUint64("TRANSPORT_DIAL_RETRIES"),
		RateLimit:        v.GetFloat64("RATE_LIMIT"),
		RateBurst:        v.GetInt("RATE_BURST"),

		SinkAddress:        v.GetString("SINK_ADDRESS"),
		SinkRecipientLimit: v.GetInt("SINK_RECIPIENT_LIMIT"),

		MaxRetries:          v.GetInt("MAX_RETRIES"),
		RenderFailurePolicy: v.GetString("RENDER_FAILURE_POLICY"),
		DeploySchedule:      v.GetString("DEPLOY_SCHEDULE"),

		LockBackend: v.GetString("LOCK_BACKEND"),
		LockName:    v.GetString("LOCK_NAME"),
		LockDir:     v.GetString("LOCK_DIR"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("READ_TIMEOUT", 5*time.Second)
	v.SetDefault("WRITE_TIMEOUT", 60*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 30*time.Second)

	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)

	v.SetDefault("TRANSPORT", TransportSMTP)
	v.SetDefault("DEFAULT_FROM", "pigeonpost@localhost")
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 25)
	v.SetDefault("SMTP_STARTTLS", false)
	v.SetDefault("TRANSPORT_TIMEOUT", 30*time.Second)
	v.SetDefault("TRANSPORT_DIAL_RETRIES", 2)
	v.SetDefault("RATE_LIMIT", 0)
	v.SetDefault("RATE_BURST", 1)

	v.SetDefault("SINK_RECIPIENT_LIMIT", 0)

	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("RENDER_FAILURE_POLICY", "abort")
	v.SetDefault("DEPLOY_SCHEDULE", "@every 1m")

	v.SetDefault("LOCK_BACKEND", LockPostgres)
	v.SetDefault("LOCK_NAME", "pigeonpost-deploy")
	v.SetDefault("LOCK_DIR", os.TempDir())

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries)
	}
	switch c.Transport {
	case TransportSMTP, TransportLog:
	case TransportWebhook:
		if c.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required for the webhook transport")
		}
	default:
		return fmt.Errorf("unknown TRANSPORT %q", c.Transport)
	}
	switch c.LockBackend {
	case LockPostgres, LockFile:
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}
	switch c.RenderFailurePolicy {
	case "abort", "skip":
	default:
		return fmt.Errorf("unknown RENDER_FAILURE_POLICY %q", c.RenderFailurePolicy)
	}
	return nil
}
