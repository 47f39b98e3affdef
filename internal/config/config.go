package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server configuration, loaded from TOGETHERPLAN_* environment variables.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	DBPath   string `env:"DB_PATH" envDefault:"togetherplan.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	BaseURL  string `env:"BASE_URL"`

	PostmarkToken string `env:"POSTMARK_TOKEN"`
	FromEmail     string `env:"FROM_EMAIL" envDefault:"noreply@togetherplan.local"`

	// Web Push is enabled when both VAPID keys are set.
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"VAPID_SUBJECT" envDefault:"mailto:noreply@togetherplan.local"`

	// PrivateViewerStatus selects which participants may view a private event:
	// "accepted" (default) or "invited" (invited or accepted).
	PrivateViewerStatus string `env:"PRIVATE_VIEWER_STATUS" envDefault:"accepted"`

	DigestInterval  time.Duration `env:"DIGEST_INTERVAL" envDefault:"1h"`
	NotifyQueueSize int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST" envDefault:"20"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"15m"`

	// Encrypted database snapshots go to S3-compatible storage when a bucket is set.
	BackupS3Endpoint  string        `env:"BACKUP_S3_ENDPOINT"`
	BackupS3Bucket    string        `env:"BACKUP_S3_BUCKET"`
	BackupS3Region    string        `env:"BACKUP_S3_REGION" envDefault:"us-east-1"`
	BackupS3AccessKey string        `env:"BACKUP_S3_ACCESS_KEY"`
	BackupS3SecretKey string        `env:"BACKUP_S3_SECRET_KEY"`
	BackupPassphrase  string        `env:"BACKUP_PASSPHRASE"`
	BackupPrefix      string        `env:"BACKUP_PREFIX" envDefault:"togetherplan/"`
	BackupInterval    time.Duration `env:"BACKUP_INTERVAL" envDefault:"24h"`
	BackupRetention   time.Duration `env:"BACKUP_RETENTION" envDefault:"720h"`

	// WSOrigins lists extra origin patterns accepted on websocket upgrades.
	WSOrigins []string `env:"WS_ORIGINS" envSeparator:","`
	// CORSOrigins enables CORS for browser clients served from these origins.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "TOGETHERPLAN_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.PrivateViewerStatus = strings.ToLower(strings.TrimSpace(c.PrivateViewerStatus))
	switch c.PrivateViewerStatus {
	case "accepted", "invited":
	default:
		return fmt.Errorf("invalid PRIVATE_VIEWER_STATUS %q: must be accepted or invited", c.PrivateViewerStatus)
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive")
	}
	if c.DigestInterval <= 0 || c.CleanupInterval <= 0 {
		return fmt.Errorf("digest and cleanup intervals must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}
	if c.BackupS3Bucket != "" {
		if c.BackupS3AccessKey == "" || c.BackupS3SecretKey == "" {
			return fmt.Errorf("BACKUP_S3_ACCESS_KEY and BACKUP_S3_SECRET_KEY are required with BACKUP_S3_BUCKET")
		}
		if len(c.BackupPassphrase) < 12 {
			return fmt.Errorf("BACKUP_PASSPHRASE must be at least 12 characters")
		}
		if c.BackupInterval <= 0 || c.BackupRetention <= 0 {
			return fmt.Errorf("backup interval and retention must be positive")
		}
	}
	return nil
}

// BackupEnabled reports whether snapshot uploads are configured.
func (c *Config) BackupEnabled() bool {
	return c.BackupS3Bucket != ""
}
