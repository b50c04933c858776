package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	APISecret string `yaml:"api_secret"` // shared secret for the token-issuing API
	JWTSecret string `yaml:"jwt_secret"` // HMAC secret for actor identity tokens
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL       string        `yaml:"url"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	StatusTTL time.Duration `yaml:"status_ttl"` // status projection cache TTL
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

type MailConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
	LoginURL  string `yaml:"login_url"` // linked from welcome emails
}

// EngineConfig collects the behavior knobs that used to be scattered across
// near-duplicate creation/redemption flows; every historical variant is a
// configuration point here.
type EngineConfig struct {
	// OwnershipCheck: "strict" means only the owning account may redeem a
	// code; "lenient" lets any authenticated user redeem a code they know.
	OwnershipCheck string `yaml:"ownership_check"`
	// EmailFormat: "html" | "plain".
	EmailFormat string `yaml:"email_format"`
	// CredentialMode: "hex" generates a random xxx-xxx-xxx-xxx password;
	// "placeholder" uses a fixed password with a forced change on first login.
	CredentialMode string `yaml:"credential_mode"`
	// EnrolRole is the fixed role granted on redemption.
	EnrolRole string `yaml:"enrol_role"`
	// ExamPassRatio: grades below this fraction of the exam's max grade
	// project as failed.
	ExamPassRatio float64 `yaml:"exam_pass_ratio"`
	// RateLimitPerMinute caps redemption attempts per actor; 0 disables.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	DBRetry   RetryConfig `yaml:"db_retry"`
	MailRetry RetryConfig `yaml:"mail_retry"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Mail     MailConfig     `yaml:"mail"`
	Engine   EngineConfig   `yaml:"engine"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(configPath string, dev bool) (*Config, error) {
	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Engine.OwnershipCheck == "" {
		cfg.Engine.OwnershipCheck = "strict"
	}
	if cfg.Engine.EmailFormat == "" {
		cfg.Engine.EmailFormat = "html"
	}
	if cfg.Engine.CredentialMode == "" {
		cfg.Engine.CredentialMode = "hex"
	}
	if cfg.Engine.EnrolRole == "" {
		cfg.Engine.EnrolRole = "student"
	}
	if cfg.Engine.ExamPassRatio <= 0 {
		cfg.Engine.ExamPassRatio = 0.84
	}
	cfg.Engine.DBRetry = normalizeRetry(cfg.Engine.DBRetry, 3, 200*time.Millisecond)
	cfg.Engine.MailRetry = normalizeRetry(cfg.Engine.MailRetry, 2, time.Second)
	if cfg.Redis.StatusTTL <= 0 {
		cfg.Redis.StatusTTL = 30 * time.Second
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Engine.OwnershipCheck != "strict" && cfg.Engine.OwnershipCheck != "lenient" {
		return nil, fmt.Errorf("engine.ownership_check must be strict or lenient, got %q", cfg.Engine.OwnershipCheck)
	}
	if cfg.Engine.CredentialMode != "hex" && cfg.Engine.CredentialMode != "placeholder" {
		return nil, fmt.Errorf("engine.credential_mode must be hex or placeholder, got %q", cfg.Engine.CredentialMode)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// applyEnv lets secrets come from the environment so they stay out of the
// config file in deployments.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("API_SECRET"); v != "" {
		cfg.Server.APISecret = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Mail.Password = v
	}
}

func normalizeRetry(rc RetryConfig, attempts int, backoff time.Duration) RetryConfig {
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = attempts
	}
	if rc.Backoff <= 0 {
		rc.Backoff = backoff
	}
	return rc
}
