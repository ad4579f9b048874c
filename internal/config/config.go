package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Email    EmailConfig
	Storage  StorageConfig
	OAuth    OAuthConfig
}

type ServerConfig struct {
	Port            string        `env:"SERVER_PORT" envDefault:"8080"`
	Env             string        `env:"APP_ENV" envDefault:"dev"` // dev or prod
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	TrustedOrigins  []string      `env:"TRUSTED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

type DatabaseConfig struct {
	Driver         string `env:"DB_DRIVER" envDefault:"postgres"` // postgres or sqlite
	Host           string `env:"DB_HOST" envDefault:"localhost"`
	Port           string `env:"DB_PORT" envDefault:"5432"`
	User           string `env:"DB_USER" envDefault:"postgres"`
	Password       string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName         string `env:"DB_NAME" envDefault:"devhub"`
	SSLMode        string `env:"DB_SSLMODE" envDefault:"disable"`
	ChannelBinding string `env:"DB_CHANNEL_BINDING"` // "require" for Neon DB, empty for local
	SQLitePath     string `env:"DB_SQLITE_PATH" envDefault:"devhub.db"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuthConfig struct {
	// TokenFormat selects the token encoding: "paseto" (v4.local) or "jwt" (HS256)
	TokenFormat string `env:"TOKEN_FORMAT" envDefault:"paseto"`
	// Keys must be exactly 32 bytes and must differ from each other
	AccessTokenKey        string        `env:"ACCESS_TOKEN_KEY"`
	RefreshTokenKey       string        `env:"REFRESH_TOKEN_KEY"`
	AccessTokenDuration   time.Duration `env:"ACCESS_TOKEN_DURATION" envDefault:"15m"`
	RefreshTokenDuration  time.Duration `env:"REFRESH_TOKEN_DURATION" envDefault:"168h"`
	VerificationTicketTTL time.Duration `env:"VERIFICATION_TICKET_TTL" envDefault:"24h"`
	ResetTicketTTL        time.Duration `env:"RESET_TICKET_TTL" envDefault:"30m"`
	EmailChangeTicketTTL  time.Duration `env:"EMAIL_CHANGE_TICKET_TTL" envDefault:"24h"`
}

type EmailConfig struct {
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASS"`
	From         string `env:"EMAIL_FROM" envDefault:"DevHub <no-reply@devhub.local>"`
	FrontendURL  string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"` // used for links in emails
}

type StorageConfig struct {
	Endpoint      string `env:"S3_ENDPOINT"` // MinIO / R2 endpoint, empty for AWS
	Region        string `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket        string `env:"S3_BUCKET" envDefault:"devhub-avatars"`
	AccessKey     string `env:"S3_ACCESS_KEY"`
	SecretKey     string `env:"S3_SECRET_KEY"`
	PublicBaseURL string `env:"S3_PUBLIC_URL"`
	PhotoMaxBytes int64  `env:"PHOTO_MAX_BYTES" envDefault:"2097152"`
}

type OAuthConfig struct {
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string        `env:"GOOGLE_REDIRECT_URL" envDefault:"http://localhost:8080/auth/google/callback"`
	StateTTL           time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that have no sensible default
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.AccessTokenKey) != 32 {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_KEY must be exactly 32 bytes, got %d", len(c.Auth.AccessTokenKey)))
	}
	if len(c.Auth.RefreshTokenKey) != 32 {
		errs = append(errs, fmt.Errorf("REFRESH_TOKEN_KEY must be exactly 32 bytes, got %d", len(c.Auth.RefreshTokenKey)))
	}
	if c.Auth.AccessTokenKey != "" && c.Auth.AccessTokenKey == c.Auth.RefreshTokenKey {
		errs = append(errs, errors.New("ACCESS_TOKEN_KEY and REFRESH_TOKEN_KEY must differ"))
	}

	switch c.Auth.TokenFormat {
	case "paseto", "jwt":
	default:
		errs = append(errs, fmt.Errorf("TOKEN_FORMAT must be paseto or jwt, got %q", c.Auth.TokenFormat))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver))
	}

	if _, err := url.ParseRequestURI(c.Email.FrontendURL); err != nil {
		errs = append(errs, fmt.Errorf("FRONTEND_URL is invalid: %w", err))
	}

	if c.Storage.PhotoMaxBytes <= 0 {
		errs = append(errs, errors.New("PHOTO_MAX_BYTES must be positive"))
	}

	return errors.Join(errs...)
}

func (c *DatabaseConfig) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)

	// Add channel_binding if configured (required for Neon DB)
	if c.ChannelBinding != "" {
		connStr += fmt.Sprintf(" channel_binding=%s", c.ChannelBinding)
	}

	return connStr
}

// Address returns Redis connection address (host:port)
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}

// GoogleEnabled reports whether Google login credentials are configured
func (c *OAuthConfig) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
