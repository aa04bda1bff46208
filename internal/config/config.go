package config

import (
	"fmt"
	"github.com/joho/godotenv"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Local settings store
	LocalDBPath string

	// Identity provider
	IdentityURL    string
	IdentityAPIKey string

	// Notifications
	NotifyURL string

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort string

	// Sync
	SettleDelay     time.Duration
	ShareFlushDelay time.Duration

	// AWS S3
	AwsAccessKeyID      string
	AwsSecretAccessKey  string
	AwsRegion           string
	AwsS3Bucket         string
	AttachmentBaseS3URL string
	AttachmentMaxSizeMB int

	// App Defaults
	AppName string
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.LocalDBPath = getEnv("LOCAL_DB_PATH", "quicktexts.db")
	cfg.IdentityURL = getEnv("IDENTITY_URL", "https://identitytoolkit.googleapis.com")
	cfg.IdentityAPIKey = getEnv("IDENTITY_API_KEY", "")
	cfg.NotifyURL = getEnv("NOTIFY_URL", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.AttachmentBaseS3URL = getEnv("ATTACHMENT_BASE_S3_URL", "")
	cfg.AppName = getEnv("APP_NAME", "QuickTexts")

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "3600"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	settleDelayMs, err := strconv.ParseInt(getEnv("SETTLE_DELAY_MS", "500"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SETTLE_DELAY_MS: %w", err)
	}
	cfg.SettleDelay = time.Duration(settleDelayMs) * time.Millisecond

	shareFlushDelayMs, err := strconv.ParseInt(getEnv("SHARE_FLUSH_DELAY_MS", "1000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SHARE_FLUSH_DELAY_MS: %w", err)
	}
	cfg.ShareFlushDelay = time.Duration(shareFlushDelayMs) * time.Millisecond

	cfg.AttachmentMaxSizeMB, err = strconv.Atoi(getEnv("ATTACHMENT_MAX_SIZE_MB", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTACHMENT_MAX_SIZE_MB: %w", err)
	}

	return cfg, nil
}
