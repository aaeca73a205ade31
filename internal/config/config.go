package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AppName        string // brand used in verification mail
	LogLevel       string
	AllowedOrigins []string // CORS allowed origins

	UsersStorage  string // "file" | "s3"
	UsersFile     string
	UsersS3Bucket string
	UsersS3Key    string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	SMTP            SMTP
	VerificationTTL time.Duration
}

// SMTP holds the outbound mail settings. Username and Password are mandatory at send time,
// not at startup.
type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string // defaults to Username
	FromName string
	Timeout  time.Duration
}

// Load reads all configuration from environment variables.
func Load() *Config {
	username := os.Getenv("SMTP_USERNAME")
	return &Config{
		AppPort:        getEnv("APP_PORT", "8080"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AppName:        getEnv("APP_NAME", "RateMyLandlord"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		UsersStorage:   strings.ToLower(getEnv("USERS_STORAGE", "file")),
		UsersFile:      getEnv("USERS_FILE", "users.json"),
		UsersS3Bucket:  getEnv("USERS_S3_BUCKET", ""),
		UsersS3Key:     getEnv("USERS_S3_KEY", "users.json"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		SMTP: SMTP{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: username,
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", username),
			FromName: os.Getenv("SMTP_FROM_NAME"),
			Timeout:  getEnvDuration("SMTP_TIMEOUT", 30*time.Second),
		},
		VerificationTTL: getEnvDuration("VERIFICATION_TTL", 10*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvDuration accepts a Go duration ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
