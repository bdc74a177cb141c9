package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBookingSlots is the daily slot template offered to clients.
const DefaultBookingSlots = "09:00,10:00,11:00,14:00,15:00,16:00,17:00"

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	PublicBaseURL      string
	LogLevel           string
	BusinessName       string
	CORSAllowedOrigins []string

	// Storage
	StoreBackend  string // memory, redis or postgres
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Booking
	BookingTimezone string
	BookingSlots    []string
	DefaultRegion   string // phone region for numbers without a country code

	// Admin
	AdminJWTSecret string

	// Public form rate limiting
	BookingRateLimitPerSecond float64
	BookingRateLimitBurst     int

	// Email
	EmailProvider string // sendgrid, ses or stub
	OwnerEmail    string
	OwnerName     string
	EmailFromName string

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string

	// SES Email Configuration
	SESFromEmail        string
	SESConfigurationSet string

	// Notification delivery
	NotifyMode           string // inline or queue
	NotificationQueueURL string
	NotifyWorkerPoll     time.Duration

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		BusinessName:       getEnv("BUSINESS_NAME", "Prestige Automobiles"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", ""),

		StoreBackend:  strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", "redis"))),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		BookingTimezone: getEnv("BOOKING_TIMEZONE", "Europe/Paris"),
		BookingSlots:    getEnvAsList("BOOKING_SLOTS", DefaultBookingSlots),
		DefaultRegion:   strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "FR")),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		BookingRateLimitPerSecond: getEnvAsFloat("BOOKING_RATE_LIMIT_RPS", 0.2),
		BookingRateLimitBurst:     getEnvAsInt("BOOKING_RATE_LIMIT_BURST", 5),

		EmailProvider: strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		OwnerEmail:    getEnv("OWNER_EMAIL", ""),
		OwnerName:     getEnv("OWNER_NAME", ""),
		EmailFromName: getEnv("EMAIL_FROM_NAME", "Prestige Automobiles"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),

		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),

		NotifyMode:           strings.ToLower(strings.TrimSpace(getEnv("NOTIFY_MODE", "inline"))),
		NotificationQueueURL: getEnv("NOTIFICATION_QUEUE_URL", ""),
		NotifyWorkerPoll:     getEnvAsDuration("NOTIFY_WORKER_POLL", 10*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "eu-west-3"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// UsesSQS reports whether notifications go through the SQS queue.
func (c *Config) UsesSQS() bool {
	return c.NotifyMode == "queue" && strings.TrimSpace(c.NotificationQueueURL) != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
