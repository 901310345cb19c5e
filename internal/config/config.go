package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration, loaded once at process start.
type Config struct {
	Port           string
	Env            string // dev | staging | production
	PublicBaseURL  string
	LogLevel       string
	CORSAllowedOrigins []string

	DatabaseURL string
	RedisURL    string

	// Studio identity — the single artist this deployment serves.
	ArtistID    string
	StudioName  string
	TourSchedule string // "City1:2026-08-10,City2:2026-09-01"

	AdminAPIKey string // authorizes admin endpoints; required in production

	PilotModeEnabled     bool
	PilotAllowlistPhones string // comma-separated E.164 numbers

	PanicModeEnabled bool

	FeatureSheetsEnabled        bool
	FeatureCalendarEnabled      bool
	FeatureRemindersEnabled     bool
	FeatureNotificationsEnabled bool

	OutboxEnabled    bool
	WhatsAppDryRun   bool
	WhatsAppAppSecret string // HMAC key for X-Hub-Signature-256
	WhatsAppVerifyToken string

	DepositRuleVersion string
	DepositAmountPence int

	StripeWebhookSecret string
	StripeAPIKey        string
	StripeDryRun        bool

	RateLimitEnabled       bool
	RateLimitRequests      float64
	RateLimitWindowSeconds int

	ActionTokenExpiryDays int

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	OperatorChatWebhookURL string

	SweeperInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	corsAllowedOrigins := []string{}
	if raw := strings.TrimSpace(getEnv("CORS_ALLOWED_ORIGINS", "")); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			origin = strings.TrimSpace(origin)
			if origin == "" {
				continue
			}
			corsAllowedOrigins = append(corsAllowedOrigins, origin)
		}
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("APP_ENV", "dev"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: corsAllowedOrigins,

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		ArtistID:     getEnv("ARTIST_ID", ""),
		StudioName:   getEnv("STUDIO_NAME", ""),
		TourSchedule: getEnv("TOUR_SCHEDULE", ""),

		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),

		PilotModeEnabled:     getEnvAsBool("PILOT_MODE_ENABLED", false),
		PilotAllowlistPhones: getEnv("PILOT_ALLOWLIST_NUMBERS", ""),

		PanicModeEnabled: getEnvAsBool("PANIC_MODE_ENABLED", false),

		FeatureSheetsEnabled:        getEnvAsBool("FEATURE_SHEETS_ENABLED", true),
		FeatureCalendarEnabled:      getEnvAsBool("FEATURE_CALENDAR_ENABLED", true),
		FeatureRemindersEnabled:     getEnvAsBool("FEATURE_REMINDERS_ENABLED", true),
		FeatureNotificationsEnabled: getEnvAsBool("FEATURE_NOTIFICATIONS_ENABLED", true),

		OutboxEnabled:       getEnvAsBool("OUTBOX_ENABLED", true),
		WhatsAppDryRun:      getEnvAsBool("WHATSAPP_DRY_RUN", false),
		WhatsAppAppSecret:   getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),

		DepositRuleVersion: getEnv("DEPOSIT_RULE_VERSION", "v1"),
		DepositAmountPence: getEnvAsInt("DEPOSIT_AMOUNT_PENCE", 0),

		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeAPIKey:        getEnv("STRIPE_API_KEY", ""),
		StripeDryRun:        getEnvAsBool("STRIPE_DRY_RUN", false),

		RateLimitEnabled:       getEnvAsBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests:      getEnvAsFloat("RATE_LIMIT_REQUESTS", 5),
		RateLimitWindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 1),

		ActionTokenExpiryDays: getEnvAsInt("ACTION_TOKEN_EXPIRY_DAYS", 7),

		SendGridAPIKey:         getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:      getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:       getEnv("SENDGRID_FROM_NAME", "Bookingbot"),
		OperatorChatWebhookURL: getEnv("OPERATOR_CHAT_WEBHOOK_URL", ""),

		SweeperInterval: getEnvAsDuration("SWEEPER_INTERVAL", 5*time.Minute),
	}
}

// IsProduction reports whether auth and signature checks must be strict.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

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
