package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	WorkerCount    int
	UseMemoryQueue bool

	// HTTP
	CORSAllowedOrigins []string

	// Booking policy
	LeadTime            time.Duration // minimum notice before the earliest bookable slot
	StartEndBuffer      int           // increments reserved before/after each booking
	PendingAbandonAfter time.Duration // pending bookings older than this are purged
	ChargeHorizon       time.Duration // how far ahead of start the charge task fires
	ReminderHorizon     time.Duration // how far ahead of start the reminder fires
	CareTeamGrantLead   time.Duration // temporary care-team grant before start
	ReviewWindow        time.Duration // post-call window before transcript archival
	OverdueCallGrace    time.Duration // grace past scheduled end before forced completion

	// Scheduler
	ScanInterval time.Duration

	// Redis (slot locks)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SlotLockTTL   time.Duration

	// AWS
	AWSRegion           string
	AWSEndpointOverride string
	TaskQueueURL        string
	TranscriptBucket    string

	// Email notifications
	EmailFromAddress string
	EmailFromName    string

	// Payments (InstaMed)
	InstaMedBaseURL   string
	InstaMedAPIKey    string
	InstaMedSecretKey string

	// Video/chat (Twilio)
	TwilioAccountSID string
	TwilioAPIKey     string
	TwilioAPISecret  string
	TwilioBaseURL    string

	// Auth
	JWTSecret string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),

		LeadTime:            getEnvAsDuration("BOOKING_LEAD_TIME", 2*time.Hour),
		StartEndBuffer:      getEnvAsInt("BOOKING_START_END_BUFFER", 1),
		PendingAbandonAfter: getEnvAsDuration("BOOKING_PENDING_ABANDON_AFTER", 24*time.Hour),
		ChargeHorizon:       getEnvAsDuration("BOOKING_CHARGE_HORIZON", 24*time.Hour),
		ReminderHorizon:     getEnvAsDuration("BOOKING_REMINDER_HORIZON", 2*time.Hour),
		CareTeamGrantLead:   getEnvAsDuration("BOOKING_CARE_TEAM_GRANT_LEAD", 30*time.Minute),
		ReviewWindow:        getEnvAsDuration("BOOKING_REVIEW_WINDOW", 72*time.Hour),
		OverdueCallGrace:    getEnvAsDuration("BOOKING_OVERDUE_CALL_GRACE", 10*time.Minute),

		ScanInterval: getEnvAsDuration("SCHEDULER_SCAN_INTERVAL", 5*time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SlotLockTTL:   getEnvAsDuration("SLOT_LOCK_TTL", 30*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		TaskQueueURL:        getEnv("TASK_QUEUE_URL", ""),
		TranscriptBucket:    getEnv("TRANSCRIPT_BUCKET", ""),

		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Telehealth"),

		InstaMedBaseURL:   getEnv("INSTAMED_BASE_URL", ""),
		InstaMedAPIKey:    getEnv("INSTAMED_API_KEY", ""),
		InstaMedSecretKey: getEnv("INSTAMED_SECRET_KEY", ""),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAPIKey:     getEnv("TWILIO_API_KEY", ""),
		TwilioAPISecret:  getEnv("TWILIO_API_SECRET", ""),
		TwilioBaseURL:    getEnv("TWILIO_BASE_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsSlice retrieves a comma-separated environment variable as a slice.
func getEnvAsSlice(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
