package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL    string
	MigrateOnStart bool
	LogLevel       string
	Environment    string

	// Trigger endpoints
	HTTPAddr             string
	CronSecret           string
	TrustedInvokerHeader string // header set to "true" by a trusted scheduler, empty disables it

	// Calendar and reminders
	Timezone          string
	OpenLeadDays      int
	DeadlineTolerance time.Duration
	FiringWindow      time.Duration
	WeeklyWeekday     time.Weekday
	WeeklyHour        int
	TickTimeout       time.Duration
	AppBaseURL        string

	// In-process cron, off when the endpoints are triggered externally
	EnableInProcessCron bool
	CronSpecLifecycle   string
	CronSpecTick        string

	// Email transport
	MailAPIURL      string
	MailAPIKey      string // empty selects the logging transport
	MailFrom        string
	SendGap         time.Duration
	MaxSendAttempts int
	BackoffStep     time.Duration

	// Optional integrations
	RedisURL        string
	TelegramToken   string
	AdminTelegramID int64
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	cfg.MigrateOnStart = getBool("MIGRATE_ON_START", true)

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.HTTPAddr = getString("HTTP_ADDR", ":8080")
	cfg.CronSecret = os.Getenv("CRON_SECRET")
	cfg.TrustedInvokerHeader = os.Getenv("TRUSTED_INVOKER_HEADER")
	if cfg.CronSecret == "" && cfg.TrustedInvokerHeader == "" {
		return nil, fmt.Errorf("CRON_SECRET is not set")
	}

	cfg.Timezone = getString("TIMEZONE", "Europe/Paris")
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.OpenLeadDays = getInt("PERIOD_OPEN_LEAD_DAYS", 45)
	cfg.DeadlineTolerance = getDuration("REMINDER_DEADLINE_TOLERANCE", 15*time.Minute)
	cfg.FiringWindow = getDuration("REMINDER_FIRING_WINDOW", time.Hour)
	cfg.WeeklyWeekday = time.Weekday(getInt("REMINDER_WEEKLY_WEEKDAY", int(time.Monday)) % 7)
	cfg.WeeklyHour = getInt("REMINDER_WEEKLY_HOUR", 9)
	cfg.TickTimeout = getDuration("TICK_TIMEOUT", 5*time.Minute)
	cfg.AppBaseURL = os.Getenv("APP_BASE_URL")

	cfg.EnableInProcessCron = getBool("ENABLE_IN_PROCESS_CRON", false)
	cfg.CronSpecLifecycle = getString("CRON_SPEC_LIFECYCLE", "0 6 * * *")  // Default: 06:00 daily
	cfg.CronSpecTick = getString("CRON_SPEC_REMINDER_TICK", "*/15 * * * *") // Default: every 15 minutes

	cfg.MailAPIURL = getString("MAIL_API_URL", "https://api.resend.com")
	cfg.MailAPIKey = os.Getenv("MAIL_API_KEY")
	cfg.MailFrom = getString("MAIL_FROM", "Planning <noreply@example.org>")
	cfg.SendGap = getDuration("MAIL_SEND_GAP", 700*time.Millisecond)
	cfg.MaxSendAttempts = getInt("MAIL_MAX_ATTEMPTS", 3)
	cfg.BackoffStep = getDuration("MAIL_BACKOFF_STEP", 1200*time.Millisecond)

	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		id, err := strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
		cfg.AdminTelegramID = id
	}
	if cfg.TelegramToken != "" && cfg.AdminTelegramID == 0 {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is required when TELEGRAM_TOKEN is set")
	}

	return cfg, nil
}

// Location returns the configured timezone. Load has already validated it.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Malformed numeric values fall back to the default.
func getInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v < 0 {
		return def
	}
	return v
}
