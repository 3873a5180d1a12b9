package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	PublicBaseURL     string `mapstructure:"PUBLIC_BASE_URL"`

	// Persistence.
	StoreDriver  string `mapstructure:"STORE_DRIVER"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`
	PostgresDSN  string `mapstructure:"POSTGRES_DSN"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisTaskDB   int    `mapstructure:"REDIS_TASK_DB"`

	// Task queue.
	TaskQueue         string `mapstructure:"TASK_QUEUE"`
	WorkerConcurrency int    `mapstructure:"WORKER_CONCURRENCY"`
	TaskMaxRetry      int    `mapstructure:"TASK_MAX_RETRY"`

	// Business hours and slot generation.
	BusinessTimezone       string   `mapstructure:"BUSINESS_TIMEZONE"`
	BusinessOpen           string   `mapstructure:"BUSINESS_OPEN"`
	BusinessClose          string   `mapstructure:"BUSINESS_CLOSE"`
	ClosedWeekdays         []string `mapstructure:"CLOSED_WEEKDAYS"`
	SlotGranularityMinutes int      `mapstructure:"SLOT_GRANULARITY_MINUTES"`
	MinLeadTimeMinutes     int      `mapstructure:"MIN_LEAD_TIME_MINUTES"`
	BookingHorizonDays     int      `mapstructure:"BOOKING_HORIZON_DAYS"`

	// Pricing.
	DepositPercent  int64  `mapstructure:"DEPOSIT_PERCENT"`
	MinDepositCents int64  `mapstructure:"MIN_DEPOSIT_CENTS"`
	Currency        string `mapstructure:"CURRENCY"`

	// Lifecycle.
	ReminderWindowHours        int    `mapstructure:"REMINDER_WINDOW_HOURS"`
	ReminderCron               string `mapstructure:"REMINDER_CRON"`
	CompletionCron             string `mapstructure:"COMPLETION_CRON"`
	CollaboratorTimeoutSeconds int    `mapstructure:"COLLABORATOR_TIMEOUT_SECONDS"`

	// Stripe.
	StripeKey           string `mapstructure:"STRIPE_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	// Twilio.
	TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `mapstructure:"TWILIO_FROM_NUMBER"`

	// Google Calendar.
	GoogleCredentialsFile string `mapstructure:"GOOGLE_CREDENTIALS_FILE"`
	GoogleCalendarID      string `mapstructure:"GOOGLE_CALENDAR_ID"`

	// RabbitMQ domain events.
	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MAX_REQUESTS_PER_MIN", 200)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("STORE_DRIVER", "mongo")
	v.SetDefault("DATABASE_URL", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("DATABASE_NAME", "washly")
	v.SetDefault("POSTGRES_DSN", "")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_CACHE_DB", 0)
	v.SetDefault("REDIS_TASK_DB", 1)

	v.SetDefault("TASK_QUEUE", "asynq")
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("TASK_MAX_RETRY", 5)

	v.SetDefault("BUSINESS_TIMEZONE", "UTC")
	v.SetDefault("BUSINESS_OPEN", "09:00")
	v.SetDefault("BUSINESS_CLOSE", "17:00")
	v.SetDefault("CLOSED_WEEKDAYS", []string{})
	v.SetDefault("SLOT_GRANULARITY_MINUTES", 30)
	v.SetDefault("MIN_LEAD_TIME_MINUTES", 60)
	v.SetDefault("BOOKING_HORIZON_DAYS", 60)

	v.SetDefault("DEPOSIT_PERCENT", 30)
	v.SetDefault("MIN_DEPOSIT_CENTS", 2000)
	v.SetDefault("CURRENCY", "usd")

	v.SetDefault("REMINDER_WINDOW_HOURS", 24)
	v.SetDefault("REMINDER_CRON", "*/15 * * * *")
	v.SetDefault("COMPLETION_CRON", "5 * * * *")
	v.SetDefault("COLLABORATOR_TIMEOUT_SECONDS", 10)

	// Credentials default to empty so AutomaticEnv still binds them on Unmarshal.
	v.SetDefault("STRIPE_KEY", "")
	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_FROM_NUMBER", "")
	v.SetDefault("GOOGLE_CREDENTIALS_FILE", "")
	v.SetDefault("GOOGLE_CALENDAR_ID", "primary")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "washly.bookings")
}

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := AppConfig.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
}

// Defaults returns a Config populated only with default values.
func Defaults() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		log.Fatalf("Failed to build default config: %v", err)
	}
	return c
}

// Validate checks the values the scheduling engine cannot run without.
func (c Config) Validate() error {
	if _, err := time.LoadLocation(c.BusinessTimezone); err != nil {
		return fmt.Errorf("BUSINESS_TIMEZONE %q: %w", c.BusinessTimezone, err)
	}
	open, err := ParseClock(c.BusinessOpen)
	if err != nil {
		return fmt.Errorf("BUSINESS_OPEN: %w", err)
	}
	closing, err := ParseClock(c.BusinessClose)
	if err != nil {
		return fmt.Errorf("BUSINESS_CLOSE: %w", err)
	}
	if closing <= open {
		return fmt.Errorf("BUSINESS_CLOSE %s must be after BUSINESS_OPEN %s", c.BusinessClose, c.BusinessOpen)
	}
	if c.SlotGranularityMinutes <= 0 {
		return fmt.Errorf("SLOT_GRANULARITY_MINUTES must be positive")
	}
	if c.MinLeadTimeMinutes < 0 {
		return fmt.Errorf("MIN_LEAD_TIME_MINUTES must not be negative")
	}
	if c.DepositPercent < 0 || c.DepositPercent > 100 {
		return fmt.Errorf("DEPOSIT_PERCENT must be within 0..100")
	}
	if c.MinDepositCents < 0 {
		return fmt.Errorf("MIN_DEPOSIT_CENTS must not be negative")
	}
	switch c.StoreDriver {
	case "mongo", "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.TaskQueue {
	case "asynq", "inline":
	default:
		return fmt.Errorf("unknown TASK_QUEUE %q", c.TaskQueue)
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// CollaboratorTimeout bounds every payment, calendar and SMS call.
func (c Config) CollaboratorTimeout() time.Duration {
	return time.Duration(c.CollaboratorTimeoutSeconds) * time.Second
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
