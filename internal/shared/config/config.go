package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the academy waitlist service
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig

	Waitlist      WaitlistConfig
	Notifications NotificationConfig

	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string
}

// JWTConfig holds JWT verification settings. Tokens are issued by the external auth provider.
type JWTConfig struct {
	Secret string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled          bool          `json:"enabled"`
	WindowDuration   time.Duration `json:"window_duration"`
	DefaultRequests  int           `json:"default_requests"`
	PublicRequests   int           `json:"public_requests"`
	WaitlistRequests int           `json:"waitlist_requests"`
	RespondRequests  int           `json:"respond_requests"`
	WebhookRequests  int           `json:"webhook_requests"`
	AdminRequests    int           `json:"admin_requests"`
	HealthRequests   int           `json:"health_requests"`
	WhitelistedIPs   []string      `json:"whitelisted_ips"`
}

// WaitlistConfig holds the admission workflow settings
type WaitlistConfig struct {
	ResponseWindow      time.Duration
	MaxQueueLength      int
	NotificationTimeout time.Duration
	CapacityBackend     string // postgres | redis | memory
	LockBackend         string // redis | local
	LockTTL             time.Duration
	LockWait            time.Duration
	SweepEnabled        bool
	SweepInterval       time.Duration
	SweepBatchSize      int
	DefaultCapacity     int
}

// NotificationConfig holds outbound messaging settings
type NotificationConfig struct {
	Transport    string // direct | kafka
	SenderName   string
	MaxRetries   int
	RetryBackoff time.Duration
	LogRetention time.Duration

	Twilio TwilioConfig
	Email  EmailConfig
	Kafka  KafkaConfig
}

// TwilioConfig holds SMS provider credentials
type TwilioConfig struct {
	AccountSID       string
	AuthToken        string
	FromNumber       string
	ValidateWebhooks bool
	WebhookURL       string
}

// EmailConfig holds email provider configuration
type EmailConfig struct {
	Provider       string // sendgrid | smtp | console
	SendGridAPIKey string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	UseTLS         bool
	FromEmail      string
	FromName       string
}

// KafkaConfig holds broker settings for asynchronous delivery
type KafkaConfig struct {
	Brokers         []string
	Topic           string
	DeadLetterTopic string
	GroupID         string
	Workers         int
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "academy_db"),
			User:     getEnv("DB_USER", "academy_user"),
			Password: getEnv("DB_PASSWORD", "academy_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},

		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		},

		RateLimit: RateLimitConfig{
			Enabled:          getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:   getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:  getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			PublicRequests:   getIntEnv("RATE_LIMIT_PUBLIC_REQUESTS", 100),
			WaitlistRequests: getIntEnv("RATE_LIMIT_WAITLIST_REQUESTS", 20),
			RespondRequests:  getIntEnv("RATE_LIMIT_RESPOND_REQUESTS", 10),
			WebhookRequests:  getIntEnv("RATE_LIMIT_WEBHOOK_REQUESTS", 300),
			AdminRequests:    getIntEnv("RATE_LIMIT_ADMIN_REQUESTS", 200),
			HealthRequests:   getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 600),
			WhitelistedIPs:   getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		Waitlist: WaitlistConfig{
			ResponseWindow:      getDurationEnv("WAITLIST_RESPONSE_WINDOW", 24*time.Hour),
			MaxQueueLength:      getIntEnv("WAITLIST_MAX_QUEUE_LENGTH", 5),
			NotificationTimeout: getDurationEnv("WAITLIST_NOTIFICATION_TIMEOUT", 10*time.Second),
			CapacityBackend:     strings.ToLower(getEnv("CAPACITY_BACKEND", "postgres")),
			LockBackend:         strings.ToLower(getEnv("LOCK_BACKEND", "redis")),
			LockTTL:             getDurationEnv("WAITLIST_LOCK_TTL", 10*time.Second),
			LockWait:            getDurationEnv("WAITLIST_LOCK_WAIT", 5*time.Second),
			SweepEnabled:        getBoolEnv("WAITLIST_SWEEP_ENABLED", true),
			SweepInterval:       getDurationEnv("WAITLIST_SWEEP_INTERVAL", 5*time.Minute),
			SweepBatchSize:      getIntEnv("WAITLIST_SWEEP_BATCH_SIZE", 500),
			DefaultCapacity:     getIntEnv("SESSION_DEFAULT_CAPACITY", 8),
		},

		Notifications: NotificationConfig{
			Transport:    strings.ToLower(getEnv("NOTIFICATION_TRANSPORT", "direct")),
			SenderName:   getEnv("NOTIFICATION_SENDER_NAME", "RYP Golf"),
			MaxRetries:   getIntEnv("NOTIFICATION_MAX_RETRIES", 3),
			RetryBackoff: getDurationEnv("NOTIFICATION_RETRY_BACKOFF", 500*time.Millisecond),
			LogRetention: getDurationEnv("NOTIFICATION_LOG_RETENTION", 30*24*time.Hour),

			Twilio: TwilioConfig{
				AccountSID:       getEnv("TWILIO_ACCOUNT_SID", ""),
				AuthToken:        getEnv("TWILIO_AUTH_TOKEN", ""),
				FromNumber:       getEnv("TWILIO_PHONE_NUMBER", ""),
				ValidateWebhooks: getBoolEnv("TWILIO_VALIDATE_WEBHOOKS", true),
				WebhookURL:       getEnv("TWILIO_WEBHOOK_URL", ""),
			},

			Email: EmailConfig{
				Provider:       strings.ToLower(getEnv("EMAIL_PROVIDER", "console")),
				SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
				SMTPHost:       getEnv("SMTP_HOST", ""),
				SMTPPort:       getIntEnv("SMTP_PORT", 587),
				SMTPUsername:   getEnv("SMTP_USERNAME", ""),
				SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
				UseTLS:         getBoolEnv("SMTP_USE_TLS", true),
				FromEmail:      getEnv("FROM_EMAIL", "noreply@rypgolf.com"),
				FromName:       getEnv("FROM_NAME", "RYP Golf Academy"),
			},

			Kafka: KafkaConfig{
				Brokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
				Topic:           getEnv("KAFKA_NOTIFICATION_TOPIC", "waitlist-notifications"),
				DeadLetterTopic: getEnv("KAFKA_DEAD_LETTER_TOPIC", "waitlist-notifications-dlq"),
				GroupID:         getEnv("KAFKA_CONSUMER_GROUP", "academy-notification-workers"),
				Workers:         getIntEnv("KAFKA_CONSUMER_WORKERS", 2),
			},
		},

		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}

// TwilioConfigured reports whether SMS credentials are present
func (c *Config) TwilioConfigured() bool {
	t := c.Notifications.Twilio
	return t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != ""
}
