package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	GatewayAuthBasic             = "basic"
	GatewayAuthClientCredentials = "client_credentials"

	AmountUnitCents = "cents"
	AmountUnitMajor = "major"

	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
	SessionStoreBolt   = "bolt"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Database configuration
	DBDriver         string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	SQLitePath       string

	// Payment gateway configuration
	GatewaySecretKey  string
	GatewayCompanyID  string
	GatewayBaseURL    string
	GatewayAuthMode   string
	GatewayTokenURL   string
	GatewayAmountUnit string
	GatewayTimeout    time.Duration
	GatewayRefPrefix  string

	// Catalog configuration, major units
	Price          float64
	OrderBumpPrice float64

	// Delivery configuration
	DeliveryURL     string
	BumpDeliveryURL string
	SupportURL      string

	// Checkout timings
	PollInterval      time.Duration
	ConfirmDelay      time.Duration
	SessionTTL        time.Duration
	ReconcileInterval time.Duration

	// Session store configuration
	SessionStore  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	BoltPath      string

	// Kafka configuration
	KafkaBrokers []string
	KafkaTopic   string

	// SMTP configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSender   string

	// Notification configuration
	TelegramBotToken string
	TelegramChatID   string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:       getEnvAsBool("DEVELOPMENT", false),
		APIPort:           getEnvAsInt("API_PORT", 8080),
		DBDriver:          getEnv("DB_DRIVER", DBDriverPostgres),
		PostgresUser:      getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:  getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:      getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:      getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:        getEnv("POSTGRES_DB", "vipcheckout"),
		SQLitePath:        getEnv("SQLITE_PATH", "vipcheckout.db"),
		GatewaySecretKey:  getEnv("ROKIFY_SECRET_KEY", ""),
		GatewayCompanyID:  getEnv("ROKIFY_COMPANY_ID", ""),
		GatewayBaseURL:    getEnv("GATEWAY_BASE_URL", "https://api.rokify.com.br/functions/v1"),
		GatewayAuthMode:   getEnv("GATEWAY_AUTH_MODE", GatewayAuthBasic),
		GatewayTokenURL:   getEnv("GATEWAY_TOKEN_URL", ""),
		GatewayAmountUnit: getEnv("GATEWAY_AMOUNT_UNIT", AmountUnitCents),
		GatewayTimeout:    getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),
		GatewayRefPrefix:  getEnv("GATEWAY_REF_PREFIX", "vip"),
		Price:             getEnvAsFloat("PRICE", 29.90),
		OrderBumpPrice:    getEnvAsFloat("ORDER_BUMP_PRICE", 9.90),
		DeliveryURL:       getEnv("DELIVERY_URL", ""),
		BumpDeliveryURL:   getEnv("BUMP_DELIVERY_URL", ""),
		SupportURL:        getEnv("SUPPORT_URL", ""),
		PollInterval:      getEnvAsDuration("POLL_INTERVAL", 5*time.Second),
		ConfirmDelay:      getEnvAsDuration("CONFIRM_DELAY", 1500*time.Millisecond),
		SessionTTL:        getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", time.Minute),
		SessionStore:      getEnv("SESSION_STORE", SessionStoreMemory),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvAsInt("REDIS_DB", 0),
		BoltPath:          getEnv("BOLT_PATH", "sessions.db"),
		KafkaBrokers:      getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "subscriber.paid"),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:          getEnv("SMTP_USER", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SMTPSender:        getEnv("SMTP_SENDER", ""),
		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:    getEnv("TELEGRAM_CHAT_ID", ""),
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.GatewaySecretKey == "" || c.GatewayCompanyID == "" {
		return fmt.Errorf("ROKIFY_SECRET_KEY and ROKIFY_COMPANY_ID are required")
	}

	if c.GatewayBaseURL == "" {
		return fmt.Errorf("GATEWAY_BASE_URL is required")
	}

	switch c.GatewayAuthMode {
	case GatewayAuthBasic:
	case GatewayAuthClientCredentials:
		if c.GatewayTokenURL == "" {
			return fmt.Errorf("GATEWAY_TOKEN_URL is required when GATEWAY_AUTH_MODE=%s", GatewayAuthClientCredentials)
		}
	default:
		return fmt.Errorf("invalid GATEWAY_AUTH_MODE %q", c.GatewayAuthMode)
	}

	if c.GatewayAmountUnit != AmountUnitCents && c.GatewayAmountUnit != AmountUnitMajor {
		return fmt.Errorf("invalid GATEWAY_AMOUNT_UNIT %q", c.GatewayAmountUnit)
	}

	if c.DeliveryURL == "" {
		return fmt.Errorf("DELIVERY_URL is required")
	}

	if c.Price <= 0 {
		return fmt.Errorf("PRICE must be positive")
	}

	if c.OrderBumpPrice < 0 {
		return fmt.Errorf("ORDER_BUMP_PRICE cannot be negative")
	}

	if c.PollInterval <= 0 || c.SessionTTL <= 0 || c.ReconcileInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL, SESSION_TTL and RECONCILE_INTERVAL must be positive")
	}

	if c.ConfirmDelay < 0 {
		return fmt.Errorf("CONFIRM_DELAY cannot be negative")
	}

	switch c.DBDriver {
	case DBDriverPostgres:
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	case DBDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("invalid DB_DRIVER %q", c.DBDriver)
	}

	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreRedis, SessionStoreBolt:
	default:
		return fmt.Errorf("invalid SESSION_STORE %q", c.SessionStore)
	}

	if c.TelegramBotToken != "" && c.TelegramChatID == "" {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(strings.Replace(valueStr, ",", ".", 1), 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsList(name string) []string {
	valueStr, exists := os.LookupEnv(name)
	if !exists {
		return nil
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
