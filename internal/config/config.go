package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	MongoDB  string
	Port     string

	JWTSecret string
	JWTTTL    time.Duration

	Razorpay struct {
		KeyID     string
		KeySecret string
		BaseURL   string
	}

	PayPal struct {
		Mode         string
		ClientID     string
		ClientSecret string
		BaseURL      string
	}

	GatewayTimeout time.Duration
	GatewayRetries int

	// PublicBaseURL is where gateways redirect back to this API.
	PublicBaseURL string
	FrontendURL   string

	SMTP struct {
		Host     string
		Port     int
		User     string
		Password string
		From     string
	}

	EncryptionKey string

	RedisAddr      string
	IdempotencyTTL time.Duration

	KafkaBrokers             string
	KafkaReconciliationTopic string

	AdminEmail    string
	AdminPassword string
}

// Load reads .env (if present) and the process environment once. Nothing
// else in the module reads environment variables.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	cfg.MongoURI = getEnvOrDefault("MONGOURI", "mongodb://localhost:27017")
	cfg.MongoDB = getEnvOrDefault("MONGO_DB", "aurumdb")
	cfg.Port = getEnvOrDefault("PORT", "5000")

	cfg.JWTSecret = getEnvOrDefault("JWT_SECRET", "")
	cfg.JWTTTL = getEnvAsDuration("JWT_TTL", 30*24*time.Hour)

	cfg.Razorpay.KeyID = getEnvOrDefault("RAZORPAY_KEY_ID", "")
	cfg.Razorpay.KeySecret = getEnvOrDefault("RAZORPAY_KEY_SECRET", "")
	cfg.Razorpay.BaseURL = getEnvOrDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1")

	cfg.PayPal.Mode = getEnvOrDefault("PAYPAL_MODE", "sandbox")
	cfg.PayPal.ClientID = getEnvOrDefault("PAYPAL_CLIENT_ID", "")
	cfg.PayPal.ClientSecret = getEnvOrDefault("PAYPAL_CLIENT_SECRET", "")
	cfg.PayPal.BaseURL = getEnvOrDefault("PAYPAL_BASE_URL", paypalBaseURL(cfg.PayPal.Mode))

	cfg.GatewayTimeout = getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second)
	cfg.GatewayRetries = getEnvAsInt("GATEWAY_RETRIES", 2)

	cfg.PublicBaseURL = strings.TrimRight(getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:"+cfg.Port), "/")
	cfg.FrontendURL = strings.TrimRight(getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"), "/")

	cfg.SMTP.Host = getEnvOrDefault("SMTP_HOST", "")
	cfg.SMTP.Port = getEnvAsInt("SMTP_PORT", 587)
	cfg.SMTP.User = getEnvOrDefault("SMTP_USER", "")
	cfg.SMTP.Password = getEnvOrDefault("SMTP_PASSWORD", "")
	cfg.SMTP.From = getEnvOrDefault("SMTP_FROM", "AURUM <no-reply@aurum.local>")

	cfg.EncryptionKey = getEnvOrDefault("ENCRYPTION_KEY", "")

	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", "")
	cfg.IdempotencyTTL = getEnvAsDuration("IDEMPOTENCY_TTL", 72*time.Hour)

	cfg.KafkaBrokers = getEnvOrDefault("KAFKA_BROKERS", "")
	cfg.KafkaReconciliationTopic = getEnvOrDefault("KAFKA_RECONCILIATION_TOPIC", "payment_reconciliation")

	cfg.AdminEmail = getEnvOrDefault("ADMIN_EMAIL", "admin@jewel.com")
	cfg.AdminPassword = getEnvOrDefault("ADMIN_PASSWORD", "")

	return cfg, nil
}

// Validate checks the settings the API server cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.MongoURI == "" {
		missing = append(missing, "MONGOURI")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Razorpay.KeySecret == "" {
		missing = append(missing, "RAZORPAY_KEY_SECRET")
	}
	if len(c.EncryptionKey) != 32 {
		missing = append(missing, "ENCRYPTION_KEY (32 bytes)")
	}
	if len(missing) > 0 {
		return errors.New("missing configuration: " + strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) KafkaBrokerList() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	return strings.Split(c.KafkaBrokers, ",")
}

func paypalBaseURL(mode string) string {
	if mode == "live" {
		return "https://api-m.paypal.com"
	}
	return "https://api-m.sandbox.paypal.com"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
