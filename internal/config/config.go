// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database drivers accepted by DATABASE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// OTP store backends accepted by OTP_STORE.
const (
	OTPStoreMemory = "memory"
	OTPStoreRedis  = "redis"
)

// Delivery modes accepted by DELIVERY_MODE.
const (
	DeliveryQueue = "queue"
	DeliveryKafka = "kafka"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// HTTPAddr is the address the JSON API listens on (e.g. :5000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// DatabaseDriver selects the account store: "postgres" or "sqlite".
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	// DatabaseURL is the Postgres DSN; required when DatabaseDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SQLitePath is the database file used when DatabaseDriver is sqlite.
	SQLitePath string `mapstructure:"SQLITE_PATH"`
	// AutoMigrate applies embedded migrations at server startup.
	AutoMigrate bool `mapstructure:"AUTO_MIGRATE"`

	// TokenSecret is the HMAC secret for HS256 session tokens. Ignored when a key pair is set.
	TokenSecret string `mapstructure:"TOKEN_SECRET"`
	// TokenPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	TokenPrivateKey string `mapstructure:"TOKEN_PRIVATE_KEY"`
	// TokenPublicKey is the PEM-encoded public key or path to file; used with TOKEN_PRIVATE_KEY.
	TokenPublicKey string `mapstructure:"TOKEN_PUBLIC_KEY"`
	// TokenIssuer is the iss claim.
	TokenIssuer string `mapstructure:"TOKEN_ISSUER"`
	// TokenAudience is the aud claim.
	TokenAudience string `mapstructure:"TOKEN_AUDIENCE"`
	// TokenTTLRaw is the session token lifetime (e.g. "1h").
	TokenTTLRaw string `mapstructure:"TOKEN_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// PasswordMinLength is the minimum accepted password length in characters (runes).
	PasswordMinLength int `mapstructure:"PASSWORD_MIN_LENGTH"`

	// OTPDigits is the width of the numeric verification code.
	OTPDigits int `mapstructure:"OTP_DIGITS"`
	// OTPTTLRaw is how long a pending challenge stays valid (e.g. "10m"); "0" disables expiry.
	OTPTTLRaw string `mapstructure:"OTP_TTL"`
	// OTPMaxAttempts bounds wrong guesses per challenge; 0 means unlimited.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPStore selects the challenge table backend: "memory" or "redis".
	OTPStore string `mapstructure:"OTP_STORE"`
	// RedisURL is a redis:// URL or host:port; required when OTPStore is redis.
	RedisURL string `mapstructure:"REDIS_URL"`
	// RedisKeyPrefix namespaces challenge keys in Redis.
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`

	// RegistrationAllowedDomains is a comma-separated list of email domains allowed to register; empty allows all.
	RegistrationAllowedDomains string `mapstructure:"REGISTRATION_ALLOWED_DOMAINS"`
	// RegistrationPolicyFile is an optional Rego module (package orbit.registration) replacing the built-in policy.
	RegistrationPolicyFile string `mapstructure:"REGISTRATION_POLICY_FILE"`

	// DeliveryMode selects how OTP messages leave the request path: "queue" (in-process) or "kafka".
	DeliveryMode string `mapstructure:"DELIVERY_MODE"`
	// DeliveryBuffer is the in-process delivery queue capacity.
	DeliveryBuffer int `mapstructure:"DELIVERY_BUFFER"`
	// SMTPHost is the outbound mail relay; when empty, messages are only logged.
	SMTPHost string `mapstructure:"SMTP_HOST"`
	// SMTPPort is the outbound mail relay port.
	SMTPPort int `mapstructure:"SMTP_PORT"`
	// SMTPUsername authenticates to the relay (PLAIN auth).
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	// SMTPPassword authenticates to the relay (PLAIN auth).
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	// MailFrom is the From header of outgoing messages.
	MailFrom string `mapstructure:"MAIL_FROM"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// DeliveryKafkaTopic is the topic carrying delivery requests.
	DeliveryKafkaTopic string `mapstructure:"DELIVERY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the delivery worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// OTPReturnToClient when true enables dev OTP mode: no mail, codes kept for GET /dev/otp.
	// Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("HTTP_ADDR", ":5000")
	v.SetDefault("DATABASE_DRIVER", DriverSQLite)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "users.db")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("TOKEN_SECRET", "")
	v.SetDefault("TOKEN_PRIVATE_KEY", "")
	v.SetDefault("TOKEN_PUBLIC_KEY", "")
	v.SetDefault("TOKEN_ISSUER", "orbit-account")
	v.SetDefault("TOKEN_AUDIENCE", "orbit-api")
	v.SetDefault("TOKEN_TTL", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("PASSWORD_MIN_LENGTH", 1)
	v.SetDefault("OTP_DIGITS", 6)
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("OTP_STORE", OTPStoreMemory)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_KEY_PREFIX", "orbit:otp")
	v.SetDefault("REGISTRATION_ALLOWED_DOMAINS", "")
	v.SetDefault("REGISTRATION_POLICY_FILE", "")
	v.SetDefault("DELIVERY_MODE", DeliveryQueue)
	v.SetDefault("DELIVERY_BUFFER", 256)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("MAIL_FROM", "ORBIT Account <no-reply@localhost>")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("DELIVERY_KAFKA_TOPIC", "orbit-account-delivery")
	v.SetDefault("KAFKA_GROUP_ID", "orbit-account-delivery-worker")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "orbit-account")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" && cfg.HTTPAddr == "" {
		return nil, errors.New("config: GRPC_ADDR or HTTP_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	switch cfg.DatabaseDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when DATABASE_DRIVER=postgres")
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return nil, errors.New("config: SQLITE_PATH must be set when DATABASE_DRIVER=sqlite")
		}
	default:
		return nil, errors.New("config: DATABASE_DRIVER must be postgres or sqlite")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.OTPDigits < 4 || cfg.OTPDigits > 10 {
		return nil, errors.New("config: OTP_DIGITS must be between 4 and 10")
	}
	if cfg.OTPMaxAttempts < 0 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must not be negative")
	}

	cfg.OTPStore = strings.ToLower(strings.TrimSpace(cfg.OTPStore))
	switch cfg.OTPStore {
	case OTPStoreMemory:
	case OTPStoreRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("config: REDIS_URL must be set when OTP_STORE=redis")
		}
	default:
		return nil, errors.New("config: OTP_STORE must be memory or redis")
	}

	cfg.DeliveryMode = strings.ToLower(strings.TrimSpace(cfg.DeliveryMode))
	switch cfg.DeliveryMode {
	case DeliveryQueue:
	case DeliveryKafka:
		if len(cfg.KafkaBrokersList()) == 0 {
			return nil, errors.New("config: KAFKA_BROKERS must be set when DELIVERY_MODE=kafka")
		}
	default:
		return nil, errors.New("config: DELIVERY_MODE must be queue or kafka")
	}

	return &cfg, nil
}

// ValidateServer checks the settings only the API server needs (token signing material).
// cmd/migrate and cmd/worker do not sign tokens and skip this.
func (c *Config) ValidateServer() error {
	hasPair := c.TokenPrivateKey != "" || c.TokenPublicKey != ""
	if hasPair && (c.TokenPrivateKey == "" || c.TokenPublicKey == "") {
		return errors.New("config: TOKEN_PRIVATE_KEY and TOKEN_PUBLIC_KEY must be set together")
	}
	if !hasPair && len(c.TokenSecret) < 32 {
		return errors.New("config: TOKEN_SECRET must be at least 32 bytes when no key pair is set")
	}
	return nil
}

// TokenTTL parses TokenTTLRaw as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.TokenTTLRaw)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// OTPTTL parses OTPTTLRaw as a time.Duration. "0" (or any zero duration) disables expiry
// and returns 0. Returns 10m if unset or invalid.
func (c *Config) OTPTTL() time.Duration {
	raw := strings.TrimSpace(c.OTPTTLRaw)
	if raw == "0" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 10 * time.Minute
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	return splitList(c.KafkaBrokers)
}

// AllowedDomains returns the lower-cased registration domain allow-list.
func (c *Config) AllowedDomains() []string {
	out := splitList(c.RegistrationAllowedDomains)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
