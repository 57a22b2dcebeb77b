// Package config loads service settings from the environment. A .env file
// is read first when present, so local runs need no exported variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fundly/pkg/platform/strings"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	devSigningKey = "dev-secret-key-change-in-production"
	devAdminToken = "dev-admin-token"
	devGatewayKey = "dev-gateway-secret"
)

// Config holds every setting. Empty backend URLs select the in-memory
// implementation of that backend.
type Config struct {
	Addr            string        `mapstructure:"FUNDLY_ADDR"`
	Env             string        `mapstructure:"FUNDLY_ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	DatabaseMaxConns int32  `mapstructure:"DATABASE_MAX_CONNS"`
	DatabaseMinConns int32  `mapstructure:"DATABASE_MIN_CONNS"`

	RedisURL          string        `mapstructure:"REDIS_URL"`
	RedisPoolSize     int           `mapstructure:"REDIS_POOL_SIZE"`
	RedisMinIdleConns int           `mapstructure:"REDIS_MIN_IDLE_CONNS"`
	RedisDialTimeout  time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`
	RedisReadTimeout  time.Duration `mapstructure:"REDIS_READ_TIMEOUT"`
	RedisWriteTimeout time.Duration `mapstructure:"REDIS_WRITE_TIMEOUT"`

	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`
	AdminToken    string `mapstructure:"ADMIN_TOKEN"`
	LoginURL      string `mapstructure:"LOGIN_URL"`

	// GatewayCallbackSecret is the HMAC key payment gateway callbacks are
	// signed with.
	GatewayCallbackSecret string `mapstructure:"GATEWAY_CALLBACK_SECRET"`

	MinPledgeAmount    int64         `mapstructure:"MIN_PLEDGE_AMOUNT"`
	CodeResendCooldown time.Duration `mapstructure:"CODE_RESEND_COOLDOWN"`
	DraftTTL           time.Duration `mapstructure:"DRAFT_TTL"`
	MaxReceiptBytes    int64         `mapstructure:"MAX_RECEIPT_BYTES"`

	KafkaBrokers     string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic       string `mapstructure:"KAFKA_TOPIC"`
	RabbitMQURL      string `mapstructure:"RABBITMQ_URL"`
	RabbitMQExchange string `mapstructure:"RABBITMQ_EXCHANGE"`

	NotifyQueueSize int           `mapstructure:"NOTIFY_QUEUE_SIZE"`
	NotifyTimeout   time.Duration `mapstructure:"NOTIFY_TIMEOUT"`

	S3ReceiptBucket string `mapstructure:"S3_RECEIPT_BUCKET"`
	AWSRegion       string `mapstructure:"AWS_REGION"`

	ExpirySweepSchedule string  `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`
	SandboxDevCode      string  `mapstructure:"SANDBOX_DEV_CODE"`
	CORSAllowedOrigins  string  `mapstructure:"CORS_ALLOWED_ORIGINS"`
	TraceSampleRatio    float64 `mapstructure:"TRACE_SAMPLE_RATIO"`
}

// RedisConfig is the connection subset used by the redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

var defaults = map[string]any{
	"FUNDLY_ADDR":             ":8080",
	"FUNDLY_ENV":              EnvDevelopment,
	"LOG_LEVEL":               "info",
	"SHUTDOWN_TIMEOUT":        "15s",
	"DATABASE_URL":            "",
	"DATABASE_MAX_CONNS":      10,
	"DATABASE_MIN_CONNS":      1,
	"REDIS_URL":               "",
	"REDIS_POOL_SIZE":         10,
	"REDIS_MIN_IDLE_CONNS":    2,
	"REDIS_DIAL_TIMEOUT":      "5s",
	"REDIS_READ_TIMEOUT":      "3s",
	"REDIS_WRITE_TIMEOUT":     "3s",
	"JWT_SIGNING_KEY":         devSigningKey,
	"ADMIN_TOKEN":             devAdminToken,
	"LOGIN_URL":               "/login",
	"GATEWAY_CALLBACK_SECRET": devGatewayKey,
	"MIN_PLEDGE_AMOUNT":       10,
	"CODE_RESEND_COOLDOWN":    "45s",
	"DRAFT_TTL":               "24h",
	"MAX_RECEIPT_BYTES":       10 << 20,
	"KAFKA_BROKERS":           "",
	"KAFKA_TOPIC":             "fundly.events",
	"RABBITMQ_URL":            "",
	"RABBITMQ_EXCHANGE":       "fundly.events",
	"NOTIFY_QUEUE_SIZE":       256,
	"NOTIFY_TIMEOUT":          "5s",
	"S3_RECEIPT_BUCKET":       "",
	"AWS_REGION":              "eu-west-1",
	"EXPIRY_SWEEP_SCHEDULE":   "@every 15m",
	"SANDBOX_DEV_CODE":        "123456",
	"CORS_ALLOWED_ORIGINS":    "*",
	"TRACE_SAMPLE_RATIO":      1.0,
}

// Load reads envFile (if it exists) and then the process environment.
// Environment variables win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects development secrets outside development.
func (c *Config) Validate() error {
	if c.MinPledgeAmount <= 0 {
		return errors.New("MIN_PLEDGE_AMOUNT must be positive")
	}
	if c.CodeResendCooldown <= 0 {
		return errors.New("CODE_RESEND_COOLDOWN must be positive")
	}
	if c.MaxReceiptBytes <= 0 {
		return errors.New("MAX_RECEIPT_BYTES must be positive")
	}
	if c.GatewayCallbackSecret == "" {
		return errors.New("GATEWAY_CALLBACK_SECRET must be set")
	}
	if c.IsProduction() {
		if c.JWTSigningKey == devSigningKey {
			return errors.New("JWT_SIGNING_KEY must be set in production")
		}
		if c.AdminToken == devAdminToken {
			return errors.New("ADMIN_TOKEN must be set in production")
		}
		if c.GatewayCallbackSecret == devGatewayKey {
			return errors.New("GATEWAY_CALLBACK_SECRET must be set in production")
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c *Config) Redis() RedisConfig {
	return RedisConfig{
		URL:          c.RedisURL,
		PoolSize:     c.RedisPoolSize,
		MinIdleConns: c.RedisMinIdleConns,
		DialTimeout:  c.RedisDialTimeout,
		ReadTimeout:  c.RedisReadTimeout,
		WriteTimeout: c.RedisWriteTimeout,
	}
}

func (c *Config) KafkaBrokerList() []string {
	return strings.SplitList(c.KafkaBrokers)
}

func (c *Config) AllowedOrigins() []string {
	return strings.SplitList(c.CORSAllowedOrigins)
}
