package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformstrings "gatepass/pkg/platform/strings"
)

// Config is the full runtime configuration, assembled from .env, the process
// environment and an optional YAML policy file.
type Config struct {
	Environment string
	Server      Server
	Postgres    PostgresConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	NATS        NATSConfig
	Mail        MailConfig
	Auth        AuthConfig
	Expiry      ExpiryConfig
	Policy      PolicyDefaults
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// PostgresConfig is empty-URL disabled; in-memory stores are used instead.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	Partitions int32
}

// NATSConfig carries the gate console feed. Panic alerts for an estate go to
// SecuritySubject + "." + estate ID.
type NATSConfig struct {
	URL             string
	SecuritySubject string
}

type MailConfig struct {
	MailerSendKey string
	From          string
	FromName      string
	DevMode       bool
}

type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
	AdminToken    string
	TokenTTL      time.Duration
}

// ExpiryConfig selects how pass deadlines are enforced. Backend is "timer"
// (in-process) or "redis" (shared due-queue).
type ExpiryConfig struct {
	Backend      string
	PollInterval time.Duration
	BatchSize    int
}

// PolicyDefaults are applied to newly registered estates.
type PolicyDefaults struct {
	BlockOnBlacklist   bool `yaml:"block_on_blacklist"`
	PassHistoryLimit   int  `yaml:"pass_history_limit"`
	AdminFanout        int  `yaml:"admin_fanout"`
	NotifyFailureLimit int  `yaml:"notify_failure_limit"`
}

const (
	defaultPassHistoryLimit = 10
	defaultAdminFanout      = 8
	// consecutive failures before a notification channel falls back
	defaultNotifyFailureLimit = 3
)

// Load reads .env (if present), the environment and the policy file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("GATEPASS_ENV", "development"),
		Server: Server{
			Addr:           getEnv("GATEPASS_ADDR", ":8080"),
			ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 5*time.Second),
			WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			RequestTimeout: getDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			AllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Postgres: PostgresConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    getList("KAFKA_BROKERS", nil),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "gatepass.audit"),
			Partitions: int32(getInt("KAFKA_PARTITIONS", 3)),
		},
		NATS: NATSConfig{
			URL:             getEnv("NATS_URL", ""),
			SecuritySubject: getEnv("NATS_SECURITY_SUBJECT", "gatepass.security"),
		},
		Mail: MailConfig{
			MailerSendKey: getEnv("MAILERSEND_API_KEY", ""),
			From:          getEnv("MAIL_FROM", "alerts@gatepass.local"),
			FromName:      getEnv("MAIL_FROM_NAME", "Gatepass Alerts"),
			DevMode:       getBool("MAIL_DEV_MODE", true),
		},
		Auth: AuthConfig{
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        getEnv("JWT_ISSUER", "gatepass"),
			Audience:      getEnv("JWT_AUDIENCE", "gatepass-api"),
			AdminToken:    getEnv("ADMIN_API_TOKEN", ""),
			TokenTTL:      getDuration("JWT_TOKEN_TTL", 12*time.Hour),
		},
		Expiry: ExpiryConfig{
			Backend:      getEnv("EXPIRY_BACKEND", "timer"),
			PollInterval: getDuration("EXPIRY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getInt("EXPIRY_BATCH_SIZE", 100),
		},
		Policy: PolicyDefaults{
			PassHistoryLimit:   defaultPassHistoryLimit,
			AdminFanout:        defaultAdminFanout,
			NotifyFailureLimit: defaultNotifyFailureLimit,
		},
	}

	if path := getEnv("GATEPASS_POLICY_FILE", ""); path != "" {
		if err := cfg.loadPolicyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadPolicyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	var file struct {
		Estate PolicyDefaults `yaml:"estate"`
	}
	file.Estate = c.Policy
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}
	c.Policy = file.Estate
	return nil
}

// Validate rejects configurations that would run insecurely in production.
func (c *Config) Validate() error {
	if c.Policy.PassHistoryLimit <= 0 {
		c.Policy.PassHistoryLimit = defaultPassHistoryLimit
	}
	if c.Policy.AdminFanout <= 0 {
		c.Policy.AdminFanout = defaultAdminFanout
	}
	if c.Policy.NotifyFailureLimit <= 0 {
		c.Policy.NotifyFailureLimit = defaultNotifyFailureLimit
	}
	switch c.Expiry.Backend {
	case "timer":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("EXPIRY_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown EXPIRY_BACKEND %q", c.Expiry.Backend)
	}
	if c.IsProduction() {
		if strings.HasPrefix(c.Auth.JWTSigningKey, "dev-") {
			return errors.New("JWT_SIGNING_KEY must be set in production")
		}
		if c.Auth.AdminToken == "" {
			return errors.New("ADMIN_API_TOKEN must be set in production")
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	if out := platformstrings.SplitList(value, ","); len(out) > 0 {
		return out
	}
	return fallback
}
