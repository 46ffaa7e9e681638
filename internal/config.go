package internal

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Messaging     MessagingConfig     `mapstructure:"messaging"`
	Dispatch      DispatchConfig      `mapstructure:"dispatch"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// SecurityConfig carries the public key used to verify dashboard bearer
// tokens. Token issuance lives in the auth service, not here.
type SecurityConfig struct {
	JWTPublicKey string `mapstructure:"jwt_public_key"`
}

// MessagingConfig configures the group-messaging provider and the token the
// payment gateway presents on callbacks.
type MessagingConfig struct {
	ProviderURL   string        `mapstructure:"provider_url"`
	APIKey        string        `mapstructure:"api_key"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	CallbackToken string        `mapstructure:"callback_token"`
}

// DispatchConfig is the retry policy for channel delivery.
type DispatchConfig struct {
	MaxAttempts          int           `mapstructure:"max_attempts"`
	BaseBackoff          time.Duration `mapstructure:"base_backoff"`
	MaxBackoff           time.Duration `mapstructure:"max_backoff"`
	NotFoundRecheckDelay time.Duration `mapstructure:"notfound_recheck_delay"`
	RedeliverInterval    time.Duration `mapstructure:"redeliver_interval"`
	RedeliverBatchSize   int           `mapstructure:"redeliver_batch_size"`
}

// QueueConfig enables Kafka-backed dispatch for multi-instance deployments.
// When disabled, dispatch runs in-process off the event bus.
type QueueConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds the config from environment variables for
// container deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", ""),
			AllowedOrigins:    getEnv("SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			JWTPublicKey: getEnv("JWT_PUBLIC_KEY", ""),
		},
		Messaging: MessagingConfig{
			ProviderURL:   getEnv("MESSAGING_PROVIDER_URL", ""),
			APIKey:        getEnv("MESSAGING_API_KEY", ""),
			SendTimeout:   getEnvAsDuration("MESSAGING_SEND_TIMEOUT", 10*time.Second),
			CallbackToken: getEnv("GATEWAY_CALLBACK_TOKEN", ""),
		},
		Dispatch: DispatchConfig{
			MaxAttempts:          getEnvAsInt("DISPATCH_MAX_ATTEMPTS", 5),
			BaseBackoff:          getEnvAsDuration("DISPATCH_BASE_BACKOFF", time.Second),
			MaxBackoff:           getEnvAsDuration("DISPATCH_MAX_BACKOFF", 8*time.Second),
			NotFoundRecheckDelay: getEnvAsDuration("DISPATCH_NOTFOUND_RECHECK_DELAY", 250*time.Millisecond),
			RedeliverInterval:    getEnvAsDuration("DISPATCH_REDELIVER_INTERVAL", 30*time.Second),
			RedeliverBatchSize:   getEnvAsInt("DISPATCH_REDELIVER_BATCH_SIZE", 50),
		},
		Queue: QueueConfig{
			Enabled: getEnv("QUEUE_ENABLED", "false") == "true",
			Brokers: splitNonEmpty(getEnv("QUEUE_BROKERS", "")),
			Topic:   getEnv("QUEUE_TOPIC", "storefront.dispatch"),
			GroupID: getEnv("QUEUE_GROUP_ID", "storefront-dispatch"),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnv("METRICS_ENABLED", "true") == "true",
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Messaging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("messaging config: %v", err))
	}

	if err := c.Dispatch.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("dispatch config: %v", err))
	}

	if err := c.Queue.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("queue config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *MessagingConfig) Validate() error {
	if c.ProviderURL == "" {
		return errors.New("provider_url is required")
	}
	if c.SendTimeout <= 0 {
		return errors.New("send_timeout must be positive")
	}
	return nil
}

func (c *DispatchConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("max_attempts must be at least 1")
	}
	if c.BaseBackoff <= 0 {
		return errors.New("base_backoff must be positive")
	}
	if c.MaxBackoff < c.BaseBackoff {
		return errors.New("max_backoff must be >= base_backoff")
	}
	return nil
}

func (c *QueueConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return errors.New("brokers are required when queue is enabled")
	}
	if c.Topic == "" {
		return errors.New("topic is required when queue is enabled")
	}
	return nil
}

func (c *SecurityConfig) GetPublicKey() (*rsa.PublicKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}
