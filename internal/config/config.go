package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Worker    WorkerConfig
	Sources   SourcesConfig
	DB        DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Signing   SigningConfig
	Providers ProvidersConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WorkerConfig struct {
	Count int
}

type SourcesConfig struct {
	MOFHWEnabled bool
	MOFHWBaseURL string
	MOFHWAPIKey  string
	IDSPEnabled  bool
	IDSPBaseURL  string
	IDSPAPIKey   string
	Timeout      time.Duration
	AlertWindow  time.Duration
}

type DatabaseConfig struct {
	Path string
}

type RedisConfig struct {
	URL string
}

type QueueConfig struct {
	MaxAttempts  int
	RetryBase    time.Duration
	RetryMax     time.Duration
	Lease        time.Duration
	PollInterval time.Duration
}

type SigningConfig struct {
	Secret string
}

type ProvidersConfig struct {
	Order            []string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioNumber     string
	GupshupAPIKey    string
	TelegramToken    string
	DispatchTimeout  time.Duration
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Worker: WorkerConfig{
			Count: getEnvInt("WORKER_COUNT", 2),
		},
		Sources: SourcesConfig{
			MOFHWEnabled: getEnvBool("MOFHW_ENABLED", true),
			MOFHWBaseURL: getEnv("MOFHW_BASE_URL", "https://api.mofhw.gov.in/v1"),
			MOFHWAPIKey:  getEnv("MOFHW_API_KEY", ""),
			IDSPEnabled:  getEnvBool("IDSP_ENABLED", true),
			IDSPBaseURL:  getEnv("IDSP_BASE_URL", "https://idsp.nic.in/api/v1"),
			IDSPAPIKey:   getEnv("IDSP_API_KEY", ""),
			Timeout:      getEnvDuration("SOURCE_TIMEOUT", 10*time.Second),
			AlertWindow:  getEnvDuration("ALERT_WINDOW", 30*24*time.Hour),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/outbreak-alerts.db"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://127.0.0.1:6379"),
		},
		Queue: QueueConfig{
			MaxAttempts:  getEnvInt("QUEUE_MAX_ATTEMPTS", 5),
			RetryBase:    getEnvDuration("QUEUE_RETRY_BASE", 5*time.Minute),
			RetryMax:     getEnvDuration("QUEUE_RETRY_MAX", 24*time.Hour),
			Lease:        getEnvDuration("QUEUE_LEASE", 2*time.Minute),
			PollInterval: getEnvDuration("QUEUE_POLL_INTERVAL", 30*time.Second),
		},
		Signing: SigningConfig{
			Secret: getEnv("HMAC_SECRET_KEY", ""),
		},
		Providers: ProvidersConfig{
			Order:            splitList(getEnv("PROVIDER_ORDER", "twilio,gupshup,telegram")),
			TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			TwilioNumber:     getEnv("TWILIO_NUMBER", ""),
			GupshupAPIKey:    getEnv("GUPSHUP_API_KEY", ""),
			TelegramToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
			DispatchTimeout:  getEnvDuration("DISPATCH_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Signing.Secret == "" {
		return fmt.Errorf("HMAC_SECRET_KEY is required")
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue max attempts must be at least 1")
	}
	if c.Queue.Lease < time.Second {
		return fmt.Errorf("queue lease must be at least 1 second")
	}
	if c.Sources.AlertWindow < 24*time.Hour {
		return fmt.Errorf("alert window must be at least 24 hours")
	}

	valid := map[string]bool{"twilio": true, "gupshup": true, "telegram": true}
	if len(c.Providers.Order) == 0 {
		return fmt.Errorf("provider order must name at least one provider")
	}
	for _, name := range c.Providers.Order {
		if !valid[name] {
			return fmt.Errorf("unknown provider in PROVIDER_ORDER: %s", name)
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
