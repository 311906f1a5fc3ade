package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnqueueWhenOffline = "offline"
	EnqueueAlways      = "always"
)

type Config struct {
	Server ServerConfig
	Logger LoggerConfig
	SQLite SQLiteConfig
	Sync   SyncConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
}

type ServerConfig struct {
	AppEnv   string
	HTTPAddr string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type SQLiteConfig struct {
	Path          string
	BusyTimeoutMs int
	MaxOpenConns  int
}

type SyncConfig struct {
	RemoteBaseURL     string
	MaxAttempts       int
	DrainIntervalSec  int
	DispatchTimeoutMs int
	PingPath         string
	PingIntervalSec  int
	EnqueuePolicy     string

	// ForceOffline skips the connectivity check and keeps every write in the queue.
	ForceOffline bool
}

func (c SyncConfig) DrainInterval() time.Duration {
	return time.Duration(c.DrainIntervalSec) * time.Second
}

func (c SyncConfig) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutMs) * time.Millisecond
}

func (c SyncConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSec) * time.Second
}

// Redis is optional. An empty Addr keeps locking in-process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Kafka is optional. Without brokers neither the event forwarder nor the
// sales listener is started.
type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
	SalesTopic  string
	GroupID     string
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:   getEnv("APP_ENV", "dev"),
			HTTPAddr: getEnv("HTTP_ADDR", ":8085"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		SQLite: SQLiteConfig{
			Path:          getEnv("SQLITE_PATH", "userData/database/omnipos.db"),
			BusyTimeoutMs: getEnvInt("SQLITE_BUSY_TIMEOUT_MS", 5000),
			MaxOpenConns:  getEnvInt("SQLITE_MAX_OPEN_CONNS", 1),
		},
		Sync: SyncConfig{
			RemoteBaseURL:     getEnv("SYNC_REMOTE_BASE_URL", "http://localhost:3000/api"),
			MaxAttempts:       getEnvInt("SYNC_MAX_ATTEMPTS", 5),
			DrainIntervalSec:  getEnvInt("SYNC_DRAIN_INTERVAL_SEC", 60),
			DispatchTimeoutMs: getEnvInt("SYNC_DISPATCH_TIMEOUT_MS", 10000),
			PingPath:         getEnv("SYNC_PING_PATH", "/ping"),
			PingIntervalSec:  getEnvInt("SYNC_PING_INTERVAL_SEC", 15),
			EnqueuePolicy:     strings.ToLower(getEnv("SYNC_ENQUEUE_POLICY", EnqueueWhenOffline)),
			ForceOffline:      getEnvBool("SYNC_FORCE_OFFLINE", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvSlice("KAFKA_BROKERS", nil),
			EventsTopic: getEnv("KAFKA_TOPIC_STOCK_EVENTS", "stock.events"),
			SalesTopic:  getEnv("KAFKA_TOPIC_SALES", "invoices.events"),
			GroupID:     getEnv("KAFKA_GROUP_STOCK", "stock-ledger"),
		},
	}
}

func (c *Config) Validate() error {
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be at least 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.DispatchTimeoutMs <= 0 {
		return fmt.Errorf("SYNC_DISPATCH_TIMEOUT_MS must be positive, got %d", c.Sync.DispatchTimeoutMs)
	}
	if c.Sync.DrainIntervalSec <= 0 {
		return fmt.Errorf("SYNC_DRAIN_INTERVAL_SEC must be positive, got %d", c.Sync.DrainIntervalSec)
	}
	switch c.Sync.EnqueuePolicy {
	case EnqueueWhenOffline, EnqueueAlways:
	default:
		return fmt.Errorf("unknown SYNC_ENQUEUE_POLICY %q", c.Sync.EnqueuePolicy)
	}
	if c.SQLite.Path == "" {
		return fmt.Errorf("SQLITE_PATH is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		out := []string{}
		for _, part := range strings.Split(value, ",") {
			if t := strings.TrimSpace(part); t != "" {
				out = append(out, t)
			}
		}
		return out
	}
	return fallback
}
