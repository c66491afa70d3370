package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brinsoko/LoRa-CP/internal/token"
)

// Config carries everything both binaries read from the environment.
type Config struct {
	HTTP struct {
		Addr string
	}
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	Digest   DigestConfig
	Dedup    DedupConfig
	Events   EventsConfig
	Relay    RelayConfig
	Log      struct {
		Level  string
		Format string
	}
}

// DatabaseConfig PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis connection settings (idempotency guard + event stream).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig gateway uplink subscription (disabled by default; HTTP ingest
// works without a broker).
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// DigestConfig tag digest parameters.
type DigestConfig struct {
	// Len is the truncated digest length in hex characters. See
	// token.DefaultLen for the storage/forgery tradeoff.
	Len int
	// Secret is the fleet-wide fallback key for devices provisioned without
	// a per-device secret.
	Secret string
}

// DedupConfig idempotency guard retention window.
type DedupConfig struct {
	Window time.Duration
}

// EventsConfig structured event stream.
type EventsConfig struct {
	Stream string
}

// RelayConfig event relay (consumer group + collector forwarding).
type RelayConfig struct {
	ConsumerGroup    string
	ConsumerName     string
	BatchSize        int
	CollectorURL     string
	CollectorTimeout time.Duration
}

// Load reads configuration from the environment. Missing variables fall
// back to defaults usable for local development.
func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "loracp")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "lora-cp")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "loracp/uplink/#")
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))

	cfg.Digest.Len = parseInt(getEnv("DIGEST_LEN", strconv.Itoa(token.DefaultLen)), token.DefaultLen)
	if cfg.Digest.Len < token.MinLen {
		cfg.Digest.Len = token.MinLen
	}
	cfg.Digest.Secret = getEnv("DIGEST_SECRET", "")

	cfg.Dedup.Window = time.Duration(parseInt(getEnv("DEDUP_WINDOW_SECONDS", "300"), 300)) * time.Second

	cfg.Events.Stream = getEnv("EVENTS_STREAM", "loracp:events")

	cfg.Relay.ConsumerGroup = getEnv("RELAY_CONSUMER_GROUP", "lora-cp-relay")
	cfg.Relay.ConsumerName = getEnv("RELAY_CONSUMER_NAME", defaultConsumerName())
	cfg.Relay.BatchSize = parseInt(getEnv("RELAY_BATCH_SIZE", "10"), 10)
	cfg.Relay.CollectorURL = getEnv("COLLECTOR_URL", "")
	cfg.Relay.CollectorTimeout = time.Duration(parseInt(getEnv("COLLECTOR_TIMEOUT_SECONDS", "10"), 10)) * time.Second

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func defaultConsumerName() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return "relay-" + hostname
	}
	return "relay-1"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
