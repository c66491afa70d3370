package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "loracp", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "loracp/uplink/#", cfg.MQTT.Topic)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, 12, cfg.Digest.Len)
	assert.Equal(t, "", cfg.Digest.Secret)
	assert.Equal(t, 5*time.Minute, cfg.Dedup.Window)
	assert.Equal(t, "loracp:events", cfg.Events.Stream)
	assert.Equal(t, "lora-cp-relay", cfg.Relay.ConsumerGroup)
	assert.NotEmpty(t, cfg.Relay.ConsumerName)
	assert.Equal(t, 10, cfg.Relay.BatchSize)
	assert.Equal(t, "", cfg.Relay.CollectorURL)
	assert.Equal(t, 10*time.Second, cfg.Relay.CollectorTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("MQTT_ENABLED", "true")
	os.Setenv("MQTT_QOS", "2")
	os.Setenv("DIGEST_LEN", "8")
	os.Setenv("DIGEST_SECRET", "fleet-secret")
	os.Setenv("DEDUP_WINDOW_SECONDS", "120")
	os.Setenv("COLLECTOR_URL", "http://collector:9000")
	os.Setenv("LOG_LEVEL", "debug")

	defer func() {
		os.Unsetenv("HTTP_ADDR")
		os.Unsetenv("DB_HOST")
		os.Unsetenv("DB_NAME")
		os.Unsetenv("MQTT_ENABLED")
		os.Unsetenv("MQTT_QOS")
		os.Unsetenv("DIGEST_LEN")
		os.Unsetenv("DIGEST_SECRET")
		os.Unsetenv("DEDUP_WINDOW_SECONDS")
		os.Unsetenv("COLLECTOR_URL")
		os.Unsetenv("LOG_LEVEL")
	}()

	cfg := Load()

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
	assert.Equal(t, 8, cfg.Digest.Len)
	assert.Equal(t, "fleet-secret", cfg.Digest.Secret)
	assert.Equal(t, 2*time.Minute, cfg.Dedup.Window)
	assert.Equal(t, "http://collector:9000", cfg.Relay.CollectorURL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ClampsDigestLen(t *testing.T) {
	os.Setenv("DIGEST_LEN", "2")
	defer os.Unsetenv("DIGEST_LEN")

	cfg := Load()
	assert.Equal(t, 4, cfg.Digest.Len)
}

func TestGetDSN(t *testing.T) {
	c := DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "lora",
		Password: "pw",
		Database: "loracp",
		SSLMode:  "require",
	}
	assert.Equal(t, "host=db port=5433 user=lora password=pw dbname=loracp sslmode=require", c.GetDSN())
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_VAR", "test-value")
	defer os.Unsetenv("TEST_VAR")

	assert.Equal(t, "test-value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default-value", getEnv("NON_EXISTENT_VAR", "default-value"))
}
