package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "postgres", cfg.Database.Password)
	assert.Equal(t, "salatiso", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "", cfg.MQTT.Broker)
	assert.Equal(t, "salatiso-escalation", cfg.MQTT.ClientID)
	assert.Equal(t, "", cfg.Webhook.URL)

	assert.Equal(t, ":8085", cfg.HTTP.Addr)

	assert.Equal(t, "escalation:event:", cfg.Escalation.EventChannelPrefix)
	assert.Equal(t, "escalation:user:", cfg.Escalation.UserChannelPrefix)
	assert.Equal(t, "escalation:updates", cfg.Escalation.UpdatesStream)
	assert.Equal(t, 30, cfg.Escalation.MetricsPollInterval)
	assert.Equal(t, "escalation:metrics:", cfg.Escalation.MetricsKeyPrefix)
	assert.Equal(t, 60, cfg.Escalation.MetricsTTL)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_PORT", "5433")
	os.Setenv("DB_USER", "test-user")
	os.Setenv("DB_PASSWORD", "test-password")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("MQTT_BROKER", "tcp://test-broker:1883")
	os.Setenv("WEBHOOK_URL", "https://hooks.example.com/escalations")
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("METRICS_POLL_INTERVAL", "10")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "console")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "test-user", cfg.Database.User)
	assert.Equal(t, "test-password", cfg.Database.Password)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "tcp://test-broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "https://hooks.example.com/escalations", cfg.Webhook.URL)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 10, cfg.Escalation.MetricsPollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestGetDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.local",
		Port:     5432,
		User:     "svc",
		Password: "secret",
		Database: "salatiso",
		SSLMode:  "require",
	}

	dsn := cfg.GetDSN()
	assert.Equal(t, "host=db.local port=5432 user=svc password=secret dbname=salatiso sslmode=require", dsn)
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PORT", "not-a-number")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
}
