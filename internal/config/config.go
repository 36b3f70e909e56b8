package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
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

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（Broker 为空时禁用通知推送）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// WebhookConfig Webhook 转发配置（URL 为空时禁用）
type WebhookConfig struct {
	URL            string
	TimeoutSeconds int
	RetryCount     int
}

// Config 升级事件服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	Webhook  WebhookConfig

	HTTP struct {
		Addr string
	}

	// 升级服务特定配置
	Escalation struct {
		// Redis 实时推送配置
		EventChannelPrefix string // 单事件推送通道前缀，如 "escalation:event:"
		UserChannelPrefix  string // 按用户推送通道前缀，如 "escalation:user:"
		UpdatesStream      string // 全量快照流，如 "escalation:updates"

		// 指标轮询配置（聚合指标采用轮询，单记录采用推送）
		MetricsPollInterval int    // 轮询间隔（秒），默认 30 秒
		MetricsKeyPrefix    string // 指标快照缓存键前缀，如 "escalation:metrics:"
		MetricsTTL          int    // 指标快照 TTL（秒）
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量 + 默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "salatiso")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "salatiso-escalation")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Webhook.URL = getEnv("WEBHOOK_URL", "")
	cfg.Webhook.TimeoutSeconds = getEnvInt("WEBHOOK_TIMEOUT", 10)
	cfg.Webhook.RetryCount = getEnvInt("WEBHOOK_RETRY_COUNT", 3)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8085")

	cfg.Escalation.EventChannelPrefix = getEnv("ESCALATION_EVENT_CHANNEL_PREFIX", "escalation:event:")
	cfg.Escalation.UserChannelPrefix = getEnv("ESCALATION_USER_CHANNEL_PREFIX", "escalation:user:")
	cfg.Escalation.UpdatesStream = getEnv("ESCALATION_UPDATES_STREAM", "escalation:updates")
	cfg.Escalation.MetricsPollInterval = getEnvInt("METRICS_POLL_INTERVAL", 30)
	cfg.Escalation.MetricsKeyPrefix = getEnv("METRICS_KEY_PREFIX", "escalation:metrics:")
	cfg.Escalation.MetricsTTL = getEnvInt("METRICS_TTL", 60)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
