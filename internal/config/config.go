package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"oxigame/pkg/logger"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Log       logger.Config   `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Business  BusinessConfig  `mapstructure:"business"`
	Economy   EconomyConfig   `mapstructure:"economy"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig 注册接口使用的共享密钥
type AuthConfig struct {
	SharedSecret string `mapstructure:"shared_secret"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	AccountEvent string `mapstructure:"account_event"`
}

// RateLimitConfig 轮询接口的限流参数（固定窗口）
type RateLimitConfig struct {
	Requests      int `mapstructure:"requests"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

type BusinessConfig struct {
	LockTTLSeconds      int `mapstructure:"lock_ttl_seconds"`
	LockRetryIntervalMs int `mapstructure:"lock_retry_interval_ms"`
	LockMaxRetries      int `mapstructure:"lock_max_retries"`
	MaxRetryCount       int `mapstructure:"max_retry_count"`
	OutboxIntervalMs    int `mapstructure:"outbox_interval_ms"`
	OutboxBatchSize     int `mapstructure:"outbox_batch_size"`
	ShutdownTimeoutSecs int `mapstructure:"shutdown_timeout_seconds"`
	SnowflakeWorkerID   int `mapstructure:"snowflake_worker_id"`
}

// LoadConfig 加载配置文件
//
// 读取顺序：.env（如果存在）-> yaml 文件 -> OXI_ 前缀环境变量覆盖
// 例如 OXI_AUTH_SHARED_SECRET 覆盖 auth.shared_secret
func LoadConfig(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("OXI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if config.Auth.SharedSecret == "" {
		return nil, fmt.Errorf("auth.shared_secret 不能为空")
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("rate_limit.requests", 120)
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("business.lock_retry_interval_ms", 100)
	v.SetDefault("business.lock_max_retries", 30)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.outbox_interval_ms", 500)
	v.SetDefault("business.outbox_batch_size", 100)
	v.SetDefault("business.shutdown_timeout_seconds", 5)
	v.SetDefault("business.snowflake_worker_id", 1)
	v.SetDefault("kafka.topic.account_event", "oxi.account.events")
}
