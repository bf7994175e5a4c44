package cache

import (
	"context"
	"fmt"
	"time"

	"oxigame/internal/config"
	"oxigame/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NewRedisClient 创建客户端并 Ping 一次确认可用
//
// 账户锁和限流计数都依赖 Redis，连不上时服务不能启动
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis %s 失败: %w", addr, err)
	}
	return client, nil
}

// InitRedis 启动时使用，失败直接退出
func InitRedis(cfg *config.RedisConfig) *redis.Client {
	client, err := NewRedisClient(context.Background(), cfg)
	if err != nil {
		logger.Log.Fatal("[Redis] 初始化失败", zap.Error(err))
	}

	logger.Log.Info("[Redis] 连接成功", zap.String("host", cfg.Host), zap.Int("port", cfg.Port), zap.Int("db", cfg.DB))
	return client
}
