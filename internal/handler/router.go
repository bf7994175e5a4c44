package handler

import (
	"net/http"
	"time"

	"oxigame/internal/config"
	"oxigame/internal/economy"
	"oxigame/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, rules *economy.Rules) *gin.Engine {
	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())
	r.Use(metrics.Middleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg, rules)

	// 查询和领取是客户端轮询的接口，需要限流
	limit := RateLimitMiddleware(rdb, cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)

	// API 路由组
	api := r.Group("/api/v1")
	{
		account := api.Group("/account")
		{
			account.POST("/register", h.Register)
			account.POST("/data", limit, h.GetData)
			account.POST("/claim", limit, h.Claim)
			account.POST("/upgrade", h.Upgrade)
		}
	}

	// 旧版客户端路由
	r.POST("/newaccount", h.Register)
	r.POST("/api/data", limit, h.GetData)
	r.GET("/claim_tokens", limit, h.ClaimLegacy)

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}
