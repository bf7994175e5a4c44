package handler

import (
	"encoding/json"
	"strconv"

	"oxigame/internal/config"
	"oxigame/internal/economy"
	"oxigame/internal/service"
	"oxigame/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService  *service.AccountService
	registerService *service.RegisterService
	upgradeService  *service.UpgradeService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, rules *economy.Rules) *Handler {
	return &Handler{
		accountService:  service.NewAccountService(db, rdb, cfg, rules),
		registerService: service.NewRegisterService(db, rdb, cfg, rules),
		upgradeService:  service.NewUpgradeService(db, rdb, cfg, rules),
	}
}

// AccountIDRequest 只携带账户ID的请求体
type AccountIDRequest struct {
	ID uint64 `json:"id" binding:"required"`
}

// ============================================================
// 账户相关接口
// ============================================================

// Register 注册账户，可携带邀请码
// POST /api/v1/account/register
func (h *Handler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	resp, err := h.registerService.Register(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, resp)
}

// GetData 查询账户状态和待领取产出，不会修改数据
// POST /api/v1/account/data
func (h *Handler) GetData(c *gin.Context) {
	var req AccountIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	status, err := h.accountService.Peek(c.Request.Context(), strconv.FormatUint(req.ID, 10))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, status)
}

// Claim 领取待领取产出
// POST /api/v1/account/claim
func (h *Handler) Claim(c *gin.Context) {
	var req AccountIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	h.claim(c, req.ID)
}

// ClaimLegacy 旧版客户端的领取接口，账户ID放在 user 参数的 JSON 里
// GET /claim_tokens?user={"id":123}
func (h *Handler) ClaimLegacy(c *gin.Context) {
	raw, ok := c.GetQuery("user")
	if !ok {
		response.ParamError(c, "缺少 user 参数")
		return
	}

	var user struct {
		ID *uint64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		response.ParamError(c, "user 参数不是合法的 JSON")
		return
	}
	if user.ID == nil || *user.ID == 0 {
		response.ParamError(c, "user 参数缺少合法的 id")
		return
	}

	h.claim(c, *user.ID)
}

func (h *Handler) claim(c *gin.Context, id uint64) {
	status, err := h.accountService.Claim(c.Request.Context(), strconv.FormatUint(id, 10))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, status)
}

// Upgrade 购买升级
// POST /api/v1/account/upgrade
func (h *Handler) Upgrade(c *gin.Context) {
	var req service.UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	resp, err := h.upgradeService.Purchase(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, resp)
}
