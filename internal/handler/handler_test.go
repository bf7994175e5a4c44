package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"oxigame/internal/config"
	"oxigame/internal/economy"
	"oxigame/internal/infrastructure/database"
	"oxigame/pkg/response"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRouter(t *testing.T, mutate func(cfg *config.Config)) *gin.Engine {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		Auth:      config.AuthConfig{SharedSecret: "secret"},
		Kafka:     config.KafkaConfig{Topic: config.KafkaTopicConfig{AccountEvent: "oxi.account.events"}},
		RateLimit: config.RateLimitConfig{Requests: 100, WindowSeconds: 60},
		Business: config.BusinessConfig{
			LockTTLSeconds:      5,
			LockRetryIntervalMs: 5,
			LockMaxRetries:      100,
		},
		Economy: config.EconomyConfig{
			DefaultRatePerHour: 1000,
			ReferralBonus:      25000,
			VaultCapacity:      map[string]uint64{"1": 5000, "2": 12000},
			Upgrades: map[string]map[string]config.UpgradeRow{
				economy.SlotKindMiner: {"2": {BuyPrice: 2000, TokensAdd: 500}},
				economy.SlotKindVault: {"2": {BuyPrice: 4000}},
			},
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	rules, err := cfg.Economy.Rules()
	require.NoError(t, err)

	return SetupRouter(db, rdb, cfg, rules)
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) (response.Response, map[string]interface{}) {
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]interface{})
	return resp, data
}

func register(r *gin.Engine, id uint64, referral string) *httptest.ResponseRecorder {
	body := map[string]interface{}{
		"password": "secret",
		"id":       id,
		"username": fmt.Sprintf("player%d", id),
		"language": "en",
	}
	if referral != "" {
		body["from_referal"] = referral
	}
	return doJSON(r, http.MethodPost, "/api/v1/account/register", body)
}

func TestRegisterAndGetData(t *testing.T) {
	r := setupRouter(t, nil)

	w := register(r, 1001, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp, data := decode(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)
	account := data["account"].(map[string]interface{})
	assert.Equal(t, "f97555", account["referral_code"])

	w = doJSON(r, http.MethodPost, "/api/v1/account/data", map[string]interface{}{"id": 1001})
	require.Equal(t, http.StatusOK, w.Code)
	_, data = decode(t, w)
	assert.Equal(t, "1001", data["id"])
	assert.Equal(t, float64(5000), data["vault_capacity"])
	assert.Equal(t, float64(0), data["referral_count"])

	// 旧版路由
	w = doJSON(r, http.MethodPost, "/api/data", map[string]interface{}{"id": 1001})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterErrors(t *testing.T) {
	r := setupRouter(t, nil)

	w := doJSON(r, http.MethodPost, "/newaccount", map[string]interface{}{
		"password": "wrong", "id": 1001, "language": "en",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp, _ := decode(t, w)
	assert.Equal(t, response.CodeUnauthorized, resp.Code)

	w = doJSON(r, http.MethodPost, "/newaccount", map[string]interface{}{
		"password": "secret", "id": 1001,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, http.StatusOK, register(r, 1001, "").Code)
	w = register(r, 1001, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	resp, _ = decode(t, w)
	assert.Equal(t, response.CodeAccountExists, resp.Code)
}

func TestRegisterWithReferral(t *testing.T) {
	r := setupRouter(t, nil)

	require.Equal(t, http.StatusOK, register(r, 1001, "").Code)
	w := register(r, 1002, "f97555")
	require.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	assert.Equal(t, true, data["referred"])

	w = doJSON(r, http.MethodPost, "/api/v1/account/data", map[string]interface{}{"id": 1001})
	_, data = decode(t, w)
	assert.Equal(t, float64(25000), data["balance"])
	assert.Equal(t, float64(1), data["referral_count"])
}

func TestGetDataNotFound(t *testing.T) {
	r := setupRouter(t, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/account/data", map[string]interface{}{"id": 404})
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp, _ := decode(t, w)
	assert.Equal(t, response.CodeAccountNotFound, resp.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/account/data", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClaim(t *testing.T) {
	r := setupRouter(t, nil)
	require.Equal(t, http.StatusOK, register(r, 1001, "").Code)

	w := doJSON(r, http.MethodPost, "/api/v1/account/claim", map[string]interface{}{"id": 1001})
	require.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	assert.Equal(t, "1001", data["id"])

	w = doJSON(r, http.MethodPost, "/api/v1/account/claim", map[string]interface{}{"id": 404})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClaimLegacy(t *testing.T) {
	r := setupRouter(t, nil)
	require.Equal(t, http.StatusOK, register(r, 1001, "").Code)

	w := doJSON(r, http.MethodGet, "/claim_tokens", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/claim_tokens?user="+url.QueryEscape("not json"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/claim_tokens?user="+url.QueryEscape(`{"name":"x"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/claim_tokens?user="+url.QueryEscape(`{"id":1001,"first_name":"A"}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	assert.Equal(t, "1001", data["id"])
}

func TestUpgradeErrors(t *testing.T) {
	r := setupRouter(t, nil)
	require.Equal(t, http.StatusOK, register(r, 1001, "").Code)

	w := doJSON(r, http.MethodPost, "/api/v1/account/upgrade", map[string]interface{}{"id": 1001, "slot": "miner_1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp, _ := decode(t, w)
	assert.Equal(t, response.CodeBalanceNotEnough, resp.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/account/upgrade", map[string]interface{}{"id": 1001, "slot": "turbo_1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp, _ = decode(t, w)
	assert.Equal(t, response.CodeUnknownSlot, resp.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/account/upgrade", map[string]interface{}{"id": 1001, "slot": "miner_2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp, _ = decode(t, w)
	assert.Equal(t, response.CodeMaxTier, resp.Code)
}

func TestRateLimit(t *testing.T) {
	r := setupRouter(t, func(cfg *config.Config) {
		cfg.RateLimit.Requests = 2
	})
	require.Equal(t, http.StatusOK, register(r, 1001, "").Code)

	for i := 0; i < 2; i++ {
		w := doJSON(r, http.MethodPost, "/api/v1/account/data", map[string]interface{}{"id": 1001})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(r, http.MethodPost, "/api/v1/account/data", map[string]interface{}{"id": 1001})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	resp, _ := decode(t, w)
	assert.Equal(t, response.CodeTooManyRequests, resp.Code)

	// 注册接口不限流
	assert.Equal(t, http.StatusOK, register(r, 1002, "").Code)
}

func TestHealthAndRequestID(t *testing.T) {
	r := setupRouter(t, nil)

	w := doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	w = doJSON(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
