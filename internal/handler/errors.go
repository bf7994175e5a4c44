package handler

import (
	"errors"
	"net/http"

	"oxigame/internal/service"
	"oxigame/pkg/logger"
	"oxigame/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	target     error
	httpStatus int
	code       int
}

// 按顺序匹配，ErrStorage 放最后，其他错误可能同时包装了它
var errorMappings = []errorMapping{
	{service.ErrUnauthorized, http.StatusUnauthorized, response.CodeUnauthorized},
	{service.ErrInvalidParam, http.StatusBadRequest, response.CodeParamError},
	{service.ErrUnknownSlot, http.StatusBadRequest, response.CodeUnknownSlot},
	{service.ErrMaxTier, http.StatusBadRequest, response.CodeMaxTier},
	{service.ErrInsufficientBalance, http.StatusBadRequest, response.CodeBalanceNotEnough},
	{service.ErrAccountExists, http.StatusConflict, response.CodeAccountExists},
	{service.ErrReferralCodeTaken, http.StatusConflict, response.CodeReferralCodeTaken},
	{service.ErrAccountNotFound, http.StatusNotFound, response.CodeAccountNotFound},
	{service.ErrBusy, http.StatusTooManyRequests, response.CodeBusy},
	{service.ErrInconsistent, http.StatusInternalServerError, response.CodeInconsistentData},
	{service.ErrStorage, http.StatusInternalServerError, response.CodeStorageError},
}

// writeError 把 service 层错误转换为 HTTP 响应，服务端错误不把内部信息返回给客户端
func writeError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		if m.httpStatus >= http.StatusInternalServerError {
			logger.Log.Error("[Handler] 请求处理失败",
				zap.String("path", c.FullPath()),
				zap.String("request_id", c.GetString(requestIDKey)),
				zap.Error(err),
			)
			response.Fail(c, m.httpStatus, m.code, m.target.Error())
			return
		}
		response.Fail(c, m.httpStatus, m.code, err.Error())
		return
	}

	logger.Log.Error("[Handler] 未分类的错误",
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.Error(err),
	)
	response.ServerError(c, "服务器内部错误")
}
