package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aliasmail/backend/internal/service"
)

// 通用错误消息
const (
	// 请求相关
	MsgInvalidPage      = "page_id 缺失或无效"
	MsgRequestBodyEmpty = "请求体不能为空"
	MsgBodyTooLarge     = "请求体过大"
	MsgInvalidNote      = "note 必须为字符串或 null"
	MsgInvalidContact   = "联系人地址无效"

	// 别名相关
	MsgForbidden     = "无权访问该别名"
	MsgContactExists = "联系人已添加"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)

// errorMapping 业务错误到 HTTP 状态码与消息的映射，按顺序匹配
var errorMapping = []struct {
	err    error
	status int
	msg    string
}{
	{service.ErrInvalidPage, http.StatusBadRequest, MsgInvalidPage},
	{service.ErrInvalidContact, http.StatusBadRequest, MsgInvalidContact},
	{service.ErrForbidden, http.StatusForbidden, MsgForbidden},
	{service.ErrContactExists, http.StatusConflict, MsgContactExists},
}

// GetErrorMessage 获取错误的中文消息及状态码，未知错误按 500 处理
func GetErrorMessage(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.msg
		}
	}
	return http.StatusInternalServerError, MsgInternalError
}

// respondError 写出业务错误，500 类错误记录日志且不暴露细节
func (h *Handler) respondError(c *gin.Context, err error) {
	status, msg := GetErrorMessage(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
	}

	switch status {
	case http.StatusBadRequest:
		BadRequest(c, msg)
	case http.StatusForbidden:
		Forbidden(c, msg)
	case http.StatusConflict:
		Conflict(c, msg)
	case http.StatusInternalServerError:
		InternalError(c, msg)
	default:
		Error(c, status, msg)
	}
}

// respondBindError 请求体读取失败：超限返回 413，其余视为空请求体
func respondBindError(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		EntityTooLarge(c, MsgBodyTooLarge)
		return
	}
	BadRequest(c, MsgRequestBodyEmpty)
}
