package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code int         `json:"code"`           // 业务状态码
	Msg  string      `json:"msg"`            // 中文提示信息
	Data interface{} `json:"data,omitempty"` // 数据载荷
}

// 业务状态码定义
const (
	// 成功状态码 2xx
	CodeSuccess = 200 // 成功
	CodeCreated = 201 // 创建成功

	// 客户端错误 4xx
	CodeBadRequest     = 400 // 请求参数错误
	CodeUnauthorized   = 401 // 未认证
	CodeForbidden      = 403 // 无权限
	CodeConflict       = 409 // 资源冲突
	CodeEntityTooLarge = 413 // 请求体过大

	// 服务器错误 5xx
	CodeInternalError = 500 // 服务器内部错误
)

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  "成功",
		Data: data,
	})
}

// Created 创建成功响应（201）
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code: CodeCreated,
		Msg:  "创建成功",
		Data: data,
	})
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	writeError(c, http.StatusBadRequest, CodeBadRequest, msg)
}

// Unauthorized 未认证（401）
func Unauthorized(c *gin.Context, msg string) {
	writeError(c, http.StatusUnauthorized, CodeUnauthorized, msg)
}

// Forbidden 无权限错误（403）
func Forbidden(c *gin.Context, msg string) {
	writeError(c, http.StatusForbidden, CodeForbidden, msg)
}

// Conflict 资源冲突错误（409）
func Conflict(c *gin.Context, msg string) {
	writeError(c, http.StatusConflict, CodeConflict, msg)
}

// EntityTooLarge 请求体过大（413）
func EntityTooLarge(c *gin.Context, msg string) {
	writeError(c, http.StatusRequestEntityTooLarge, CodeEntityTooLarge, msg)
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	writeError(c, http.StatusInternalServerError, CodeInternalError, msg)
}

// Error 通用错误响应，业务码与 HTTP 状态码一致
func Error(c *gin.Context, httpCode int, msg string) {
	writeError(c, httpCode, httpCode, msg)
}

func writeError(c *gin.Context, httpCode, code int, msg string) {
	c.JSON(httpCode, Response{
		Code: code,
		Msg:  msg,
		Data: nil,
	})
}
