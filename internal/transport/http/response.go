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

// 业务状态码与 HTTP 状态码一致
const (
	CodeSuccess   = 200
	CodeCreated   = 201
	CodeNoContent = 204

	CodeBadRequest   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeConflict     = 409

	CodeInternalError = 500
)

func reply(c *gin.Context, status int, msg string, data interface{}) {
	c.JSON(status, Response{Code: status, Msg: msg, Data: data})
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	reply(c, http.StatusOK, "成功", data)
}

// Created 创建成功响应（201）
func Created(c *gin.Context, data interface{}) {
	reply(c, http.StatusCreated, "创建成功", data)
}

// NoContent 无内容响应（204），用于删除/撤销成功
func NoContent(c *gin.Context) {
	reply(c, http.StatusNoContent, "操作成功", nil)
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	reply(c, http.StatusBadRequest, msg, nil)
}

// Unauthorized 未认证错误（401）
func Unauthorized(c *gin.Context, msg string) {
	reply(c, http.StatusUnauthorized, msg, nil)
}

// Forbidden 无权限错误（403）
func Forbidden(c *gin.Context, msg string) {
	reply(c, http.StatusForbidden, msg, nil)
}

// NotFound 资源不存在错误（404）
func NotFound(c *gin.Context, msg string) {
	reply(c, http.StatusNotFound, msg, nil)
}

// Conflict 资源冲突错误（409）
func Conflict(c *gin.Context, msg string) {
	reply(c, http.StatusConflict, msg, nil)
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	reply(c, http.StatusInternalServerError, msg, nil)
}
