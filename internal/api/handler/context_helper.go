package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"campus-core/backend/internal/model"
	"campus-core/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	v, exists := c.Get("role")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetUUIDParam 读取路径中的 UUID 参数，格式错误时写入 400
func MustGetUUIDParam(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		response.BadRequest(c, 10001, name+" 格式无效")
		return "", false
	}
	return id, true
}

// parseDate 解析 YYYY-MM-DD，统一按 UTC 零点
func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(model.DateLayout, s, time.UTC)
}

// MustParseDate 解析日期参数，格式错误时写入 400
func MustParseDate(c *gin.Context, field, value string) (time.Time, bool) {
	d, err := parseDate(value)
	if err != nil {
		response.BadRequest(c, 10001, field+" 日期格式应为 YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}
