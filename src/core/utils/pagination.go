package utils

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// LimitOffset 列表查询的分页参数
type LimitOffset struct {
	Limit  int
	Offset int
}

// ParseLimitOffset 解析 limit/offset 查询参数，非法值回退默认值，limit 超出上限时截断
func ParseLimitOffset(c *gin.Context, defaultLimit, maxLimit int) LimitOffset {
	p := LimitOffset{Limit: defaultLimit}
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if v := strings.TrimSpace(c.Query("offset")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Offset = n
		}
	}
	p.Limit = ClampInt(p.Limit, 1, maxLimit)
	return p
}

// ClampInt 将 n 限制在 [lo, hi]
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// ParseOptionalBool 解析可选布尔查询参数，空值或非法值返回 nil
func ParseOptionalBool(c *gin.Context, key string) *bool {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
