package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UnifiedResponse 统一响应结构体
type UnifiedResponse struct {
	Code    int    `json:"code"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success 返回 200 成功响应
func Success(c *gin.Context, data any) {
	Custom(c, http.StatusOK, "ok", data)
}

// Created 返回 201 响应
func Created(c *gin.Context, data any) {
	Custom(c, http.StatusCreated, "created", data)
}

// ErrorWithDetail 返回带详细错误信息的错误响应
func ErrorWithDetail(c *gin.Context, statusCode int, message string, err error) {
	resp := UnifiedResponse{
		Code:    statusCode,
		Success: false,
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(statusCode, resp)
}

// ErrorWithData 错误响应同时携带数据，用于批量运行部分完成的场景
func ErrorWithData(c *gin.Context, statusCode int, message string, err error, data any) {
	resp := UnifiedResponse{
		Code:    statusCode,
		Success: false,
		Message: message,
		Data:    data,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(statusCode, resp)
}

// Custom 按状态码判定 success 字段
func Custom(c *gin.Context, statusCode int, message string, data any) {
	c.JSON(statusCode, UnifiedResponse{
		Code:    statusCode,
		Success: statusCode >= 200 && statusCode < 300,
		Message: message,
		Data:    data,
	})
}
