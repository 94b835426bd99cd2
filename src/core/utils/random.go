package utils

import (
	"crypto/rand"
	"encoding/hex"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// 去掉易混淆字符的字母表
const idAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

// GenerateID 生成指定长度的 nanoid，失败时退化为随机十六进制串
func GenerateID(n int) string {
	id, err := gonanoid.Generate(idAlphabet, n)
	if err == nil {
		return id
	}
	buf := make([]byte, (n+1)/2)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)[:n]
}

// NewRunID 批量 QA 运行 ID
func NewRunID() string {
	return "run_" + GenerateID(12)
}

// NewRequestID HTTP 请求 ID
func NewRequestID() string {
	return GenerateID(16)
}
