package llm

import (
	"context"
	"fmt"
	"time"

	"qa-compass-server/src/core/providers"
	"qa-compass-server/src/core/utils"
)

// Config LLM配置结构
type Config struct {
	Name         string
	Type         string
	ModelName    string
	BaseURL      string
	APIKey       string
	Temperature  float64
	MaxTokens    int
	MaxAttempts  int           // 含首次调用
	RetryMinWait time.Duration // 指数退避下限
	RetryMaxWait time.Duration // 指数退避上限
}

// 消息角色
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 一次补全请求，Model 为空时使用配置中的模型
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	JSONObject  bool
}

// Provider LLM提供者接口
type Provider interface {
	providers.Provider
	// Chat 返回模型输出文本，需遵守 ctx 的取消与超时
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Factory LLM工厂函数类型
type Factory func(config *Config, logger *utils.Logger) (Provider, error)

var factories = make(map[string]Factory)

// Register 注册LLM提供者工厂
func Register(name string, factory Factory) {
	factories[name] = factory
}

// Create 创建LLM提供者实例
func Create(name string, config *Config, logger *utils.Logger) (Provider, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("未知的LLM提供者: %s", name)
	}

	provider, err := factory(config, logger)
	if err != nil {
		return nil, fmt.Errorf("创建LLM提供者失败: %w", err)
	}
	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("初始化LLM提供者失败: %w", err)
	}
	return provider, nil
}
