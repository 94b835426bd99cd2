package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"qa-compass-server/src/core/providers/llm"
	"qa-compass-server/src/core/utils"

	"github.com/angrymiao/go-openai"
	"github.com/cenkalti/backoff/v4"
)

// Ensure Provider implements llm.Provider interface
var _ llm.Provider = (*Provider)(nil)

const (
	defaultMaxAttempts = 5
	defaultMinWait     = 4 * time.Second
	defaultMaxWait     = 10 * time.Second
)

func init() {
	llm.Register("openai", New)
}

// Provider OpenAI 兼容接口实现
type Provider struct {
	config *llm.Config
	client *openai.Client
	logger *utils.Logger
}

// New 创建 OpenAI 提供者
func New(config *llm.Config, logger *utils.Logger) (llm.Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("LLM配置为空")
	}
	cfg := *config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryMinWait <= 0 {
		cfg.RetryMinWait = defaultMinWait
	}
	if cfg.RetryMaxWait < cfg.RetryMinWait {
		cfg.RetryMaxWait = max(defaultMaxWait, cfg.RetryMinWait)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{}

	return &Provider{
		config: &cfg,
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger,
	}, nil
}

func (p *Provider) Initialize() error {
	if strings.TrimSpace(p.config.APIKey) == "" {
		p.logger.Warn("LLM %s 未配置 API Key", p.config.Name)
	}
	return nil
}

func (p *Provider) Cleanup() error { return nil }

// Chat 调用 chat completions，429/5xx/超时按指数退避重试
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = p.config.ModelName
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	request := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   p.config.MaxTokens,
	}
	if req.JSONObject {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var content string
	attempt := 0
	operation := func() error {
		attempt++
		resp, err := p.client.CreateChatCompletion(ctx, request)
		if err != nil {
			if ctx.Err() != nil || !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("LLM返回空响应"))
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(p.backoff(), uint64(p.config.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		p.logger.Warn("LLM调用失败，第 %d 次重试将在 %s 后进行: %v", attempt, wait, err)
	})
	if err != nil {
		p.logger.Error("LLM调用失败: model=%s attempts=%d err=%v", model, attempt, err)
		return "", err
	}
	return content, nil
}

func (p *Provider) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.RetryMinWait
	b.MaxInterval = p.config.RetryMaxWait
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return b
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
