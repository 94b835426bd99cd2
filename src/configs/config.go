package configs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Addr     string `yaml:"addr" json:"addr"`         // Redis地址
	Password string `yaml:"password" json:"password"` // Redis密码
	DB       int    `yaml:"db" json:"db"`             // Redis数据库
	Service  string `yaml:"service" json:"service"`   // key 前缀
}

// DBConfig 数据库配置
type DBConfig struct {
	Dialect         string `yaml:"dialect" json:"dialect"` // postgres / sqlite
	DSN             string `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// LLMConfig LLM配置结构
type LLMConfig struct {
	Type         string  `yaml:"type"          json:"type"`
	ModelName    string  `yaml:"model_name"    json:"model_name"`
	BaseURL      string  `yaml:"url"           json:"url"`
	APIKey       string  `yaml:"api_key"       json:"api_key"`
	Temperature  float64 `yaml:"temperature"   json:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"    json:"max_tokens"`
	MaxAttempts  int     `yaml:"max_attempts"  json:"max_attempts"`  // 含首次调用
	RetryMinWait string  `yaml:"retry_min_wait" json:"retry_min_wait"`
	RetryMaxWait string  `yaml:"retry_max_wait" json:"retry_max_wait"`
}

// CriterionConfig 评分维度
type CriterionConfig struct {
	Key         string  `yaml:"key"         json:"key"`
	Weight      float64 `yaml:"weight"      json:"weight"`
	Description string  `yaml:"description" json:"description"`
}

// QAConfig 批量评估配置
type QAConfig struct {
	Model              string            `yaml:"model"               json:"model"`
	KnowledgeModel     string            `yaml:"knowledge_model"     json:"knowledge_model"`
	Temperature        float64           `yaml:"temperature"         json:"temperature"`
	Concurrency        int               `yaml:"concurrency"         json:"concurrency"`
	CallTimeout        string            `yaml:"call_timeout"        json:"call_timeout"`
	MaxConversations   int               `yaml:"max_conversations"   json:"max_conversations"`
	UserPromptPrefix   string            `yaml:"user_prompt_prefix"  json:"user_prompt_prefix"`
	PromptDir          string            `yaml:"prompt_dir"          json:"prompt_dir"`
	Criteria           []CriterionConfig `yaml:"criteria"            json:"criteria"`
	CriticalViolations []string          `yaml:"critical_violations" json:"critical_violations"`
}

// CacheConfig 读穿透缓存 TTL
type CacheConfig struct {
	ListTTL   string `yaml:"list_ttl"   json:"list_ttl"`
	DetailTTL string `yaml:"detail_ttl" json:"detail_ttl"`
	BotsTTL   string `yaml:"bots_ttl"   json:"bots_ttl"`
}

// MqttConfig 运行结果通知
type MqttConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	Broker         string `yaml:"broker" json:"broker"`
	Username       string `yaml:"username" json:"username"`
	Password       string `yaml:"password" json:"password"`
	TopicRoot      string `yaml:"topic_root" json:"topic_root"`
	Qos            int    `yaml:"qos" json:"qos"`
	ClientIDPrefix string `yaml:"client_id_prefix" json:"client_id_prefix"`
}

// Config 主配置结构
type Config struct {
	Server struct {
		IP    string `yaml:"ip" json:"ip"`
		Port  int    `yaml:"port" json:"port"`
		Token string `yaml:"token" json:"-"` // HS256 密钥
		Auth  struct {
			Enabled bool `yaml:"enabled" json:"enabled"`
		} `yaml:"auth" json:"auth"`
		CORSAllowOrigins []string `yaml:"cors_allow_origins" json:"cors_allow_origins"`
	} `yaml:"server" json:"server"`

	Log struct {
		LogLevel string `yaml:"log_level" json:"log_level"`
		LogDir   string `yaml:"log_dir" json:"log_dir"`
		LogFile  string `yaml:"log_file" json:"log_file"`
	} `yaml:"log" json:"log"`

	// 写库
	DB DBConfig `yaml:"db" json:"db"`
	// 只读会话库，为空时复用写库
	ReadDB DBConfig `yaml:"read_db" json:"read_db"`

	RedisCache RedisConfig `yaml:"redis_cache" json:"redis_cache"`
	Cache      CacheConfig `yaml:"cache" json:"cache"`

	SelectedModule map[string]string    `yaml:"selected_module" json:"selected_module"`
	LLM            map[string]LLMConfig `yaml:"LLM" json:"LLM"`

	QA QAConfig `yaml:"qa" json:"qa"`

	Notify struct {
		Mqtt MqttConfig `yaml:"mqtt" json:"mqtt"`
	} `yaml:"notify" json:"notify"`
}

var (
	Cfg *Config
)

func (cfg *Config) ToString() string {
	data, _ := yaml.Marshal(cfg)
	return string(data)
}

func (cfg *Config) setDefaults() {
	cfg.Server.IP = "0.0.0.0"
	cfg.Server.Port = 8000

	cfg.Log.LogDir = "logs"
	cfg.Log.LogLevel = "INFO"
	cfg.Log.LogFile = "server.log"

	cfg.DB.Dialect = "postgres"
	cfg.DB.MaxOpenConns = 30
	cfg.DB.MaxIdleConns = 10
	cfg.DB.ConnMaxLifetime = "30m"

	cfg.RedisCache.Enabled = true
	cfg.RedisCache.Addr = "localhost:6379"
	cfg.RedisCache.Service = "qa"

	cfg.Cache.ListTTL = "5h"
	cfg.Cache.DetailTTL = "24h"
	cfg.Cache.BotsTTL = "24h"

	cfg.SelectedModule = map[string]string{"LLM": "OpenAILLM"}
	cfg.LLM = map[string]LLMConfig{
		"OpenAILLM": {
			Type:         "openai",
			ModelName:    "gpt-4.1-mini",
			BaseURL:      "https://api.openai.com/v1",
			Temperature:  0.4,
			MaxAttempts:  5,
			RetryMinWait: "4s",
			RetryMaxWait: "10s",
		},
	}

	cfg.QA.Model = "gpt-4.1-mini"
	cfg.QA.KnowledgeModel = "gpt-4.1"
	cfg.QA.Temperature = 0.4
	cfg.QA.Concurrency = 3
	cfg.QA.CallTimeout = "90s"
	cfg.QA.MaxConversations = 20
	cfg.QA.UserPromptPrefix = "mode: đưa ra thông tin tri tiết, không bình luận\n"

	cfg.Notify.Mqtt.Broker = "tcp://localhost:1883"
	cfg.Notify.Mqtt.TopicRoot = "qa_compass"
	cfg.Notify.Mqtt.ClientIDPrefix = "qa-compass-server"
}

// DefaultConfig 返回仅包含默认值的配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig 从 yaml 文件加载配置，文件不存在时使用默认值，再叠加环境变量
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
		}
	case os.IsNotExist(err):
		// 使用默认配置
	default:
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	Cfg = config
	return config, nil
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("DATABASE_READ_URL"); v != "" {
		cfg.ReadDB.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisCache.Addr = v
	}
	if v := os.Getenv("SERVER_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		name := cfg.SelectedModule["LLM"]
		if llm, ok := cfg.LLM[name]; ok {
			llm.APIKey = v
			cfg.LLM[name] = llm
		}
	}
}

// Validate 校验配置
func (cfg *Config) Validate() error {
	if cfg.QA.Concurrency <= 0 {
		return fmt.Errorf("qa.concurrency 必须为正数")
	}
	if cfg.QA.MaxConversations <= 0 {
		return fmt.Errorf("qa.max_conversations 必须为正数")
	}
	for _, d := range []struct{ name, v string }{
		{"qa.call_timeout", cfg.QA.CallTimeout},
		{"cache.list_ttl", cfg.Cache.ListTTL},
		{"cache.detail_ttl", cfg.Cache.DetailTTL},
		{"cache.bots_ttl", cfg.Cache.BotsTTL},
	} {
		if _, err := time.ParseDuration(d.v); err != nil {
			return fmt.Errorf("%s 无效: %w", d.name, err)
		}
	}
	if cfg.Server.Auth.Enabled && strings.TrimSpace(cfg.Server.Token) == "" {
		return fmt.Errorf("启用认证时 server.token 不能为空")
	}
	if _, _, err := cfg.SelectedLLM(); err != nil {
		return err
	}
	return nil
}

// SelectedLLM 返回选中的 LLM 配置
func (cfg *Config) SelectedLLM() (string, LLMConfig, error) {
	name := cfg.SelectedModule["LLM"]
	if name == "" {
		return "", LLMConfig{}, fmt.Errorf("未配置选定的LLM")
	}
	llm, ok := cfg.LLM[name]
	if !ok {
		return "", LLMConfig{}, fmt.Errorf("找不到LLM配置: %s", name)
	}
	return name, llm, nil
}

// ReadDBConfig 只读库配置，未配置 DSN 时回落到写库
func (cfg *Config) ReadDBConfig() DBConfig {
	if cfg.ReadDB.DSN == "" {
		return cfg.DB
	}
	r := cfg.ReadDB
	if r.Dialect == "" {
		r.Dialect = cfg.DB.Dialect
	}
	return r
}

// Duration 解析时长，非法值返回 fallback
func Duration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
