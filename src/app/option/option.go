package option

import (
	"fmt"
	"strings"

	"qa-compass-server/src/configs"

	"github.com/spf13/pflag"
)

// Option 命令行参数
type Option struct {
	ConfigPath string `json:"config_path" yaml:"configPath"`
}

// BindFlags 绑定全局参数
func (opt *Option) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&opt.ConfigPath, "config", "c", "config.yaml", "config file path")
}

// GenerateConfig 加载配置文件，文件不存在时使用默认配置
func (opt *Option) GenerateConfig() (*configs.Config, error) {
	cfg, err := configs.LoadConfig(strings.TrimSpace(opt.ConfigPath))
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return cfg, nil
}

// RunOption run 子命令参数
type RunOption struct {
	ConversationIDs []string
	Limit           int
}

// BindFlags 绑定 run 子命令参数
func (opt *RunOption) BindFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(&opt.ConversationIDs, "ids", nil, "comma separated conversation ids (at most 20)")
	fs.IntVarP(&opt.Limit, "limit", "n", 20, "number of latest conversations to evaluate when --ids is empty")
}
