// Package config 读取 novaopt 的 TOML 配置
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/tangzhangming/novaopt/internal/graph"
)

// 常量定义
const (
	ConfigFileName = "novaopt.toml" // 配置文件名
)

// Config 配置
type Config struct {
	Compile CompileConfig `toml:"compile"`
	Log     LogConfig     `toml:"log"`
}

// CompileConfig 编译管线配置
type CompileConfig struct {
	// Tier 档位：economy、community 或 enterprise
	Tier string `toml:"tier"`

	// MaxIterations 规范化器取出节点次数的上限，0 表示按图大小估算
	MaxIterations int `toml:"max_iterations"`

	// MaxRounds loopphi 与规范化交替执行的轮数上限
	MaxRounds int `toml:"max_rounds"`

	// Workers 并行编译的协程数，0 表示 GOMAXPROCS
	Workers int `toml:"workers"`

	// FoldCacheSize 共享 stamp 折叠缓存的条目数，0 表示不使用缓存
	FoldCacheSize int `toml:"fold_cache_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level debug、info、warn 或 error
	Level string `toml:"level"`

	// Development 使用便于阅读的控制台格式
	Development bool `toml:"development"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Compile: CompileConfig{
			Tier:          graph.TierEnterprise.String(),
			MaxRounds:     4,
			FoldCacheSize: 4096,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig 从文件加载配置，未出现的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse 解析配置内容
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if _, err := c.Tier(); err != nil {
		return fmt.Errorf("invalid compile.tier: %w", err)
	}
	if c.Compile.MaxIterations < 0 {
		return fmt.Errorf("invalid compile.max_iterations: %d", c.Compile.MaxIterations)
	}
	if c.Compile.MaxRounds < 1 {
		return fmt.Errorf("invalid compile.max_rounds: %d", c.Compile.MaxRounds)
	}
	if c.Compile.Workers < 0 {
		return fmt.Errorf("invalid compile.workers: %d", c.Compile.Workers)
	}
	if c.Compile.FoldCacheSize < 0 {
		return fmt.Errorf("invalid compile.fold_cache_size: %d", c.Compile.FoldCacheSize)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	return nil
}

// Tier 解析后的档位
func (c *Config) Tier() (graph.Tier, error) {
	return graph.ParseTier(c.Compile.Tier)
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	if err := os.WriteFile(path, []byte(generateConfigWithComments(c)), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateConfigWithComments 生成带注释的配置文件内容
func generateConfigWithComments(c *Config) string {
	var sb strings.Builder

	sb.WriteString("[compile]\n")
	sb.WriteString("# 档位：economy、community 或 enterprise\n")
	sb.WriteString(fmt.Sprintf("tier = %q\n\n", c.Compile.Tier))
	sb.WriteString("# 规范化迭代上限（0 表示按图大小估算）\n")
	sb.WriteString(fmt.Sprintf("max_iterations = %d\n\n", c.Compile.MaxIterations))
	sb.WriteString("# loopphi 与规范化交替的轮数上限\n")
	sb.WriteString(fmt.Sprintf("max_rounds = %d\n\n", c.Compile.MaxRounds))
	sb.WriteString("# 并行编译协程数（0 表示 GOMAXPROCS）\n")
	sb.WriteString(fmt.Sprintf("workers = %d\n\n", c.Compile.Workers))
	sb.WriteString("# stamp 折叠缓存条目数（0 表示关闭）\n")
	sb.WriteString(fmt.Sprintf("fold_cache_size = %d\n\n", c.Compile.FoldCacheSize))

	sb.WriteString("[log]\n")
	sb.WriteString("# debug、info、warn 或 error\n")
	sb.WriteString(fmt.Sprintf("level = %q\n", c.Log.Level))
	sb.WriteString(fmt.Sprintf("development = %t\n", c.Log.Development))

	return sb.String()
}
