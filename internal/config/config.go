package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"mirrorsync/pkg/logger"
)

// Config 对应 config.yaml 的根结构
type Config struct {
	Sync   SyncConfig   `yaml:"sync"`
	System SystemConfig `yaml:"system"`
}

// SyncConfig 同步相关配置
type SyncConfig struct {
	Source  string `yaml:"source"`
	Replica string `yaml:"replica"`
	// 整数秒 ("30") 或 Go duration ("1m30s")
	Interval string `yaml:"interval"`
	// 同步失败后的重试等待时间，为空表示与 interval 相同
	RetryWait string `yaml:"retry_wait"`
	// 修改时间差在该范围内视为相同，默认必须完全相等
	ModTimeWindow string   `yaml:"modtime_window"`
	VerifyContent bool     `yaml:"verify_content"`
	Exclude       []string `yaml:"exclude"`

	// 解析后的 duration，不导出到 yaml
	IntervalDuration      time.Duration `yaml:"-"`
	RetryWaitDuration     time.Duration `yaml:"-"`
	ModTimeWindowDuration time.Duration `yaml:"-"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	LogDir       string `yaml:"log_dir"`
	LogLevel     string `yaml:"log_level"`
	DBPath       string `yaml:"db_path"`
	HistoryLimit int    `yaml:"history_limit"`
}

// Default 返回默认配置
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		Sync: SyncConfig{
			Replica:  "./replica",
			Interval: "30",
		},
		System: SystemConfig{
			LogDir:       cwd,
			LogLevel:     "info",
			HistoryLimit: 100,
		},
	}
}

// LoadConfig 在默认配置之上读取并解析配置文件
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 格式错误: %w", err)
	}
	return cfg, nil
}

// Validate 校验与转换，不访问文件系统 (路径由 ResolvePaths 处理)
func (c *Config) Validate() error {
	if c.Sync.Source == "" {
		return fmt.Errorf("缺少源目录 (sync.source / --origin)")
	}
	if c.Sync.Replica == "" {
		return fmt.Errorf("缺少副本目录 (sync.replica / --replica)")
	}

	interval, err := ParseInterval(c.Sync.Interval)
	if err != nil {
		return fmt.Errorf("无效的同步间隔 (sync.interval): %w", err)
	}
	c.Sync.IntervalDuration = interval

	c.Sync.RetryWaitDuration = interval
	if c.Sync.RetryWait != "" {
		wait, err := ParseInterval(c.Sync.RetryWait)
		if err != nil {
			return fmt.Errorf("无效的重试间隔 (sync.retry_wait): %w", err)
		}
		c.Sync.RetryWaitDuration = wait
	}

	c.Sync.ModTimeWindowDuration = 0
	if c.Sync.ModTimeWindow != "" {
		window, err := time.ParseDuration(c.Sync.ModTimeWindow)
		if err != nil || window < 0 {
			return fmt.Errorf("无效的时间容差 (sync.modtime_window): %q", c.Sync.ModTimeWindow)
		}
		c.Sync.ModTimeWindowDuration = window
	}

	for _, pattern := range c.Sync.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("无效的排除规则 (sync.exclude): %q", pattern)
		}
	}

	if _, err := logger.ParseLevel(c.System.LogLevel); err != nil {
		return err
	}
	if c.System.HistoryLimit < 0 {
		return fmt.Errorf("history_limit 不能为负数: %d", c.System.HistoryLimit)
	}
	return nil
}

// maxIntervalSeconds 乘以 time.Second 后不会溢出的最大秒数
const maxIntervalSeconds = int64(math.MaxInt64 / time.Second)

// ParseInterval 解析同步间隔：纯数字按秒处理，否则按 Go duration 解析。
// 必须是正的整数秒。
func ParseInterval(s string) (time.Duration, error) {
	var d time.Duration
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("%q 必须为正数", s)
		}
		if n > maxIntervalSeconds {
			return 0, fmt.Errorf("%q 超出范围 (最大 %d 秒)", s, maxIntervalSeconds)
		}
		d = time.Duration(n) * time.Second
	} else {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return 0, fmt.Errorf("%q 不是整数秒或 duration", s)
		}
		d = parsed
	}
	if d <= 0 {
		return 0, fmt.Errorf("%q 必须为正数", s)
	}
	if d%time.Second != 0 {
		return 0, fmt.Errorf("%q 必须是整数秒", s)
	}
	return d, nil
}
