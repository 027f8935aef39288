package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DBFileName 默认的同步历史数据库文件名 (放在日志目录下)
const DBFileName = "mirrorsync.db"

// ResolveSource 返回源目录的绝对路径。源目录必须已存在且是目录。
func ResolveSource(path string) (string, error) {
	abs, err := canonical(path)
	if err != nil {
		return "", fmt.Errorf("源目录 %s 不可用: %w", path, err)
	}
	if err := mustBeDir(abs); err != nil {
		return "", fmt.Errorf("源目录 %w", err)
	}
	return abs, nil
}

// ResolveReplica 返回副本目录的绝对路径，不存在时自动创建
func ResolveReplica(path string) (string, error) {
	return ensureDir(path, "副本目录")
}

// ResolveLogDir 返回日志目录的绝对路径，不存在时自动创建
func ResolveLogDir(path string) (string, error) {
	return ensureDir(path, "日志目录")
}

func ensureDir(path, what string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%s不能为空", what)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%s %s 不可用: %w", what, path, err)
	}
	if _, err := os.Stat(abs); os.IsNotExist(err) {
		if err := os.MkdirAll(abs, 0755); err != nil {
			return "", fmt.Errorf("创建%s失败: %w", what, err)
		}
	}
	abs, err = canonical(abs)
	if err != nil {
		return "", fmt.Errorf("%s %s 不可用: %w", what, path, err)
	}
	if err := mustBeDir(abs); err != nil {
		return "", fmt.Errorf("%s %w", what, err)
	}
	return abs, nil
}

// canonical 转为绝对路径并解析符号链接
func canonical(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("路径为空")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func mustBeDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s 不是目录", path)
	}
	return nil
}

// CheckNested 源和副本不能相同，也不能互相包含，否则每一轮都会复制自己
func CheckNested(source, replica string) error {
	if source == replica {
		return fmt.Errorf("源目录和副本目录相同: %s", source)
	}
	if within(source, replica) {
		return fmt.Errorf("副本目录 %s 位于源目录 %s 之内", replica, source)
	}
	if within(replica, source) {
		return fmt.Errorf("源目录 %s 位于副本目录 %s 之内", source, replica)
	}
	return nil
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ResolvePaths 在启动时解析所有路径，任何错误都是致命的
func (c *Config) ResolvePaths() error {
	src, err := ResolveSource(c.Sync.Source)
	if err != nil {
		return err
	}
	// 先检查再创建，避免在源目录里留下空的副本目录
	if abs, err := filepath.Abs(c.Sync.Replica); err == nil {
		if err := CheckNested(src, abs); err != nil {
			return err
		}
	}
	replica, err := ResolveReplica(c.Sync.Replica)
	if err != nil {
		return err
	}
	if err := CheckNested(src, replica); err != nil {
		return err
	}
	logDir, err := ResolveLogDir(c.System.LogDir)
	if err != nil {
		return err
	}

	c.Sync.Source = src
	c.Sync.Replica = replica
	c.System.LogDir = logDir
	if c.System.DBPath == "" {
		c.System.DBPath = filepath.Join(logDir, DBFileName)
	}
	return nil
}
