package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// FileName 日志目录下的日志文件名
const FileName = "mirrorsync.log"

// ParseLevel 解析日志等级: "debug", "info", "warn", "error"
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("未知的日志等级: %q", levelStr)
	}
}

// Setup 创建同时输出到控制台和日志文件的 Logger
// console: 控制台输出 (通常是 os.Stdout)
// logDir: 日志目录 (如果为空则只输出到控制台)
// 返回的 io.Closer 负责关闭日志文件
func Setup(levelStr string, console io.Writer, logDir string) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return nil, nil, err
	}
	return New(level, console, logDir)
}

// New 同 Setup，日志等级已经解析好
func New(level slog.Level, console io.Writer, logDir string) (*slog.Logger, io.Closer, error) {
	noColor := true
	if f, ok := console.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05.000",
		NoColor:    noColor,
	})

	if logDir == "" {
		return slog.New(consoleHandler), nopCloser{}, nil
	}

	// 确保日志目录存在
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, err
	}

	// 打开日志文件 (追加模式)
	file, err := os.OpenFile(filepath.Join(logDir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}

	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // 仅在 Debug 模式下显示文件名和行号
	})

	return slog.New(NewMultiHandler(consoleHandler, fileHandler)), file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
