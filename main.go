package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"mirrorsync/internal/config"
	"mirrorsync/internal/database"
	"mirrorsync/internal/fs/local"
	"mirrorsync/internal/scheduler"
	syncer "mirrorsync/internal/sync"
	"mirrorsync/pkg/logger"
)

const version = "1.0.0"

// errCycleFailed once 子命令中本轮同步有错误，进程以 2 退出
var errCycleFailed = errors.New("本轮同步有错误")

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mirrorsync",
		Short:         "把源目录单向同步到副本目录，按固定间隔重复执行",
		Version:       version,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return runDaemon(cmd.Context(), cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("origin", "o", "", "源目录 (必须存在)")
	flags.StringP("replica", "r", "", "副本目录 (不存在时自动创建，默认 ./replica)")
	flags.StringP("log-path", "l", "", "日志目录 (默认当前目录)")
	flags.StringP("interval", "i", "", "同步间隔，整数秒或 duration (默认 30)")
	flags.StringP("config", "c", "", "YAML 配置文件")
	flags.StringSlice("exclude", nil, "排除规则 (doublestar 语法，可重复)")
	flags.String("modtime-window", "", "修改时间容差，例如 2s")
	flags.Bool("verify-content", false, "大小和时间相同时再比较 MD5")
	flags.String("log-level", "", "日志等级: debug, info, warn, error")

	cmd.AddCommand(newOnceCmd(), newStatusCmd())
	return cmd
}

// loadConfig 读取配置文件，再用命令行参数覆盖，最后校验并解析路径
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := overlayFlags(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlayFlags(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("origin", &cfg.Sync.Source)
	str("replica", &cfg.Sync.Replica)
	str("log-path", &cfg.System.LogDir)
	str("interval", &cfg.Sync.Interval)
	str("modtime-window", &cfg.Sync.ModTimeWindow)
	str("log-level", &cfg.System.LogLevel)
	if flags.Changed("exclude") {
		cfg.Sync.Exclude, _ = flags.GetStringSlice("exclude")
	}
	if flags.Changed("verify-content") {
		cfg.Sync.VerifyContent, _ = flags.GetBool("verify-content")
	}
	return cfg, nil
}

// setupLogger 初始化日志并设为默认 Logger
func setupLogger(cfg *config.Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	log, closer, err := logger.Setup(cfg.System.LogLevel, console, cfg.System.LogDir)
	if err != nil {
		return nil, nil, fmt.Errorf("日志初始化失败: %w", err)
	}
	slog.SetDefault(log)
	return log, closer, nil
}

func newEngine(cfg *config.Config, log *slog.Logger) *syncer.Engine {
	return syncer.NewEngine(&syncer.EngineOptions{
		SourceFS:      local.NewAdapter(cfg.Sync.Source),
		ReplicaFS:     local.NewAdapter(cfg.Sync.Replica),
		Logger:        log,
		ModTimeWindow: cfg.Sync.ModTimeWindowDuration,
		VerifyContent: cfg.Sync.VerifyContent,
		Exclude:       cfg.Sync.Exclude,
	})
}

func logStartup(log *slog.Logger, cfg *config.Config) {
	log.Info("MirrorSync 启动中",
		"op", syncer.OpInfo.String(),
		"version", version,
		"log_level", cfg.System.LogLevel,
		"log_file", filepath.Join(cfg.System.LogDir, logger.FileName),
	)
	log.Info("配置已加载",
		"op", syncer.OpInfo.String(),
		"source", cfg.Sync.Source,
		"replica", cfg.Sync.Replica,
		"interval", cfg.Sync.IntervalDuration,
		"exclude", cfg.Sync.Exclude,
	)
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	log, closer, err := setupLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer closer.Close()
	logStartup(log, cfg)

	// 数据库文件锁同时防止同一个配置启动两个实例
	db, err := database.Open(cfg.System.DBPath)
	if err != nil {
		log.Error("无法打开数据库", "op", syncer.OpError.String(), "err", err, "path", cfg.System.DBPath)
		return err
	}
	defer db.Close()

	loop := scheduler.New(&scheduler.Options{
		Runner:    newEngine(cfg, log),
		Interval:  cfg.Sync.IntervalDuration,
		RetryWait: cfg.Sync.RetryWaitDuration,
		Logger:    log,
		Recorder:  &database.History{DB: db, Keep: cfg.System.HistoryLimit},
	})
	err = loop.Run(ctx)
	log.Info("程序退出", "op", syncer.OpInfo.String())
	return err
}

// exitCode 启动或配置错误为 1，once 子命令同步有错误为 2
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errCycleFailed):
		return 2
	default:
		return 1
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
	}
	if code := exitCode(err); code != 0 {
		stop()
		os.Exit(code)
	}
}
