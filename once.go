package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mirrorsync/internal/config"
	"mirrorsync/internal/database"
	syncer "mirrorsync/internal/sync"
)

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "只执行一轮同步然后退出，有错误时退出码为 2",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return runOnce(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func runOnce(ctx context.Context, cfg *config.Config, console io.Writer) error {
	log, closer, err := setupLogger(cfg, console)
	if err != nil {
		return err
	}
	defer closer.Close()
	logStartup(log, cfg)

	db, err := database.Open(cfg.System.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	out, runErr := newEngine(cfg, log).Run(ctx)
	history := &database.History{DB: db, Keep: cfg.System.HistoryLimit}
	if err := history.Record(out, runErr); err != nil {
		log.Warn("保存同步历史失败", "op", syncer.OpInfo.String(), "err", err)
	}

	if runErr != nil {
		return fmt.Errorf("%w: %w", errCycleFailed, runErr)
	}
	if len(out.Errors) > 0 {
		return fmt.Errorf("%w: %d 个条目失败", errCycleFailed, len(out.Errors))
	}
	return nil
}
