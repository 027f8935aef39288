package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mirrorsync/internal/config"
	"mirrorsync/internal/database"
)

var (
	red   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	gray  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "显示最近几轮同步的结果",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := overlayFlags(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			cmd.SilenceUsage = true
			return showStatus(cmd.OutOrStdout(), statusDBPath(cfg), limit)
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "显示的轮数")
	return cmd
}

// statusDBPath 只读取历史，不需要源目录存在，也不创建任何目录
func statusDBPath(cfg *config.Config) string {
	if cfg.System.DBPath != "" {
		return cfg.System.DBPath
	}
	return filepath.Join(cfg.System.LogDir, config.DBFileName)
}

func showStatus(w io.Writer, dbPath string, limit int) error {
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(w, gray.Render("还没有同步记录: "+dbPath))
		return nil
	}

	db, err := database.Open(dbPath)
	if errors.Is(err, database.ErrLocked) {
		return fmt.Errorf("%w (同步进程正在运行，请查看日志文件)", err)
	}
	if err != nil {
		return err
	}
	defer db.Close()

	recs, err := db.Recent(limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, gray.Render("还没有同步记录: "+dbPath))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tELAPSED\tCREATED\tUPDATED\tDELETED\tSKIPPED\tCOPIED\tSTATUS")
	for _, rec := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			humanize.Time(rec.StartTime()),
			rec.Elapsed().Round(time.Millisecond),
			rec.Created, rec.Updated, rec.Deleted, rec.Skipped,
			humanize.Bytes(uint64(rec.BytesCopied)),
			statusText(rec),
		)
	}
	return tw.Flush()
}

func statusText(rec *database.CycleRecord) string {
	switch {
	case !rec.Failed():
		return green.Render("ok")
	case rec.Aborted != "":
		return red.Render("aborted: " + rec.Aborted)
	default:
		return red.Render(fmt.Sprintf("%d errors", rec.ErrorCount))
	}
}
