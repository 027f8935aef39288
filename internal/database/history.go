package database

import (
	"fmt"

	syncer "mirrorsync/internal/sync"
)

// History 把每一轮同步的结果写入数据库，并只保留最近 Keep 轮
type History struct {
	DB   *DB
	Keep int
}

// Record 实现 scheduler.Recorder
func (h *History) Record(out *syncer.Outcome, runErr error) error {
	if err := h.DB.Record(NewCycleRecord(out, runErr)); err != nil {
		return fmt.Errorf("写入同步历史失败: %w", err)
	}
	if _, err := h.DB.Prune(h.Keep); err != nil {
		return fmt.Errorf("清理同步历史失败: %w", err)
	}
	return nil
}
