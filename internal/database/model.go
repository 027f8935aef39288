package database

import (
	"time"

	syncer "mirrorsync/internal/sync"
)

// CycleRecord 一轮同步的摘要，存入数据库时序列化为 JSON
// 只记录结果，不记录任何文件状态：下一轮同步从不读取它
type CycleRecord struct {
	// 本轮同步的唯一标识 (日志中的 cycle 字段是它的前 8 位)
	ID string `json:"id"`

	// 开始时间 (Unix Nano)，同时作为数据库 Key
	StartedAt int64 `json:"started_at"`

	// 耗时 (纳秒)
	Duration int64 `json:"duration"`

	Created     int   `json:"created"`
	Updated     int   `json:"updated"`
	Deleted     int   `json:"deleted"`
	Skipped     int   `json:"skipped"`
	BytesCopied int64 `json:"bytes_copied"`

	// 本轮记录的单项错误数量
	ErrorCount int `json:"error_count"`

	// 本轮被中止时的原因，正常完成为空
	Aborted string `json:"aborted,omitempty"`
}

// StartTime 辅助方法：转为 Go Time 对象
func (r *CycleRecord) StartTime() time.Time {
	return time.Unix(0, r.StartedAt)
}

// Elapsed 辅助方法：转为 time.Duration
func (r *CycleRecord) Elapsed() time.Duration {
	return time.Duration(r.Duration)
}

// Failed 本轮是否有错误
func (r *CycleRecord) Failed() bool {
	return r.ErrorCount > 0 || r.Aborted != ""
}

// NewCycleRecord 由一轮同步的结果生成记录，runErr 为整轮中止的原因
func NewCycleRecord(out *syncer.Outcome, runErr error) *CycleRecord {
	rec := &CycleRecord{
		ID:          out.CycleID,
		StartedAt:   out.StartedAt.UnixNano(),
		Duration:    int64(out.Duration),
		Created:     out.Created,
		Updated:     out.Updated,
		Deleted:     out.Deleted,
		Skipped:     out.Skipped,
		BytesCopied: out.BytesCopied,
		ErrorCount:  len(out.Errors),
	}
	if runErr != nil {
		rec.Aborted = runErr.Error()
	}
	return rec
}
