package sync

import (
	"errors"
	"fmt"
)

// 错误分类。单个条目的错误 (Create/Copy/Delete) 只记录不中断，
// 根目录级别的错误 (SourceMissing/ReplicaMissing) 会终止本轮同步。
var (
	ErrNotADirectory  = errors.New("not a directory")
	ErrUnreadable     = errors.New("directory unreadable")
	ErrCreateFailed   = errors.New("create failed")
	ErrCopyFailed     = errors.New("copy failed")
	ErrDeleteFailed   = errors.New("delete failed")
	ErrSourceMissing  = errors.New("source root missing")
	ErrReplicaMissing = errors.New("replica root missing")
)

// ErrorRecord 一次失败的操作
type ErrorRecord struct {
	Path  string // 相对路径
	Op    string // mkdir / copy / overwrite / delete / list
	Kind  error  // 上面的哨兵错误之一
	Cause error  // 底层错误
}

func (r *ErrorRecord) Error() string {
	if r.Cause == nil {
		return fmt.Sprintf("%s %q: %v", r.Op, r.Path, r.Kind)
	}
	return fmt.Sprintf("%s %q: %v: %v", r.Op, r.Path, r.Kind, r.Cause)
}

// Unwrap 让 errors.Is 同时匹配分类和底层错误
func (r *ErrorRecord) Unwrap() []error {
	if r.Cause == nil {
		return []error{r.Kind}
	}
	return []error{r.Kind, r.Cause}
}

func newRecord(kind error, op, path string, cause error) *ErrorRecord {
	return &ErrorRecord{Path: path, Op: op, Kind: kind, Cause: cause}
}
