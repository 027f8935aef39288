package sync

import (
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"mirrorsync/internal/fs"
)

// OpType 日志事件中的操作类型
type OpType int

const (
	OpInfo    OpType = iota // 普通信息
	OpCreated               // 副本中新建 (目录或文件)
	OpUpdated               // 覆盖副本中已有的文件
	OpDeleted               // 从副本中删除
	OpError                 // 操作失败
)

func (o OpType) String() string {
	switch o {
	case OpCreated:
		return "created"
	case OpUpdated:
		return "updated"
	case OpDeleted:
		return "deleted"
	case OpError:
		return "error"
	default:
		return "info"
	}
}

// TreeDiff 一层目录的比较结果
type TreeDiff struct {
	Dir string // 本层相对路径，根目录为 ""

	SourceOnly    mapset.Set[string] // 只在源目录中
	ReplicaOnly   mapset.Set[string] // 只在副本目录中
	Common        mapset.Set[string] // 两边都有
	CommonSubdirs mapset.Set[string] // Common 中两边都是目录的
	Changed       mapset.Set[string] // Common 中两边都是文件且大小或时间不同的
	KindMismatch  mapset.Set[string] // Common 中一边是文件一边是目录的
	Excluded      mapset.Set[string] // 被排除规则过滤掉的名字
	Unsupported   mapset.Set[string] // 源目录中的目录链接、设备等，不复制；副本中的同名条目会被删除

	Source  map[string]*fs.FileMeta
	Replica map[string]*fs.FileMeta
}

func newTreeDiff(dir string) *TreeDiff {
	return &TreeDiff{
		Dir:           dir,
		SourceOnly:    mapset.NewThreadUnsafeSet[string](),
		ReplicaOnly:   mapset.NewThreadUnsafeSet[string](),
		Common:        mapset.NewThreadUnsafeSet[string](),
		CommonSubdirs: mapset.NewThreadUnsafeSet[string](),
		Changed:       mapset.NewThreadUnsafeSet[string](),
		KindMismatch:  mapset.NewThreadUnsafeSet[string](),
		Excluded:      mapset.NewThreadUnsafeSet[string](),
		Unsupported:   mapset.NewThreadUnsafeSet[string](),
		Source:        map[string]*fs.FileMeta{},
		Replica:       map[string]*fs.FileMeta{},
	}
}

// Empty 两边完全一致时返回 true
func (d *TreeDiff) Empty() bool {
	return d.SourceOnly.IsEmpty() && d.ReplicaOnly.IsEmpty() &&
		d.Changed.IsEmpty() && d.KindMismatch.IsEmpty()
}

// Sorted 按字典序返回集合内容，保证每轮日志顺序一致
func Sorted(s mapset.Set[string]) []string {
	names := s.ToSlice()
	slices.Sort(names)
	return names
}

// Outcome 一轮同步的统计结果，每轮重新生成，不会被下一轮读取
type Outcome struct {
	CycleID   string
	StartedAt time.Time
	Duration  time.Duration

	Created     int
	Updated     int
	Deleted     int
	Skipped     int
	BytesCopied int64

	Errors []*ErrorRecord
}

// Changes 本轮对副本做的修改数
func (o *Outcome) Changes() int {
	return o.Created + o.Updated + o.Deleted
}

func (o *Outcome) addError(rec *ErrorRecord) {
	o.Errors = append(o.Errors, rec)
}
