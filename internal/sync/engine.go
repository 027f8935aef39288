package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"mirrorsync/internal/fs"
)

// dirPerm 副本中新建目录的权限 (不同步源目录的权限位)
const dirPerm = 0755

// EngineOptions 初始化选项
type EngineOptions struct {
	SourceFS  fs.FileSystem // 权威的一方
	ReplicaFS fs.FileSystem // 被覆盖成与源一致的一方
	Logger    *slog.Logger

	ModTimeWindow time.Duration
	VerifyContent bool
	Exclude       []string
}

// Engine 单向同步引擎：每次 Run 让副本目录与源目录完全一致
type Engine struct {
	opts *EngineOptions
	cmp  *Comparator
}

func NewEngine(opts *EngineOptions) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		opts: opts,
		cmp: NewComparator(&ComparatorOptions{
			SourceFS:      opts.SourceFS,
			ReplicaFS:     opts.ReplicaFS,
			ModTimeWindow: opts.ModTimeWindow,
			VerifyContent: opts.VerifyContent,
			Exclude:       opts.Exclude,
			Logger:        opts.Logger,
		}),
	}
}

// cycle 一轮同步的运行状态，只在 Run 内部使用
type cycle struct {
	*Engine
	ctx context.Context
	log *slog.Logger
	out *Outcome
}

// Run 执行一次完整的同步周期。
// 单个条目失败只记录在 Outcome.Errors 中；返回 error 表示整轮被中止
// (ErrSourceMissing / ErrReplicaMissing / 根目录不是目录)。
func (e *Engine) Run(ctx context.Context) (*Outcome, error) {
	// 已经开始的一轮必须跑完，不能在写到一半时被取消
	ctx = context.WithoutCancel(ctx)

	out := &Outcome{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now(),
	}
	defer func() { out.Duration = time.Since(out.StartedAt) }()

	c := &cycle{
		Engine: e,
		ctx:    ctx,
		log:    e.opts.Logger.With("cycle", out.CycleID[:8]),
		out:    out,
	}

	if err := c.checkRoots(); err != nil {
		return out, err
	}

	// 用显式栈代替递归，目录再深也不会撑爆调用栈
	stack := []string{""}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		subdirs, err := c.syncLevel(dir)
		if err != nil {
			return out, err
		}
		// 倒序入栈，保证按字典序深度优先
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	msg := "同步完成"
	if out.Changes() == 0 && len(out.Errors) == 0 {
		msg = "副本已是最新"
	}
	c.log.Info(msg,
		"op", OpInfo.String(),
		"created", out.Created,
		"updated", out.Updated,
		"deleted", out.Deleted,
		"skipped", out.Skipped,
		"errors", len(out.Errors),
		"copied", humanize.Bytes(uint64(out.BytesCopied)),
		"elapsed", time.Since(out.StartedAt).Round(time.Millisecond),
	)
	return out, nil
}

// checkRoots 检查两个根目录。源目录不存在时直接中止，绝不在没有源的情况下删除副本。
func (c *cycle) checkRoots() error {
	if err := c.checkSourceRoot(); err != nil {
		return err
	}

	meta, err := c.opts.ReplicaFS.Stat("")
	switch {
	case errors.Is(err, os.ErrNotExist):
		// 副本根目录丢失：重建空目录，本轮直接做全量复制
		if err := c.opts.ReplicaFS.MkdirAll(""); err != nil {
			return c.abort(newRecord(ErrReplicaMissing, "mkdir", "", err))
		}
		c.out.Created++
		c.event(OpCreated, "", "副本根目录丢失，已重新创建")
		return nil
	case err != nil:
		return c.abort(newRecord(ErrUnreadable, "stat", "", err))
	case !meta.IsDir():
		return c.abort(newRecord(ErrNotADirectory, "stat", "", nil))
	}
	return nil
}

func (c *cycle) checkSourceRoot() error {
	meta, err := c.opts.SourceFS.Stat("")
	switch {
	case errors.Is(err, os.ErrNotExist):
		return c.abort(&ErrorRecord{Path: c.opts.SourceFS.Root(), Op: "stat", Kind: ErrSourceMissing, Cause: err})
	case err != nil:
		return c.abort(&ErrorRecord{Path: c.opts.SourceFS.Root(), Op: "stat", Kind: ErrUnreadable, Cause: err})
	case !meta.IsDir():
		return c.abort(&ErrorRecord{Path: c.opts.SourceFS.Root(), Op: "stat", Kind: ErrNotADirectory})
	}
	return nil
}

// rootsGone 有操作失败后调用：如果是根目录消失导致的，立即中止本轮
func (c *cycle) rootsGone() error {
	if err := c.checkSourceRoot(); err != nil {
		return err
	}
	if _, err := c.opts.ReplicaFS.Stat(""); errors.Is(err, os.ErrNotExist) {
		// 下一轮开始时会重建副本根目录
		return c.abort(newRecord(ErrReplicaMissing, "stat", "", err))
	}
	return nil
}

func (c *cycle) abort(rec *ErrorRecord) error {
	c.fail(rec)
	return rec
}

// syncLevel 同步一层目录，返回需要继续处理的子目录 (已排序)
func (c *cycle) syncLevel(dir string) ([]string, error) {
	diff, err := c.cmp.Compare(c.ctx, dir)
	if err != nil {
		kind := ErrUnreadable
		if errors.Is(err, ErrNotADirectory) {
			kind = ErrNotADirectory
		}
		c.fail(newRecord(kind, "list", dir, err))
		return nil, c.rootsGone()
	}

	var next []string
	failed := false

	for _, name := range Sorted(diff.SourceOnly) {
		rel := joinRel(dir, name)
		isDir, ok := c.create(rel, diff.Source[name])
		if !ok {
			failed = true
		} else if isDir {
			next = append(next, rel)
		}
	}

	// 目录的修改时间只反映直接子项的变化，所以两边都有的目录一律继续往下比较
	for _, name := range Sorted(diff.CommonSubdirs) {
		next = append(next, joinRel(dir, name))
	}

	for _, name := range Sorted(diff.Changed) {
		if !c.copyFile(joinRel(dir, name), diff.Source[name], OpUpdated) {
			failed = true
		}
	}

	// 类型不一致：先整个删掉副本中的条目，再按源重新创建
	for _, name := range Sorted(diff.KindMismatch) {
		rel := joinRel(dir, name)
		if !c.remove(rel, diff.Replica[name]) {
			failed = true
			continue
		}
		isDir, ok := c.create(rel, diff.Source[name])
		if !ok {
			failed = true
		} else if isDir {
			next = append(next, rel)
		}
	}

	for _, name := range Sorted(diff.ReplicaOnly) {
		if !c.remove(joinRel(dir, name), diff.Replica[name]) {
			failed = true
		}
	}

	// 源中不支持的条目不会被复制，副本中的同名条目也不能保留
	for _, name := range Sorted(diff.Unsupported) {
		rel := joinRel(dir, name)
		c.log.Warn("跳过不支持的条目", "op", OpInfo.String(),
			"path", c.replicaPath(rel), "kind", diff.Source[name].Kind.String())
		if dst, ok := diff.Replica[name]; ok && !c.remove(rel, dst) {
			failed = true
		}
	}

	if diff.Empty() {
		c.log.Debug("目录一致", "op", OpInfo.String(), "path", c.replicaPath(dir))
	}
	c.skip(diff)

	if failed {
		if err := c.rootsGone(); err != nil {
			return nil, err
		}
	}

	slices.Sort(next)
	return next, nil
}

// skip 统计本层未做修改的条目
func (c *cycle) skip(diff *TreeDiff) {
	unchanged := diff.Common.Difference(diff.CommonSubdirs).
		Difference(diff.Changed).
		Difference(diff.KindMismatch).
		Difference(diff.Unsupported)
	c.out.Skipped += unchanged.Cardinality() + diff.Excluded.Cardinality() + diff.Unsupported.Cardinality()
}

// create 在副本中创建源条目。返回值: 是否为目录 (需要继续处理)，是否成功
func (c *cycle) create(rel string, src *fs.FileMeta) (bool, bool) {
	if !src.IsDir() {
		return false, c.copyFile(rel, src, OpCreated)
	}

	err := c.opts.ReplicaFS.Mkdir(rel, dirPerm)
	if errors.Is(err, os.ErrExist) {
		// 已经有人建好了，继续往下同步即可，不算本轮新建
		return true, true
	}
	if err != nil {
		c.fail(newRecord(ErrCreateFailed, "mkdir", rel, err))
		return true, false
	}
	c.out.Created++
	c.event(OpCreated, rel, "directory")
	return true, true
}

// copyFile 把源文件复制到副本 (保留修改时间)
func (c *cycle) copyFile(rel string, src *fs.FileMeta, op OpType) bool {
	opName := "copy"
	if op == OpUpdated {
		opName = "overwrite"
	}

	reader, err := c.opts.SourceFS.OpenStream(rel)
	if err != nil {
		c.fail(newRecord(ErrCopyFailed, opName, rel, err))
		return false
	}
	defer reader.Close()

	n, err := c.opts.ReplicaFS.WriteStream(rel, reader, src.ModTime, src.Mode)
	if err != nil {
		c.fail(newRecord(ErrCopyFailed, opName, rel, err))
		return false
	}

	c.out.BytesCopied += n
	if op == OpUpdated {
		c.out.Updated++
	} else {
		c.out.Created++
	}
	c.event(op, rel, "file", "size", humanize.Bytes(uint64(n)))
	return true
}

// remove 删除副本中的条目。文件删除遇到权限错误时，再尝试一次递归删除。
func (c *cycle) remove(rel string, dst *fs.FileMeta) bool {
	var err error
	if dst.IsDir() {
		err = c.opts.ReplicaFS.RemoveAll(rel)
	} else {
		err = c.opts.ReplicaFS.Remove(rel)
		if errors.Is(err, os.ErrPermission) {
			c.log.Warn("删除被拒绝，改用递归删除重试", "op", OpInfo.String(), "path", c.replicaPath(rel), "err", err)
			err = c.opts.ReplicaFS.RemoveAll(rel)
		}
	}

	if errors.Is(err, os.ErrNotExist) {
		// 已经不在了，目标状态已达成
		return true
	}
	if err != nil {
		c.fail(newRecord(ErrDeleteFailed, "delete", rel, err))
		return false
	}

	c.out.Deleted++
	c.event(OpDeleted, rel, dst.Kind.String())
	return true
}

// fail 记录一个错误并输出日志
func (c *cycle) fail(rec *ErrorRecord) {
	c.out.addError(rec)
	path := rec.Path
	if !filepath.IsAbs(path) {
		path = c.replicaPath(rec.Path)
	}
	c.log.Error("同步操作失败",
		"op", OpError.String(),
		"path", path,
		"detail", fmt.Sprintf("%s: %v", rec.Op, rec.Kind),
		"err", rec.Cause,
	)
}

func (c *cycle) event(op OpType, rel, detail string, args ...any) {
	attrs := append([]any{"op", op.String(), "path", c.replicaPath(rel), "detail", detail}, args...)
	c.log.Info(eventMessage[op], attrs...)
}

var eventMessage = map[OpType]string{
	OpCreated: "副本已创建",
	OpUpdated: "副本已更新",
	OpDeleted: "副本已删除",
}

func (c *cycle) replicaPath(rel string) string {
	return filepath.Join(c.opts.ReplicaFS.Root(), filepath.FromSlash(rel))
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
