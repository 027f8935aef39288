package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"mirrorsync/internal/fs"
)

// ComparatorOptions 比较器选项
type ComparatorOptions struct {
	SourceFS  fs.FileSystem
	ReplicaFS fs.FileSystem

	// ModTimeWindow 修改时间差在该范围内视为相同 (0 表示必须完全相等)
	ModTimeWindow time.Duration
	// VerifyContent 大小和时间都相同时，再比对一次 MD5
	VerifyContent bool
	// Exclude doublestar 模式，匹配相对路径或条目名
	Exclude []string

	Logger *slog.Logger
}

// Comparator 只比较一层目录，递归由 Engine 负责
type Comparator struct {
	opts *ComparatorOptions
}

func NewComparator(opts *ComparatorOptions) *Comparator {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Comparator{opts: opts}
}

// Compare 比较源目录和副本目录中的 dir 这一层
func (c *Comparator) Compare(ctx context.Context, dir string) (*TreeDiff, error) {
	var srcEntries, dstEntries []*fs.FileMeta

	// 两边只读，可以并发列目录
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		srcEntries, err = listLevel(c.opts.SourceFS, dir)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		dstEntries, err = listLevel(c.opts.ReplicaFS, dir)
		if err != nil {
			return fmt.Errorf("replica: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	diff := newTreeDiff(dir)
	for _, m := range srcEntries {
		if c.excluded(m) {
			diff.Excluded.Add(m.Name)
			continue
		}
		diff.Source[m.Name] = m
	}
	for _, m := range dstEntries {
		if c.excluded(m) {
			diff.Excluded.Add(m.Name)
			continue
		}
		diff.Replica[m.Name] = m
	}

	for name, src := range diff.Source {
		dst, ok := diff.Replica[name]
		if !ok {
			if src.Kind == fs.KindOther {
				diff.Unsupported.Add(name)
				continue
			}
			diff.SourceOnly.Add(name)
			continue
		}

		diff.Common.Add(name)
		switch {
		case src.Kind == fs.KindOther:
			// 源是目录链接等，副本中的同名条目由 Engine 删除
			diff.Unsupported.Add(name)
		case src.Kind != dst.Kind:
			diff.KindMismatch.Add(name)
		case src.Kind == fs.KindDir:
			diff.CommonSubdirs.Add(name)
		case c.fileChanged(src, dst):
			diff.Changed.Add(name)
		}
	}
	for name := range diff.Replica {
		if _, ok := diff.Source[name]; !ok {
			diff.ReplicaOnly.Add(name)
		}
	}

	return diff, nil
}

// listLevel 列出一层目录，并把失败归类为 ErrNotADirectory 或 ErrUnreadable
func listLevel(fsys fs.FileSystem, dir string) ([]*fs.FileMeta, error) {
	entries, err := fsys.ReadDir(dir)
	if err == nil {
		return entries, nil
	}
	if meta, serr := fsys.Stat(dir); serr == nil && !meta.IsDir() {
		return nil, fmt.Errorf("%q: %w", dir, ErrNotADirectory)
	}
	return nil, fmt.Errorf("%q: %w: %w", dir, ErrUnreadable, err)
}

func (c *Comparator) excluded(m *fs.FileMeta) bool {
	for _, pattern := range c.opts.Exclude {
		if ok, _ := doublestar.Match(pattern, m.RelPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, m.Name); ok {
			return true
		}
	}
	return false
}

// fileChanged 判断两边同名文件是否需要覆盖
func (c *Comparator) fileChanged(src, dst *fs.FileMeta) bool {
	if src.Size != dst.Size {
		return true
	}

	diff := src.ModTime.Sub(dst.ModTime)
	if diff < 0 {
		diff = -diff
	}
	if diff > c.opts.ModTimeWindow {
		return true
	}

	if !c.opts.VerifyContent {
		return false
	}
	return !c.sameContent(src.RelPath)
}

func (c *Comparator) sameContent(relPath string) bool {
	srcHash, err := c.opts.SourceFS.Hash(relPath)
	if err != nil {
		// 读不出来就当作不同，由覆盖操作去暴露真正的错误
		c.opts.Logger.Debug("计算源文件 MD5 失败", "path", relPath, "err", err)
		return false
	}
	dstHash, err := c.opts.ReplicaFS.Hash(relPath)
	if err != nil {
		return false
	}
	return srcHash == dstHash
}
