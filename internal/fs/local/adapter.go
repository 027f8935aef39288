package local

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"mirrorsync/internal/fs"
)

// tempPattern 临时文件名模板，复制完成后重命名为正式文件名
const tempPattern = ".mirrorsync-*.tmp"

// Adapter 本地文件系统适配器
type Adapter struct {
	afs     afero.Fs
	rootDir string // 本地绝对路径根目录
}

var _ fs.FileSystem = (*Adapter)(nil)

// NewAdapter 创建一个基于真实磁盘的适配器
func NewAdapter(rootDir string) *Adapter {
	// 确保 rootDir 是绝对路径
	absDir, err := filepath.Abs(rootDir)
	if err != nil {
		absDir = rootDir
	}
	return NewAdapterFs(afero.NewOsFs(), absDir)
}

// NewAdapterFs 使用任意 afero.Fs 创建适配器 (测试时可传入 MemMapFs)
func NewAdapterFs(afs afero.Fs, rootDir string) *Adapter {
	return &Adapter{afs: afs, rootDir: filepath.Clean(rootDir)}
}

// Root 返回根目录
func (a *Adapter) Root() string {
	return a.rootDir
}

// toSysPath 将相对路径转换为本地系统绝对路径
// 输入: "docs/file.txt" -> 输出: "/data/docs/file.txt"
func (a *Adapter) toSysPath(relPath string) string {
	return filepath.Join(a.rootDir, filepath.FromSlash(relPath))
}

func (a *Adapter) lstat(fullPath string) (os.FileInfo, error) {
	if l, ok := a.afs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(fullPath)
		return info, err
	}
	return a.afs.Stat(fullPath)
}

// follow 指向普通文件的符号链接按目标文件处理 (复制目标内容)。
// 指向目录的链接 (可能成环) 和悬空链接不跟随，保持 KindOther。
func (a *Adapter) follow(fullPath string, info os.FileInfo) os.FileInfo {
	if info.Mode()&os.ModeSymlink == 0 {
		return info
	}
	target, err := a.afs.Stat(fullPath)
	if err != nil || !target.Mode().IsRegular() {
		return info
	}
	return target
}

func toMeta(relDir, name string, info os.FileInfo) *fs.FileMeta {
	rel := name
	if relDir != "" {
		rel = relDir + "/" + name
	}
	return &fs.FileMeta{
		Name:    name,
		RelPath: rel,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Mode:    info.Mode(),
		Kind:    fs.KindOf(info.Mode()),
	}
}

// ReadDir 列出一层目录 (afero.ReadDir 已按名称排序)
func (a *Adapter) ReadDir(relPath string) ([]*fs.FileMeta, error) {
	infos, err := afero.ReadDir(a.afs, a.toSysPath(relPath))
	if err != nil {
		return nil, err
	}
	metas := make([]*fs.FileMeta, 0, len(infos))
	for _, info := range infos {
		full := filepath.Join(a.toSysPath(relPath), info.Name())
		metas = append(metas, toMeta(relPath, info.Name(), a.follow(full, info)))
	}
	return metas, nil
}

// Stat 获取单个条目状态 (与 ReadDir 相同的符号链接规则)
func (a *Adapter) Stat(relPath string) (*fs.FileMeta, error) {
	full := a.toSysPath(relPath)
	info, err := a.lstat(full)
	if err != nil {
		return nil, err
	}
	meta := toMeta("", info.Name(), a.follow(full, info))
	meta.RelPath = relPath
	return meta, nil
}

// OpenStream 打开本地文件读取流
func (a *Adapter) OpenStream(relPath string) (io.ReadCloser, error) {
	return a.afs.Open(a.toSysPath(relPath))
}

// WriteStream 将流写入本地文件
// 先写入同目录下的临时文件，成功后再重命名，避免留下写了一半的文件
func (a *Adapter) WriteStream(relPath string, stream io.Reader, modTime time.Time, perm os.FileMode) (int64, error) {
	fullPath := a.toSysPath(relPath)

	tmp, err := afero.TempFile(a.afs, filepath.Dir(fullPath), tempPattern)
	if err != nil {
		return 0, fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, stream)
	if err != nil {
		tmp.Close()
		a.afs.Remove(tmpPath)
		return n, fmt.Errorf("写入数据失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		a.afs.Remove(tmpPath)
		return n, err
	}

	if perm != 0 {
		if err := a.afs.Chmod(tmpPath, perm.Perm()); err != nil {
			a.afs.Remove(tmpPath)
			return n, fmt.Errorf("设置权限失败: %w", err)
		}
	}

	if err := a.afs.Rename(tmpPath, fullPath); err != nil {
		a.afs.Remove(tmpPath)
		return n, fmt.Errorf("重命名临时文件失败: %w", err)
	}

	// 恢复修改时间 (下一轮比较依赖这个时间)
	if !modTime.IsZero() {
		if err := a.afs.Chtimes(fullPath, modTime, modTime); err != nil {
			return n, fmt.Errorf("无法修改文件时间: %w", err)
		}
	}
	return n, nil
}

// Mkdir 创建单个目录
func (a *Adapter) Mkdir(relPath string, perm os.FileMode) error {
	return a.afs.Mkdir(a.toSysPath(relPath), perm)
}

// MkdirAll 创建目录及父目录
func (a *Adapter) MkdirAll(relPath string) error {
	return a.afs.MkdirAll(a.toSysPath(relPath), 0755)
}

// Remove 删除文件或空目录
func (a *Adapter) Remove(relPath string) error {
	return a.afs.Remove(a.toSysPath(relPath))
}

// RemoveAll 递归删除
func (a *Adapter) RemoveAll(relPath string) error {
	return a.afs.RemoveAll(a.toSysPath(relPath))
}

// Hash 计算本地文件的 MD5 值
func (a *Adapter) Hash(relPath string) (string, error) {
	f, err := a.afs.Open(a.toSysPath(relPath))
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
