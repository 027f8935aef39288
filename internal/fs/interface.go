package fs

import (
	"io"
	"os"
	"time"
)

// Kind 条目类型
type Kind int

const (
	KindFile  Kind = iota // 普通文件
	KindDir               // 目录
	KindOther             // 目录链接、悬空链接、设备等 (不复制)
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "other"
	}
}

// KindOf 根据 FileMode 判断条目类型
func KindOf(mode os.FileMode) Kind {
	switch {
	case mode.IsDir():
		return KindDir
	case mode.IsRegular():
		return KindFile
	default:
		return KindOther
	}
}

// FileMeta 文件元数据
type FileMeta struct {
	Name    string      // 条目名 (不含目录)
	RelPath string      // 相对路径 (统一使用 "/" 作为分隔符，根目录为 "")
	Size    int64       // 文件大小
	ModTime time.Time   // 修改时间
	Mode    os.FileMode // 权限位
	Kind    Kind
}

// IsDir 是否为目录
func (m *FileMeta) IsDir() bool {
	return m.Kind == KindDir
}

// FileSystem 是对源目录和副本目录的统一抽象。
// 所有路径都是相对于 Root() 的 "/" 分隔路径。
type FileSystem interface {
	// Root 返回该文件系统的根路径 (用于日志或调试)
	Root() string

	// ReadDir 只列出一层目录，不递归。
	// 指向普通文件的符号链接按目标文件返回，其它符号链接为 KindOther
	ReadDir(relPath string) ([]*FileMeta, error)

	// Stat 获取单个条目信息 (符号链接规则同 ReadDir)
	Stat(relPath string) (*FileMeta, error)

	// OpenStream 打开文件流 (用于读取数据)
	OpenStream(relPath string) (io.ReadCloser, error)

	// WriteStream 写入文件流，先写临时文件再重命名，最后恢复修改时间。
	// 返回写入的字节数
	WriteStream(relPath string, stream io.Reader, modTime time.Time, perm os.FileMode) (int64, error)

	// Mkdir 创建单个目录，父目录必须存在
	Mkdir(relPath string, perm os.FileMode) error

	// MkdirAll 创建目录及其所有父目录
	MkdirAll(relPath string) error

	// Remove 删除文件或空目录
	Remove(relPath string) error

	// RemoveAll 递归删除
	RemoveAll(relPath string) error

	// Hash 计算文件内容的 MD5
	Hash(relPath string) (string, error)
}
