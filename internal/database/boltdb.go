package database

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.etcd.io/bbolt"
)

const (
	// BucketName 是数据库中的“表名”
	BucketName = "CycleHistory"

	lockTimeout = 1 * time.Second
)

// ErrLocked 数据库已被另一个 mirrorsync 进程打开
var ErrLocked = errors.New("数据库已被其他进程占用")

// DB 封装 BoltDB 实例
type DB struct {
	conn *bbolt.DB
}

// Open 初始化并打开数据库，文件不存在则创建
// 文件锁同时保证同一个数据库只有一个实例在运行
func Open(dbPath string) (*DB, error) {
	// Timeout 选项防止两个进程同时打开同一个数据库导致死锁
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dbPath)
		}
		return nil, fmt.Errorf("打开 BoltDB 失败: %w", err)
	}

	// 确保 Bucket 存在
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("创建 Bucket 失败: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close 关闭数据库连接
func (d *DB) Close() error {
	return d.conn.Close()
}

// key 大端序的开始时间，保证 Cursor 按时间顺序遍历
func key(startedAt int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(startedAt))
	return k
}

// Record 保存一轮同步的摘要
func (d *DB) Record(rec *CycleRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}

	return d.conn.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketName))
		return b.Put(key(rec.StartedAt), data)
	})
}

// Recent 返回最近 n 轮的记录，最新的在前。n <= 0 返回全部
func (d *DB) Recent(n int) ([]*CycleRecord, error) {
	var result []*CycleRecord

	err := d.conn.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketName)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if n > 0 && len(result) >= n {
				break
			}
			var rec CycleRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("解析数据失败 key=%x: %w", k, err)
			}
			result = append(result, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Prune 只保留最近 keep 轮的记录，返回删除的条数。keep <= 0 不做任何处理
func (d *DB) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	removed := 0
	err := d.conn.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketName))
		total := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			total++
		}
		excess := total - keep
		if excess <= 0 {
			return nil
		}

		// 先收集再删除，遍历中删除会打乱 Cursor
		stale := make([][]byte, 0, excess)
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
