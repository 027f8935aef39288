package sync

import (
	"context"
	"log/slog"
	"sync"
)

// recordingHandler 把日志记录保存在内存中，供测试断言
type recordingHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
}

func newRecordingLogger(h *recordingHandler) *slog.Logger {
	h.mu = &sync.Mutex{}
	h.records = &[]slog.Record{}
	return slog.New(h)
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	r = r.Clone()
	r.AddAttrs(h.attrs...)
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandler{
		mu:      h.mu,
		records: h.records,
		attrs:   append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

// ops 按顺序返回每条记录的 op 属性
func (h *recordingHandler) ops() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ops []string
	for _, r := range *h.records {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "op" {
				ops = append(ops, a.Value.String())
				return false
			}
			return true
		})
	}
	return ops
}

func (h *recordingHandler) attr(i int, key string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var val string
	(*h.records)[i].Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			val = a.Value.String()
			return false
		}
		return true
	})
	return val
}

func (h *recordingHandler) levels() []slog.Level {
	h.mu.Lock()
	defer h.mu.Unlock()
	levels := make([]slog.Level, 0, len(*h.records))
	for _, r := range *h.records {
		levels = append(levels, r.Level)
	}
	return levels
}
