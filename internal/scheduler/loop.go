// Package scheduler 按固定间隔重复执行同步，一次只运行一轮
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	syncer "mirrorsync/internal/sync"
)

// Runner 执行一轮同步，*syncer.Engine 实现了该接口
type Runner interface {
	Run(ctx context.Context) (*syncer.Outcome, error)
}

// Recorder 保存每一轮的结果 (可选)
type Recorder interface {
	Record(out *syncer.Outcome, runErr error) error
}

// Options 初始化选项
type Options struct {
	Runner   Runner
	Interval time.Duration
	// 失败后的等待时间，只有 0 < RetryWait < Interval 时生效
	RetryWait time.Duration
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Recorder  Recorder
}

// Loop 调度循环
type Loop struct {
	opts *Options
}

func New(opts *Options) *Loop {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{opts: opts}
}

// Run 立即执行第一轮，之后每隔 Interval 执行一次，直到 ctx 被取消。
// 正在进行的一轮不会被打断，取消只在两轮之间生效。
// 单轮同步的错误只记录日志，不会让循环退出。
func (l *Loop) Run(ctx context.Context) error {
	log := l.opts.Logger
	log.Info("调度已启动", "op", syncer.OpInfo.String(), "interval", l.opts.Interval)

	for round := 1; ; round++ {
		if ctx.Err() != nil {
			break
		}

		wait := l.opts.Interval
		if !l.runCycle(ctx, round) && l.opts.RetryWait > 0 && l.opts.RetryWait < wait {
			wait = l.opts.RetryWait
		}

		log.Debug("等待下一轮", "op", syncer.OpInfo.String(), "wait", wait)
		select {
		case <-ctx.Done():
		case <-l.opts.Clock.After(wait):
		}
	}

	log.Info("调度已停止", "op", syncer.OpInfo.String())
	return nil
}

// runCycle 执行一轮，返回本轮是否没有任何错误
func (l *Loop) runCycle(ctx context.Context, round int) bool {
	log := l.opts.Logger.With("round", round)
	log.Debug(">>> 开始同步", "op", syncer.OpInfo.String())

	out, err := l.opts.Runner.Run(ctx)
	if out == nil {
		out = &syncer.Outcome{StartedAt: l.opts.Clock.Now()}
	}
	if err != nil {
		log.Error("本轮同步中止", "op", syncer.OpError.String(), "err", err)
	} else if len(out.Errors) > 0 {
		log.Warn("本轮同步有失败的条目", "op", syncer.OpInfo.String(), "errors", len(out.Errors))
	}

	if l.opts.Recorder != nil {
		if rerr := l.opts.Recorder.Record(out, err); rerr != nil {
			log.Warn("保存同步历史失败", "op", syncer.OpInfo.String(), "err", rerr)
		}
	}
	return err == nil && len(out.Errors) == 0
}
