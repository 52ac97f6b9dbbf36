package run

import (
	"time"

	"github.com/John-Robertt/gavdener/internal/config"
	"github.com/John-Robertt/gavdener/internal/domain"
)

// Observer 把“运行进度/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - 事件在调用 Execute 的 goroutine 上同步发出；实现若自带 ticker 需自行加锁
type Observer interface {
	// OnStart 在扫描之前调用（保证用户尽早看到输出）。
	OnStart(cfg config.Config)
	// OnPhaseDone 在阶段结束时调用，例如 "scan"。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个文件处理完成时调用；idx 从 1 开始。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
	// OnAbort 在整批因 provider 硬失败或取消而中止时调用。
	OnAbort(err error)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.Config) {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnItemDone(int, int, domain.ItemResult, time.Duration) {}
func (nopObserver) OnAbort(error) {}
