package run

import (
	"time"

	"github.com/John-Robertt/moviemeter/internal/domain"
)

// Outcome 是单个条目在 worker 内的处理结果。
type Outcome string

const (
	// OutcomeQueued 表示记录完整，已交给唯一写入者。
	OutcomeQueued Outcome = "queued"
	// OutcomeIncomplete 表示字段不全，静默丢弃（不是错误）。
	OutcomeIncomplete Outcome = "incomplete"
	// OutcomeFetchFailed 表示详情页抓取失败，仅丢弃该条目。
	OutcomeFetchFailed Outcome = "fetch_failed"
	// OutcomeCanceled 表示 ctx 已取消，条目未处理。
	OutcomeCanceled Outcome = "canceled"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出。
// - Observer 的实现必须并发安全：OnItemDone 来自多个 worker goroutine。
type Observer interface {
	// OnStart 在抓取榜单页之前调用。
	OnStart(indexURL string)
	// OnIndexDone 在榜单解析完成、worker 派发之前调用。
	OnIndexDone(refs, workers int, dur time.Duration)
	// OnItemDone 在某个条目处理完成时调用（done 从 1 开始计数）。
	OnItemDone(done, total int, ref domain.ItemRef, outcome Outcome, dur time.Duration)
	// OnRecordWritten 由唯一写入者在每次追加之后调用；err 非空表示该行未写入。
	OnRecordWritten(rec domain.Record, err error)
}

type nopObserver struct{}

func (nopObserver) OnStart(string) {}
func (nopObserver) OnIndexDone(int, int, time.Duration) {}
func (nopObserver) OnItemDone(int, int, domain.ItemRef, Outcome, time.Duration) {}
func (nopObserver) OnRecordWritten(domain.Record, error) {}
