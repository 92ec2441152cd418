package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/moviemeter/internal/app/run"
	"github.com/John-Robertt/moviemeter/internal/domain"
)

var (
	_ run.Observer = (*echo)(nil)
	_ run.Observer = (*progressUI)(nil)
	_ run.Observer = teeObserver{}
)

// echo 把每条成功写入的记录回显到 stdout：title date rating synopsis（空格分隔）。
type echo struct {
	mu sync.Mutex
	w  io.Writer
}

func newEcho(w io.Writer) *echo { return &echo{w: w} }

func (e *echo) OnStart(string) {}
func (e *echo) OnIndexDone(int, int, time.Duration) {}
func (e *echo) OnItemDone(int, int, domain.ItemRef, run.Outcome, time.Duration) {}

func (e *echo) OnRecordWritten(rec domain.Record, err error) {
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintln(e.w, formatRecord(rec))
}

func formatRecord(rec domain.Record) string {
	return strings.Join(rec.Row(), " ")
}

type teeObserver []run.Observer

func (t teeObserver) OnStart(indexURL string) {
	for _, o := range t {
		o.OnStart(indexURL)
	}
}

func (t teeObserver) OnIndexDone(refs, workers int, dur time.Duration) {
	for _, o := range t {
		o.OnIndexDone(refs, workers, dur)
	}
}

func (t teeObserver) OnItemDone(done, total int, ref domain.ItemRef, outcome run.Outcome, dur time.Duration) {
	for _, o := range t {
		o.OnItemDone(done, total, ref, outcome, dur)
	}
}

func (t teeObserver) OnRecordWritten(rec domain.Record, err error) {
	for _, o := range t {
		o.OnRecordWritten(rec, err)
	}
}

// progressUI 是交互终端下的进度输出（只写 stderr）。
//
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	queued  int
	drop    int
	failed  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(indexURL string) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}
	fmt.Fprintf(p.w, "[%s] moviemeter\n", now.Format("15:04:05"))
	fmt.Fprintf(p.w, "  index: %s\n", truncate(indexURL, 120))
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnIndexDone(refs, workers int, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.workers = workers
	p.total = refs
	fmt.Fprintf(p.w, "榜单: items=%d workers=%d (%s)\n", refs, workers, formatShortDuration(dur))
	if p.total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(done, total int, ref domain.ItemRef, outcome run.Outcome, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = done
	p.total = total

	status := "OK"
	switch outcome {
	case run.OutcomeQueued:
		p.queued++
	case run.OutcomeIncomplete:
		p.drop++
		status = "SKIP"
	default:
		p.failed++
		status = "FAIL"
	}
	fmt.Fprintf(p.w, "[%d/%d] %s %s (%s)\n", done, total, status, truncate(string(ref), 100), formatShortDuration(dur))

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnRecordWritten(rec domain.Record, err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "写入失败 %s: %s\n", truncate(rec.Title, 60), truncate(err.Error(), 120))
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if time.Since(p.lastPrinted) > threshold {
					active := p.workers
					if remain := p.total - p.done; remain < active {
						active = remain
					}
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d skip=%d fail=%d active=%d elapsed=%s\n",
						p.done, p.total, p.queued, p.drop, p.failed, active, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
