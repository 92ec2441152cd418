package run

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/moviemeter/internal/domain"
	"github.com/John-Robertt/moviemeter/internal/infra/httpx"
	"github.com/John-Robertt/moviemeter/internal/provider"
	"github.com/John-Robertt/moviemeter/internal/sink"
)

// Deps 是一次运行依赖的外部协作者。
type Deps struct {
	Provider provider.Provider
	Fetcher  httpx.Fetcher
	// Headers 是每个请求都携带的身份头。
	Headers http.Header
	Sink    sink.Appender

	Logger   *slog.Logger
	Observer Observer

	// Sleep/Jitter 可替换（测试中去掉随机等待）。
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration
}

// Options 控制并发与礼貌等待。
type Options struct {
	// Concurrency 是 worker 数上限；实际 worker 数为 min(Concurrency, 条目数)。
	Concurrency int
	// JitterMax：每个 worker 在抓取前随机等待 [0, JitterMax)。
	JitterMax time.Duration
}

// Report 是一次运行的汇总。
type Report struct {
	IndexURL string
	Refs     int
	Workers  int
	Written  int
	Elapsed  time.Duration
}

// IndexFetchError 表示榜单页不可达；整次运行终止，不派发任何详情页抓取。
type IndexFetchError struct {
	URL string
	Err error
}

func (e *IndexFetchError) Error() string {
	return fmt.Sprintf("榜单页抓取失败 %s: %v", e.URL, e.Err)
}

func (e *IndexFetchError) Unwrap() error { return e.Err }

// IndexParseError 表示榜单页可达但无法解析出条目列表；同样是致命错误。
type IndexParseError struct {
	URL string
	Err error
}

func (e *IndexParseError) Error() string {
	return fmt.Sprintf("榜单页解析失败 %s: %v", e.URL, e.Err)
}

func (e *IndexParseError) Unwrap() error { return e.Err }

// Workers 返回实际 worker 数：min(limit, n)，limit<1 视为 1。
func Workers(limit, n int) int {
	if limit < 1 {
		limit = 1
	}
	if n < limit {
		return n
	}
	return limit
}

// Execute 执行一次完整抓取：榜单页 → 并发抓取详情页并抽取 → 唯一写入者追加输出。
//
// 只有榜单页失败会返回 error；单个条目的抓取失败/字段缺失只体现为“少一行输出”。
// 榜单抓取成功时，即使所有条目都失败，运行也视为成功。
func Execute(ctx context.Context, d Deps, opts Options) (Report, error) {
	started := time.Now()

	obs := d.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	log := d.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	sleep := d.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	jitter := d.Jitter
	if jitter == nil {
		jitter = randomJitter
	}

	indexURL := d.Provider.IndexURL()
	rr := Report{IndexURL: indexURL}
	obs.OnStart(indexURL)

	// 阶段 1：榜单页（单次抓取，严格先于任何 worker）。
	html, err := d.Fetcher.Fetch(ctx, indexURL, d.Headers)
	if err != nil {
		rr.Elapsed = time.Since(started)
		return rr, &IndexFetchError{URL: indexURL, Err: err}
	}
	refs, err := d.Provider.ParseIndex(html)
	if err != nil {
		rr.Elapsed = time.Since(started)
		return rr, &IndexParseError{URL: indexURL, Err: err}
	}

	workers := Workers(opts.Concurrency, len(refs))
	rr.Refs = len(refs)
	rr.Workers = workers
	obs.OnIndexDone(len(refs), workers, time.Since(started))
	log.Info("榜单解析完成", "provider", d.Provider.Name(), "refs", len(refs), "workers", workers)

	if workers == 0 {
		rr.Elapsed = time.Since(started)
		return rr, nil
	}

	// 阶段 2：worker pool + 唯一写入者。
	records := make(chan domain.Record)
	writerDone := make(chan int, 1)
	go func() {
		writerDone <- sink.Drain(records, d.Sink, func(rec domain.Record, err error) {
			if err != nil {
				log.Warn("写入输出失败，丢弃该行", "title", rec.Title, "err", err)
			}
			obs.OnRecordWritten(rec, err)
		})
	}()

	jobs := make(chan domain.ItemRef)
	var done atomic.Int64
	total := len(refs)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for ref := range jobs {
				oneStarted := time.Now()
				out := processOne(gctx, d, ref, sleep, jitter(opts.JitterMax), records, log)
				obs.OnItemDone(int(done.Add(1)), total, ref, out, time.Since(oneStarted))
			}
			return gctx.Err()
		})
	}

feed:
	for _, ref := range refs {
		select {
		case jobs <- ref:
		case <-gctx.Done():
			break feed
		}
	}
	close(jobs)
	werr := g.Wait()

	close(records)
	rr.Written = <-writerDone
	rr.Elapsed = time.Since(started)
	log.Info("运行结束", "written", rr.Written, "elapsed", rr.Elapsed)

	if werr != nil {
		return rr, werr
	}
	return rr, ctx.Err()
}

func processOne(ctx context.Context, d Deps, ref domain.ItemRef, sleep func(context.Context, time.Duration) error, wait time.Duration, records chan<- domain.Record, log *slog.Logger) Outcome {
	if err := sleep(ctx, wait); err != nil {
		return OutcomeCanceled
	}

	b, err := d.Fetcher.Fetch(ctx, string(ref), d.Headers)
	if err != nil {
		log.Debug("详情页抓取失败，丢弃该条目", "url", string(ref), "err", err)
		return OutcomeFetchFailed
	}

	ext := d.Provider.ParseDetail(b)
	rec, ok := ext.Record()
	if !ok {
		log.Debug("字段不完整，丢弃该条目", "url", string(ref), "resolved", ext.Resolved())
		return OutcomeIncomplete
	}

	// 写入者在 records 关闭前持续消费，这里的发送不会永久阻塞。
	records <- rec
	return OutcomeQueued
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
