package run

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/John-Robertt/moviemeter/internal/infra/httpx"
	"github.com/John-Robertt/moviemeter/internal/provider/imdb"
	"github.com/John-Robertt/moviemeter/internal/sink"
)

const indexHTML = `<html><body>
<div data-testid="chart-layout-main-column"><ul>
<li><a href="/title/a/">A</a></li>
<li><a href="/title/b/">B</a></li>
<li><a href="/title/c/">C</a></li>
<li><a href="/title/missing/">M</a></li>
</ul></div></body></html>`

func detailHTML(withRating bool) string {
	rating := ""
	if withRating {
		rating = `<div data-testid="hero-rating-bar__aggregate-rating__score">8.0</div>`
	}
	return `<html><body>
<section class="ipc-page-section">
  <div>breadcrumbs</div>
  <div>
    <h1><span>Dune</span></h1>
    <a href="/title/a/releaseinfo"> 2021 </a>
    ` + rating + `
    <span data-testid="plot-xs_to_m"> A noble family... </span>
  </div>
</section></body></html>`
}

type siteServer struct {
	*httptest.Server
	detailHits atomic.Int32

	mu  sync.Mutex
	uas []string
}

func newSiteServer(t *testing.T, indexStatus int) *siteServer {
	t.Helper()
	s := &siteServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.uas = append(s.uas, r.Header.Get("User-Agent"))
		s.mu.Unlock()

		switch r.URL.Path {
		case "/chart":
			if indexStatus != http.StatusOK {
				w.WriteHeader(indexStatus)
				return
			}
			_, _ = w.Write([]byte(indexHTML))
			return
		}

		s.detailHits.Add(1)
		switch r.URL.Path {
		case "/title/a/":
			_, _ = w.Write([]byte(detailHTML(true)))
		case "/title/b/":
			_, _ = w.Write([]byte(detailHTML(false)))
		case "/title/c/":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func newDeps(t *testing.T, srv *siteServer, out string) Deps {
	t.Helper()
	c, err := httpx.NewClient(httpx.Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("创建 client 失败：%v", err)
	}
	return Deps{
		Provider: imdb.Provider{Origin: srv.URL, Index: srv.URL + "/chart"},
		Fetcher:  httpx.HTTPFetcher{Client: c},
		Headers:  httpx.DefaultHeaders(),
		Sink:     sink.New(out),
	}
}

func TestExecute_WritesOnlyCompleteRecords(t *testing.T) {
	srv := newSiteServer(t, http.StatusOK)
	out := filepath.Join(t.TempDir(), "movies.csv")

	rr, err := Execute(context.Background(), newDeps(t, srv, out), Options{Concurrency: 15, JitterMax: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Refs != 4 || rr.Workers != 4 || rr.Written != 1 {
		t.Fatalf("report 不符合预期：%+v", rr)
	}
	if rr.Elapsed <= 0 {
		t.Fatalf("elapsed 应为正数：%v", rr.Elapsed)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("读取输出失败：%v", err)
	}
	// 场景 A 写出一行；场景 B（缺 rating）、500、404 都不产生输出。
	if string(b) != "Dune,2021,8.0,A noble family...\n" {
		t.Fatalf("输出不符合预期：%q", string(b))
	}

	if got := srv.detailHits.Load(); got != 4 {
		t.Fatalf("期望抓取 4 个详情页，实际 %d", got)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	for _, ua := range srv.uas {
		if ua != httpx.DefaultUserAgent {
			t.Fatalf("每个请求都应携带浏览器身份头，实际 %q", ua)
		}
	}
}

func TestExecute_RerunAppends(t *testing.T) {
	srv := newSiteServer(t, http.StatusOK)
	out := filepath.Join(t.TempDir(), "movies.csv")

	for i := 0; i < 2; i++ {
		if _, err := Execute(context.Background(), newDeps(t, srv, out), Options{Concurrency: 2}); err != nil {
			t.Fatalf("第 %d 次运行失败：%v", i+1, err)
		}
	}
	b, _ := os.ReadFile(out)
	if strings.Count(string(b), "Dune,2021,8.0,A noble family...\n") != 2 {
		t.Fatalf("重复运行应追加而不是覆盖：%q", string(b))
	}
}

func TestExecute_IndexFetchFailureIsFatal(t *testing.T) {
	srv := newSiteServer(t, http.StatusServiceUnavailable)
	out := filepath.Join(t.TempDir(), "movies.csv")

	rr, err := Execute(context.Background(), newDeps(t, srv, out), Options{Concurrency: 15})
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	var ie *IndexFetchError
	if !errors.As(err, &ie) {
		t.Fatalf("期望 *IndexFetchError，实际 %T %v", err, err)
	}
	if httpx.StatusCode(err) != http.StatusServiceUnavailable {
		t.Fatalf("期望状态码 503，实际 %d", httpx.StatusCode(err))
	}
	if got := srv.detailHits.Load(); got != 0 {
		t.Fatalf("榜单失败时不应抓取任何详情页，实际 %d", got)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("榜单失败时不应触碰输出文件，Stat err=%v", err)
	}
	if rr.Refs != 0 || rr.Written != 0 {
		t.Fatalf("report 不符合预期：%+v", rr)
	}
}
