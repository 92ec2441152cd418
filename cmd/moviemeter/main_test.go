package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/John-Robertt/moviemeter/internal/infra/httpx"
)

const chartHTML = `<html><body>
<div data-testid="chart-layout-main-column"><ul>
<li><a href="/title/tt1160419/">Dune</a></li>
<li><a href="/title/partial/">Partial</a></li>
</ul></div></body></html>`

const duneHTML = `<html><body>
<section class="ipc-page-section">
  <div>nav</div>
  <div>
    <h1><span>Dune</span></h1>
    <a href="/title/tt1160419/releaseinfo">2021</a>
    <div data-testid="hero-rating-bar__aggregate-rating__score">8.0</div>
    <span data-testid="plot-xs_to_m">A noble family...</span>
  </div>
</section></body></html>`

const partialHTML = `<html><body>
<section class="ipc-page-section"><div>nav</div><div><h1><span>Partial</span></h1></div></section>
</body></html>`

func newChartServer(t *testing.T, indexStatus int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var details atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chart":
			if indexStatus != http.StatusOK {
				w.WriteHeader(indexStatus)
				return
			}
			_, _ = w.Write([]byte(chartHTML))
		case "/title/tt1160419/":
			details.Add(1)
			_, _ = w.Write([]byte(duneHTML))
		default:
			details.Add(1)
			_, _ = w.Write([]byte(partialHTML))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &details
}

func writeConfig(t *testing.T, dir string, v map[string]any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("编码配置失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "moviemeter.json"), b, 0o644); err != nil {
		t.Fatalf("写入配置失败：%v", err)
	}
}

func TestRunMain_WritesCSVAndEchoes(t *testing.T) {
	srv, _ := newChartServer(t, http.StatusOK)
	dir := t.TempDir()
	writeConfig(t, dir, map[string]any{
		"output":    "out/movies.csv",
		"index_url": srv.URL + "/chart",
		"origin":    srv.URL,
		"jitter_ms": 0,
	})
	t.Chdir(dir)

	var stdout, stderr bytes.Buffer
	if code := runMain(&stdout, &stderr); code != 0 {
		t.Fatalf("期望退出码 0，实际 %d：stderr=%s", code, stderr.String())
	}

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("stdout 应为 1 行回显 + 1 行耗时：%q", stdout.String())
	}
	if lines[0] != "Dune 2021 8.0 A noble family..." {
		t.Fatalf("回显不符合预期：%q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "Total time taken: ") {
		t.Fatalf("缺少耗时行：%q", lines[1])
	}

	b, err := os.ReadFile(filepath.Join(dir, "out", "movies.csv"))
	if err != nil {
		t.Fatalf("读取输出失败：%v", err)
	}
	if string(b) != "Dune,2021,8.0,A noble family...\n" {
		t.Fatalf("CSV 不符合预期：%q", string(b))
	}
}

func TestRunMain_IndexFailureExitsNonZero(t *testing.T) {
	srv, details := newChartServer(t, http.StatusServiceUnavailable)
	dir := t.TempDir()
	writeConfig(t, dir, map[string]any{
		"index_url": srv.URL + "/chart",
		"origin":    srv.URL,
	})
	t.Chdir(dir)

	var stdout, stderr bytes.Buffer
	if code := runMain(&stdout, &stderr); code != 1 {
		t.Fatalf("期望退出码 1，实际 %d", code)
	}
	if !strings.Contains(stderr.String(), "HTTP 503") {
		t.Fatalf("stderr 应说明榜单页状态码：%q", stderr.String())
	}
	if details.Load() != 0 {
		t.Fatalf("榜单失败时不应抓取详情页")
	}
	if _, err := os.Stat(filepath.Join(dir, "movies.csv")); !os.IsNotExist(err) {
		t.Fatalf("榜单失败时不应创建输出文件，Stat err=%v", err)
	}
}

func TestRunMain_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, map[string]any{"index_url": "ftp://nope"})
	t.Chdir(dir)

	var stdout, stderr bytes.Buffer
	if code := runMain(&stdout, &stderr); code != 1 {
		t.Fatalf("期望退出码 1，实际 %d", code)
	}
	if !strings.Contains(stderr.String(), "config_invalid") {
		t.Fatalf("stderr 应包含错误码：%q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Fatalf("配置错误时 stdout 应为空：%q", stdout.String())
	}
}

func TestIdentityHeaders(t *testing.T) {
	if got := identityHeaders("").Get("User-Agent"); got != httpx.DefaultUserAgent {
		t.Fatalf("默认 User-Agent 不符合预期：%q", got)
	}
	if got := identityHeaders("custom/1.0").Get("User-Agent"); got != "custom/1.0" {
		t.Fatalf("配置的 User-Agent 应覆盖默认值：%q", got)
	}
}
