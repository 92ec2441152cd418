package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/John-Robertt/moviemeter/internal/app/run"
	"github.com/John-Robertt/moviemeter/internal/config"
	"github.com/John-Robertt/moviemeter/internal/infra/httpx"
	"github.com/John-Robertt/moviemeter/internal/provider/imdb"
	"github.com/John-Robertt/moviemeter/internal/sink"
)

func main() {
	if code := runMain(os.Stdout, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

// runMain 不接受任何参数/环境变量：配置只来自当前目录下可选的 moviemeter.json。
func runMain(stdout, stderr io.Writer) int {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.Load(cwd)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := initLogger(stderr, eff.LogLevel, eff.LogFormat)

	client, err := httpx.NewClient(httpx.Options{
		ProxyURL: eff.ProxyURL,
		Timeout:  eff.Timeout,
		RetryMax: eff.RetryMax,
		Headers:  identityHeaders(eff.UserAgent),
	})
	if err != nil {
		fmt.Fprintf(stderr, "初始化 http client 失败：%v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var obs run.Observer = newEcho(stdout)
	if isTTY(os.Stderr) {
		obs = teeObserver{obs, newProgressUI(stderr)}
	}

	rr, err := run.Execute(ctx, run.Deps{
		Provider: imdb.Provider{Origin: eff.Origin, Index: eff.IndexURL},
		Fetcher:  httpx.HTTPFetcher{Client: client},
		Headers:  identityHeaders(eff.UserAgent),
		Sink:     sink.New(eff.Output),
		Logger:   logger,
		Observer: obs,
	}, run.Options{
		Concurrency: eff.Concurrency,
		JitterMax:   eff.Jitter,
	})
	emitElapsed(stdout, rr.Elapsed)
	if err != nil {
		fmt.Fprintln(stderr, describeError(err))
		return 1
	}
	logger.Info("输出文件", "path", eff.Output, "written", rr.Written)
	return 0
}

// initLogger 把 slog 输出到 stderr；stdout 只留给记录回显与耗时行。
func initLogger(w io.Writer, level, format string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "info":
		lv = slog.LevelInfo
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: lv}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func identityHeaders(userAgent string) http.Header {
	h := httpx.DefaultHeaders()
	if userAgent != "" {
		h.Set("User-Agent", userAgent)
	}
	return h
}

func emitElapsed(w io.Writer, d time.Duration) {
	fmt.Fprintf(w, "Total time taken: %.3f\n", d.Seconds())
}

func describeError(err error) string {
	var fe *run.IndexFetchError
	if errors.As(err, &fe) {
		if code := httpx.StatusCode(err); code != 0 {
			return fmt.Sprintf("榜单页不可达（HTTP %d）：%s", code, fe.URL)
		}
		return fmt.Sprintf("榜单页不可达：%v", err)
	}
	var pe *run.IndexParseError
	if errors.As(err, &pe) {
		return fmt.Sprintf("榜单页解析失败：%v", err)
	}
	if errors.Is(err, context.Canceled) {
		return "已取消"
	}
	return err.Error()
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
