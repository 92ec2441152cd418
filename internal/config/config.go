package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// FileName 是可选配置文件名（固定位于当前工作目录）。
	FileName = "moviemeter.json"

	DefaultOutput      = "movies.csv"
	DefaultConcurrency = 15
	DefaultJitter      = 200 * time.Millisecond
	DefaultTimeout     = 20 * time.Second
	DefaultLogLevel    = "warn"
	DefaultLogFormat   = "text"

	maxConcurrency = 64
	maxRetry       = 5
)

// FileConfig 对应 moviemeter.json 的解析结构；所有字段都可省略。
type FileConfig struct {
	Output      string       `json:"output"`
	Concurrency int          `json:"concurrency"`
	JitterMS    *int         `json:"jitter_ms"`
	TimeoutSec  int          `json:"timeout_sec"`
	RetryMax    int          `json:"retry_max"`
	Proxy       *ProxyConfig `json:"proxy"`
	IndexURL    string       `json:"index_url"`
	Origin      string       `json:"origin"`
	UserAgent   string       `json:"user_agent"`
	Log         *LogConfig   `json:"log"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// EffectiveConfig 是合并默认值并做最小规范化后的最终配置（实现层直接消费）。
type EffectiveConfig struct {
	// Output 是 CSV 输出文件的绝对路径。
	Output string

	Concurrency int
	Jitter      time.Duration
	Timeout     time.Duration
	// RetryMax 默认 0：抓取失败的条目直接丢弃，不重试。
	RetryMax int
	ProxyURL string

	IndexURL  string
	Origin    string
	UserAgent string

	LogLevel  string
	LogFormat string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load 读取 <cwd>/moviemeter.json（可选），与默认值合并为最终配置。
// 文件不存在时直接使用默认值。
func Load(cwd string) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}
	cfgPath := filepath.Join(cwdAbs, FileName)

	fc, _, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	return merge(cwdAbs, fc, cfgPath)
}

// Default 返回不读取任何文件时的最终配置。
func Default(cwd string) EffectiveConfig {
	eff, _ := merge(cwd, FileConfig{}, "")
	return eff
}

func merge(cwdAbs string, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	output := strings.TrimSpace(fc.Output)
	if output == "" {
		output = DefaultOutput
	}
	output = absCleanFrom(cwdAbs, output)

	concurrency := fc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 超出范围截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > maxConcurrency {
		concurrency = maxConcurrency
	}

	jitter := DefaultJitter
	if fc.JitterMS != nil {
		jitter = time.Duration(*fc.JitterMS) * time.Millisecond
		if jitter < 0 {
			jitter = 0
		}
	}

	timeout := DefaultTimeout
	if fc.TimeoutSec > 0 {
		timeout = time.Duration(fc.TimeoutSec) * time.Second
	}

	retry := fc.RetryMax
	if retry < 0 {
		retry = 0
	}
	if retry > maxRetry {
		retry = maxRetry
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
	}

	indexURL := strings.TrimSpace(fc.IndexURL)
	if err := validateHTTPURL("index_url", indexURL); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	origin := strings.TrimSpace(fc.Origin)
	if err := validateHTTPURL("origin", origin); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	level, format := DefaultLogLevel, DefaultLogFormat
	if fc.Log != nil {
		if v := strings.ToLower(strings.TrimSpace(fc.Log.Level)); v != "" {
			level = v
		}
		if v := strings.ToLower(strings.TrimSpace(fc.Log.Format)); v != "" {
			format = v
		}
	}
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("log.level 只能是 debug/info/warn/error，实际是 %q", level)}
	}
	switch format {
	case "text", "json":
	default:
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("log.format 只能是 text 或 json，实际是 %q", format)}
	}

	return EffectiveConfig{
		Output:      output,
		Concurrency: concurrency,
		Jitter:      jitter,
		Timeout:     timeout,
		RetryMax:    retry,
		ProxyURL:    proxyURL,
		IndexURL:    indexURL,
		Origin:      origin,
		UserAgent:   strings.TrimSpace(fc.UserAgent),
		LogLevel:    level,
		LogFormat:   format,
	}, nil
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
