package httpx

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout = 20 * time.Second

	// DefaultUserAgent 模拟常见桌面浏览器，避免被站点直接识别为脚本客户端。
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/42.0.2311.135 Safari/537.36 Edge/12.246"
)

// DefaultHeaders 返回每个请求都必须携带的身份头集合。
func DefaultHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", DefaultUserAgent)
	return h
}

// Transport 把“身份头 + 代理 + keep-alive 策略 + 可选的有界重试”固化为统一策略。
//
// 设计目标：provider 只负责“定位页面 + 解析 HTML”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	// Headers 在请求缺少同名头时补齐（调用方显式设置的优先）。
	Headers http.Header

	// RetryMax 表示最大重试次数（不含首次尝试）。默认 0：不重试。
	RetryMax int

	// DisableKeepAlives 为 true 时对每个 Request 设置 Close=true。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r := req.Clone(req.Context())
		for k, vs := range t.Headers {
			if r.Header.Get(k) != "" {
				continue
			}
			for _, v := range vs {
				r.Header.Add(k, v)
			}
		}
		if t.DisableKeepAlives {
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// Options 描述页面抓取 client 的网络策略。
type Options struct {
	ProxyURL string
	Timeout  time.Duration
	RetryMax int
	Headers  http.Header
}

// NewClient 构造用于榜单页/详情页抓取的 HTTP client。
//
// 规则：
// - ProxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - Headers 为空时使用 DefaultHeaders
// - 重定向与响应大小沿用 net/http 默认值
func NewClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	disableKeepAlives := false
	if proxyURL := strings.TrimSpace(opts.ProxyURL); proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	headers := opts.Headers
	if len(headers) == 0 {
		headers = DefaultHeaders()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tr := &Transport{
		Base:              base,
		Headers:           headers.Clone(),
		RetryMax:          opts.RetryMax,
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}
