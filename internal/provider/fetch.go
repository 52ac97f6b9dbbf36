package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/net/html/charset"

	"github.com/John-Robertt/gavdener/internal/infra/cache"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultRetry   = 2

	// 单页上限；详情页通常 < 200KB。
	maxPageBytes = 8 << 20
)

// FetcherOptions 描述一个 Fetcher 的网络策略。
type FetcherOptions struct {
	Client *http.Client
	// Timeout 是单次尝试的超时（含读 body）。<=0 使用 DefaultTimeout。
	Timeout time.Duration
	// Retry 是首次之后的最大重试次数。<0 按 0 处理。
	Retry int
	// Header 会附加到每个请求上（例如站点要求的 Cookie）。
	Header http.Header
	// FinalStatus 中的状态码直接返回 HTTPStatusError，不重试（例如站点用 404 表示空搜索）。
	FinalStatus []int
	Logger      hclog.Logger
}

// Fetcher 是所有 Catalog 共用的抓取助手：页面缓存 + 单次超时 + 有界重试 + 字符集解码。
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	retry   int
	header  http.Header
	final   map[int]bool
	pages   *cache.Store[[]byte]
	log     hclog.Logger

	requests int
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	c := opts.Client
	if c == nil {
		c = http.DefaultClient
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retry := opts.Retry
	if retry < 0 {
		retry = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	final := make(map[int]bool, len(opts.FinalStatus))
	for _, code := range opts.FinalStatus {
		final[code] = true
	}
	return &Fetcher{
		client:  c,
		final:   final,
		timeout: timeout,
		retry:   retry,
		header:  opts.Header.Clone(),
		pages:   cache.New[[]byte](),
		log:     logger,
	}
}

// Requests 返回实际发出的 HTTP 请求次数（不含缓存命中）。
func (f *Fetcher) Requests() int { return f.requests }

// Get 返回 url 对应页面的 UTF-8 内容。
//
// 同一 Fetcher 内相同 url 只成功抓取一次；失败不缓存。
// 非 2xx 与传输错误按瞬时失败重试，重试耗尽返回最后一次错误；
// 被引导到验证页时返回 BlockedError，不重试。
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if b, ok := f.pages.Get(url); ok {
		return b, nil
	}

	var lastErr error
	for attempt := 0; attempt <= f.retry; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := f.once(ctx, url)
		if err == nil {
			f.pages.Put(url, b)
			return b, nil
		}
		lastErr = err
		if IsBlocked(err) || ctx.Err() != nil {
			break
		}
		if f.isFinal(err) {
			f.log.Debug("状态码不重试", "url", url, "err", err)
			return nil, err
		}
		f.log.Warn("请求失败", "url", url, "attempt", attempt+1, "err", err)
	}
	f.log.Error("请求失败, 不再重试", "url", url, "err", lastErr)
	return nil, lastErr
}

func (f *Fetcher) isFinal(err error) bool {
	var se *HTTPStatusError
	return errors.As(err, &se) && f.final[se.StatusCode]
}

// Document 抓取 url 并解析为 goquery 文档。
func (f *Fetcher) Document(ctx context.Context, url string) (*goquery.Document, error) {
	b, err := f.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(b))
}

func (f *Fetcher) once(ctx context.Context, url string) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range f.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	f.requests++
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.Request != nil && resp.Request.URL != nil && strings.Contains(resp.Request.URL.Path, "/doc/driver-verify") {
		return nil, &BlockedError{URL: resp.Request.URL.String(), Reason: "driver-verify"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}

	r, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("解码页面失败：%w", err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}
