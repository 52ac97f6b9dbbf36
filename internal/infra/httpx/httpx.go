package httpx

import (
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Transport 把“UA 池 + keep-alive 策略”固化为统一策略。
//
// 重试与超时不在这里做：它们属于 provider.Fetcher（按 URL 计数、每次尝试单独限时）。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	// DisableKeepAlives 决定是否对 Request 设置 Close=true（额外保险）。
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

	// Clone 会复制 Header 等，避免在 RoundTripper 内部“污染”调用方的 request。
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.ua.random())
	}
	if t.DisableKeepAlives {
		r.Close = true
	}
	return t.Base.RoundTrip(r)
}

// Proxies 是“URL scheme -> 代理地址”的映射，例如 {"http": "...", "https": "..."}。
// 键 "all" 作为兜底，匹配任意 scheme。
type Proxies map[string]string

// Validate 校验每个代理地址都是带 scheme 与 host 的 URL。
func (p Proxies) Validate() error {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw := strings.TrimSpace(p[k])
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy.%s 无效：%w", k, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("proxy.%s 缺少 scheme 或 host：%q", k, raw)
		}
	}
	return nil
}

func (p Proxies) lookup(scheme string) string {
	if v := strings.TrimSpace(p[strings.ToLower(scheme)]); v != "" {
		return v
	}
	return strings.TrimSpace(p["all"])
}

func (p Proxies) empty() bool {
	for _, v := range p {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// NewMetaClient 构造用于站点页面抓取的 HTTP client。
//
// 规则：
// - proxies 非空：按请求 scheme 选代理，且禁用 keep-alive（每请求新连接，代理池轮换依赖该行为）
// - 内置 UA 池：每个请求随机 UA
// - client 本身不设总超时；每次尝试的超时由调用方的 ctx 控制
func NewMetaClient(proxies Proxies) (*http.Client, error) {
	if err := proxies.Validate(); err != nil {
		return nil, err
	}

	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	disableKeepAlives := false

	if !proxies.empty() {
		pm := make(Proxies, len(proxies))
		for k, v := range proxies {
			pm[strings.ToLower(strings.TrimSpace(k))] = v
		}
		base.Proxy = func(req *http.Request) (*url.URL, error) {
			raw := pm.lookup(req.URL.Scheme)
			if raw == "" {
				return nil, nil
			}
			return url.Parse(raw)
		}
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	return &http.Client{
		Transport: &Transport{
			Base:              base,
			ua:                globalUA,
			DisableKeepAlives: disableKeepAlives,
		},
	}, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36 Edg/108.0.1462.54",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
