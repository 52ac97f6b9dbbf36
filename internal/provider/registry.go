package provider

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Options 是构造 Provider 时的共享配置（来自 spider 配置段）。
type Options struct {
	Client  *http.Client
	Timeout time.Duration
	Retry   int
	// BaseURLs 允许按站点名覆盖根地址（例如 javdb 的可用镜像域名）。
	BaseURLs map[string]string
	Logger   hclog.Logger
}

// BaseURL 返回 name 的覆盖地址；未配置时返回 def。
func (o Options) BaseURL(name, def string) string {
	if u := strings.TrimSpace(o.BaseURLs[strings.ToLower(name)]); u != "" {
		return strings.TrimRight(u, "/")
	}
	return def
}

// Constructor 根据 Options 创建一个 Catalog。
type Constructor func(opts Options) Catalog

// headerer 是 Catalog 的可选能力：要求每个请求附带固定 Header（例如 Cookie）。
type headerer interface {
	Header() http.Header
}

// finalStatuser 是 Catalog 的可选能力：声明哪些 HTTP 状态码是确定结果，不应重试。
type finalStatuser interface {
	FinalStatus() []int
}

// Registry 是“站点名 -> 构造函数”的注册表，带一个显式的兜底条目。
type Registry struct {
	byName   map[string]Constructor
	fallback string
}

// NewRegistry 创建空注册表；fallback 是未知站点名回退到的条目名。
func NewRegistry(fallback string) *Registry {
	return &Registry{
		byName:   make(map[string]Constructor),
		fallback: normName(fallback),
	}
}

func (r *Registry) Register(name string, c Constructor) error {
	name = normName(name)
	if name == "" {
		return fmt.Errorf("provider 名称不能为空")
	}
	if c == nil {
		return fmt.Errorf("provider %q 的构造函数不能为空", name)
	}
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("重复的 provider：%q", name)
	}
	r.byName[name] = c
	return nil
}

// Names 返回已注册的站点名，按字典序。
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Build 按 names 的顺序构造 Provider 列表。
//
// 未知站点名回退到 fallback 条目并记录 WARN；fallback 自身未注册时报错。
// 每个 Provider 拥有独立的 Fetcher（页面缓存不跨站点共享）。
func (r *Registry) Build(names []string, opts Options) ([]*Provider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	out := make([]*Provider, 0, len(names))
	for _, raw := range names {
		name := normName(raw)
		ctor, ok := r.byName[name]
		if !ok {
			fb, fok := r.byName[r.fallback]
			if !fok {
				return nil, fmt.Errorf("未知 provider：%q（且兜底 %q 未注册）", raw, r.fallback)
			}
			logger.Warn("未知 provider，使用兜底", "name", raw, "fallback", r.fallback)
			ctor = fb
		}

		c := ctor(opts)
		var header http.Header
		if h, ok := c.(headerer); ok {
			header = h.Header()
		}
		var final []int
		if fs, ok := c.(finalStatuser); ok {
			final = fs.FinalStatus()
		}
		f := NewFetcher(FetcherOptions{
			Client:      opts.Client,
			Timeout:     opts.Timeout,
			Retry:       opts.Retry,
			Header:      header,
			FinalStatus: final,
			Logger:      logger.Named("fetch"),
		})
		out = append(out, New(c, f, logger))
	}
	return out, nil
}

func normName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
