// Package provider 把“站点差异”限制在 Catalog 实现内部；
// 核心流程只依赖 Provider.GetInfo 与解析链 Resolve。
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/John-Robertt/gavdener/internal/domain"
	"github.com/John-Robertt/gavdener/internal/infra/cache"
)

// Locator 是 ResolveCode 的结果：站点上的番号，以及可选的详情页定位串。
// URI 为空表示“直接用 Code 定位详情页”。
type Locator struct {
	Code string
	URI  string
}

// Details 是详情页解析出的字段。缺失的字段留空，由 MovieInfo.Normalize 回退为默认值。
type Details struct {
	Title    string
	Director string
	Actors   []string
	Tags     []string
}

// Catalog 是单个站点的能力实现。
//
// 约束：
// - 网络请求一律经由传入的 Fetcher（缓存、超时、重试由它统一负责）
// - ResolveCode 找不到候选时返回 ok=false, err=nil；网络失败必须作为 err 返回，不能吞成“没找到”
// - FetchDetails 对缺失字段要宽容：解析不到就留空，不报错
type Catalog interface {
	Name() string
	ResolveCode(ctx context.Context, f *Fetcher, query string) (loc Locator, ok bool, err error)
	FetchDetails(ctx context.Context, f *Fetcher, loc Locator) (Details, error)
}

// Error 是 provider 阶段的可追溯错误。
type Error struct {
	Provider string // provider name（小写）
	Stage    string // "resolve" 或 "details"
	Query    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s query=%q: %v", e.Provider, e.Stage, e.Query, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Provider 持有一个 Catalog 及其专属的页面缓存与结果缓存。
// 生命周期等于一次 run；不同 Provider 之间不共享缓存。
type Provider struct {
	catalog Catalog
	fetcher *Fetcher
	results *cache.Store[*domain.MovieInfo]
	log     hclog.Logger
}

// New 用给定的 Fetcher 包装 catalog。logger 为 nil 时不输出日志。
func New(c Catalog, f *Fetcher, logger hclog.Logger) *Provider {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Provider{
		catalog: c,
		fetcher: f,
		results: cache.New[*domain.MovieInfo](),
		log:     logger.Named(strings.ToLower(c.Name())),
	}
}

func (p *Provider) Name() string { return strings.ToLower(p.catalog.Name()) }

// Fetcher 暴露底层 Fetcher（测试与统计用）。
func (p *Provider) Fetcher() *Fetcher { return p.fetcher }

// GetInfo 用 query 在站点上定位番号并抓取详情。
//
// 返回 (nil, nil) 表示该站点没有匹配结果；这个“未命中”同样会被缓存，
// 同一次 run 内相同 query 不会再次请求站点。
func (p *Provider) GetInfo(ctx context.Context, query string) (*domain.MovieInfo, error) {
	if info, ok := p.results.Get(query); ok {
		p.log.Debug("结果缓存命中", "query", query)
		return info, nil
	}

	loc, ok, err := p.catalog.ResolveCode(ctx, p.fetcher, query)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Stage: "resolve", Query: query, Err: err}
	}
	if !ok || strings.TrimSpace(loc.Code) == "" {
		p.log.Info("站点无匹配结果", "query", query)
		p.results.Put(query, nil)
		return nil, nil
	}

	d, err := p.catalog.FetchDetails(ctx, p.fetcher, loc)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Stage: "details", Query: query, Err: err}
	}

	info := domain.MovieInfo{
		Codename: loc.Code,
		Title:    d.Title,
		Director: d.Director,
		Actors:   d.Actors,
		Tags:     d.Tags,
	}.Normalize()

	p.results.Put(query, &info)
	if info.Codename != query {
		p.results.Put(info.Codename, &info)
	}
	return &info, nil
}
