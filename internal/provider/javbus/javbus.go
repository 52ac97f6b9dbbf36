// Package javbus 实现 JavBus 站点的番号定位与详情解析。
package javbus

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/gavdener/internal/domain"
	"github.com/John-Robertt/gavdener/internal/match"
	"github.com/John-Robertt/gavdener/internal/provider"
)

const (
	Name           = "javbus"
	DefaultBaseURL = "https://www.javbus.com"
)

// Catalog 通过站内搜索定位番号，再进入 /<code> 详情页。
//
// 有码搜索没有候选时（无码作品常见），再查一次无码搜索。
type Catalog struct {
	BaseURL string
}

// New 是注册表使用的构造函数。
func New(opts provider.Options) provider.Catalog {
	return &Catalog{BaseURL: opts.BaseURL(Name, DefaultBaseURL)}
}

func (c *Catalog) Name() string { return Name }

func (c *Catalog) base() string {
	u := strings.TrimSpace(c.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// Header 让 Fetcher 在每个请求上带上成年确认 Cookie，避免被引导到 driver-verify 页。
func (c *Catalog) Header() http.Header {
	h := http.Header{}
	h.Set("Cookie", "age=verified; existmag=all")
	return h
}

// FinalStatus 声明 404 是确定结果：空搜索页直接返回 404，重试没有意义。
func (c *Catalog) FinalStatus() []int { return []int{http.StatusNotFound} }

func (c *Catalog) ResolveCode(ctx context.Context, f *provider.Fetcher, query string) (provider.Locator, bool, error) {
	q := url.PathEscape(strings.TrimSpace(query))
	if q == "" {
		return provider.Locator{}, false, nil
	}

	codes, err := c.searchCodes(ctx, f, c.base()+"/search/"+q)
	if err != nil {
		return provider.Locator{}, false, err
	}
	if len(codes) == 0 {
		codes, err = c.searchCodes(ctx, f, c.base()+"/uncensored/search/"+q)
		if err != nil {
			return provider.Locator{}, false, err
		}
	}

	code, ok := match.Best(query, codes)
	if !ok {
		return provider.Locator{}, false, nil
	}
	return provider.Locator{Code: code}, true, nil
}

// searchCodes 返回搜索结果页里每个条目的番号（按页面顺序）。
// JavBus 对空搜索直接返回 404，这里把它视为“没有结果”。
func (c *Catalog) searchCodes(ctx context.Context, f *provider.Fetcher, u string) ([]string, error) {
	doc, err := f.Document(ctx, u)
	if err != nil {
		if provider.IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ParseSearch(doc), nil
}

// ParseSearch 提取搜索结果页中每个 movie-box 的第一个 <date>（即番号）。
func ParseSearch(doc *goquery.Document) []string {
	var out []string
	doc.Find("#waterfall a.movie-box").Each(func(_ int, s *goquery.Selection) {
		code := domain.NormSpace(s.Find("date").First().Text())
		if code != "" {
			out = append(out, code)
		}
	})
	return out
}

func (c *Catalog) FetchDetails(ctx context.Context, f *provider.Fetcher, loc provider.Locator) (provider.Details, error) {
	doc, err := f.Document(ctx, c.base()+"/"+url.PathEscape(loc.Code))
	if err != nil {
		return provider.Details{}, err
	}
	return ParseDetails(doc, loc.Code), nil
}

// ParseDetails 从详情页提取标题、导演、演员与标签；缺失字段留空。
func ParseDetails(doc *goquery.Document, code string) provider.Details {
	var d provider.Details

	title := doc.Find("h3").First().Text()
	if code != "" {
		title = regexp.MustCompile(regexp.QuoteMeta(code)+`\s`).ReplaceAllString(title, "")
	}
	d.Title = domain.NormSpace(title)

	info := doc.Find("div.movie div.info")
	if info.Length() == 0 {
		info = doc.Find("div.info")
	}

	info.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		h := normHeader(p.Find("span.header").First().Text())
		switch h {
		case "導演", "导演", "Director", "監督":
			d.Director = domain.NormSpace(p.Find("a").First().Text())
			return false
		}
		return true
	})

	// 演员：<span class="genre"><a href=".../star/...">名字</a></span>
	// 标签：<span class="genre"><label><input ...><a href=".../genre/...">标签</a></label></span>
	info.Find("p > span > a").Each(func(_ int, a *goquery.Selection) {
		d.Actors = append(d.Actors, a.Text())
	})
	if len(d.Actors) == 0 {
		doc.Find("div.star-name a").Each(func(_ int, a *goquery.Selection) {
			d.Actors = append(d.Actors, a.Text())
		})
	}
	info.Find("p > span > label > a").Each(func(_ int, a *goquery.Selection) {
		d.Tags = append(d.Tags, a.Text())
	})

	d.Actors = domain.NormList(d.Actors)
	d.Tags = domain.NormList(d.Tags)
	return d
}

func normHeader(s string) string {
	s = domain.NormSpace(s)
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimSuffix(s, "：")
	return strings.TrimSpace(s)
}
