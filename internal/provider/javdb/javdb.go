// Package javdb 实现 JavDB 站点的番号定位与详情解析。
package javdb

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/gavdener/internal/domain"
	"github.com/John-Robertt/gavdener/internal/match"
	"github.com/John-Robertt/gavdener/internal/provider"
)

const (
	Name           = "javdb"
	DefaultBaseURL = "https://javdb.com"
)

// Catalog 需要先搜索再进入详情页：详情页路径是站内 ID（/v/xxxx），不能由番号拼出。
// 因此 ResolveCode 返回的 Locator 总是带 URI。
type Catalog struct {
	// BaseURL 允许指定可用的镜像域名（例如 javdb565.com）。为空时使用 DefaultBaseURL。
	BaseURL string
}

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

func (c *Catalog) ResolveCode(ctx context.Context, f *provider.Fetcher, query string) (provider.Locator, bool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return provider.Locator{}, false, nil
	}
	doc, err := f.Document(ctx, c.base()+"/search?q="+url.QueryEscape(query)+"&f=all")
	if err != nil {
		return provider.Locator{}, false, err
	}

	codes, hrefs := ParseSearch(doc)
	code, ok := match.Best(query, codes)
	if !ok {
		return provider.Locator{}, false, nil
	}
	return provider.Locator{Code: code, URI: hrefs[code]}, true, nil
}

// ParseSearch 返回搜索列表中的番号（按首次出现顺序去重）以及“番号 -> 详情页 href”。
// 同一番号出现多次时，href 取最后一次。
func ParseSearch(doc *goquery.Document) ([]string, map[string]string) {
	var codes []string
	hrefs := make(map[string]string)
	doc.Find("div.movie-list div.item a.box").Each(func(_ int, s *goquery.Selection) {
		code := domain.NormSpace(s.Find("div.video-title strong").First().Text())
		href, ok := s.Attr("href")
		if code == "" || !ok || strings.TrimSpace(href) == "" {
			return
		}
		if _, seen := hrefs[code]; !seen {
			codes = append(codes, code)
		}
		hrefs[code] = strings.TrimSpace(href)
	})
	return codes, hrefs
}

func (c *Catalog) FetchDetails(ctx context.Context, f *provider.Fetcher, loc provider.Locator) (provider.Details, error) {
	doc, err := f.Document(ctx, c.detailURL(loc))
	if err != nil {
		return provider.Details{}, err
	}
	return ParseDetails(doc), nil
}

func (c *Catalog) detailURL(loc provider.Locator) string {
	uri := strings.TrimSpace(loc.URI)
	if uri == "" {
		// 没有站内 ID：按番号拼路径，站点不认时会以 HTTP 错误的形式返回。
		return c.base() + "/" + url.PathEscape(loc.Code)
	}
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri
	}
	bu, err := url.Parse(c.base() + "/")
	if err != nil {
		return c.base() + uri
	}
	ru, err := url.Parse(uri)
	if err != nil {
		return c.base() + uri
	}
	return bu.ResolveReference(ru).String()
}

// ParseDetails 从详情页提取标题、导演、演员与标签；缺失字段留空。
//
// 标题优先取隐藏的 origin-title（原标题），不存在时回退 current-title。
// goquery 不执行 CSS，display:none 的节点同样可读。
func ParseDetails(doc *goquery.Document) provider.Details {
	var d provider.Details

	d.Title = domain.NormSpace(doc.Find("h2.title span.origin-title").First().Text())
	if d.Title == "" {
		d.Title = domain.NormSpace(doc.Find("h2.title strong.current-title").First().Text())
	}

	doc.Find("nav.movie-panel-info .panel-block").Each(func(_ int, s *goquery.Selection) {
		switch normHeader(s.Find("strong").First().Text()) {
		case "導演", "导演", "Director":
			d.Director = domain.NormSpace(s.Find("span.value a").First().Text())
		case "演員", "演员", "Actor(s)", "Actors", "Cast":
			d.Actors = parseActors(s.Find("span.value").First())
		case "類別", "类别", "Tags", "Genres", "Category":
			s.Find("span.value a").Each(func(_ int, a *goquery.Selection) {
				d.Tags = append(d.Tags, a.Text())
			})
		}
	})

	d.Actors = domain.NormList(d.Actors)
	d.Tags = domain.NormList(d.Tags)
	return d
}

// parseActors 只保留标记为女性（<strong class="symbol female">）的演员。
// 页面上完全没有性别标记时保留全部。
func parseActors(value *goquery.Selection) []string {
	links := value.Find("a")
	marked := value.Find("strong.symbol").Length() > 0

	var out []string
	links.Each(func(_ int, a *goquery.Selection) {
		if marked && !a.NextAllFiltered("strong").First().HasClass("female") {
			return
		}
		out = append(out, a.Text())
	})
	return out
}

func normHeader(s string) string {
	s = domain.NormSpace(s)
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimSuffix(s, "：")
	return strings.TrimSpace(s)
}
