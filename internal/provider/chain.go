package provider

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/John-Robertt/gavdener/internal/domain"
)

// Resolve 按顺序询问 providers，返回第一个命中的结果。
//
//   - 某个 provider 返回错误：记录并立即返回该错误，不再尝试后续 provider
//   - 返回 nil（该站点没有匹配）：继续下一个
//   - 列表为空或全部未命中：返回 domain.NewMovieInfo()（规范的“未解析”值），err=nil
//
// 硬失败通常来自网络/环境问题，对所有站点同样成立，因此不降级。
func Resolve(ctx context.Context, query string, providers []*Provider, logger hclog.Logger) (domain.MovieInfo, error) {
	info, _, err := ResolveWith(ctx, query, providers, logger)
	return info, err
}

// ResolveWith 与 Resolve 相同，但额外返回给出结果（或报错）的 provider 名；全部未命中时为空串。
func ResolveWith(ctx context.Context, query string, providers []*Provider, logger hclog.Logger) (domain.MovieInfo, string, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if len(providers) == 0 {
		return domain.NewMovieInfo(), "", nil
	}
	for _, p := range providers {
		info, err := p.GetInfo(ctx, query)
		if err != nil {
			logger.Error("provider 失败，终止解析链", "provider", p.Name(), "query", query, "err", err)
			return domain.MovieInfo{}, p.Name(), err
		}
		if info == nil {
			logger.Debug("provider 未命中，尝试下一个", "provider", p.Name(), "query", query)
			continue
		}
		logger.Debug("解析成功", "provider", p.Name(), "query", query, "codename", info.Codename)
		return *info, p.Name(), nil
	}
	return domain.NewMovieInfo(), "", nil
}
