// Package run 把扫描、番号提取、元数据解析与整理串成一次批处理。
package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/hashicorp/go-hclog"

	"github.com/John-Robertt/gavdener/internal/code"
	"github.com/John-Robertt/gavdener/internal/config"
	"github.com/John-Robertt/gavdener/internal/domain"
	"github.com/John-Robertt/gavdener/internal/infra/fsx"
	"github.com/John-Robertt/gavdener/internal/infra/httpx"
	"github.com/John-Robertt/gavdener/internal/logx"
	"github.com/John-Robertt/gavdener/internal/marker"
	"github.com/John-Robertt/gavdener/internal/place"
	"github.com/John-Robertt/gavdener/internal/provider"
	"github.com/John-Robertt/gavdener/internal/scan"
)

// ProviderSidecar 是“元数据来自已有 info 标记”时 ItemResult.Provider 的取值。
const ProviderSidecar = "sidecar"

// Providers 按 cfg.Sites 的顺序构造 provider 链，共享同一个 HTTP client。
func Providers(cfg config.Config, reg *provider.Registry, logger hclog.Logger) ([]*provider.Provider, error) {
	client, err := httpx.NewMetaClient(cfg.Proxies)
	if err != nil {
		return nil, err
	}
	return reg.Build(cfg.Sites, provider.Options{
		Client:   client,
		Timeout:  cfg.Timeout,
		Retry:    cfg.Retry,
		BaseURLs: cfg.BaseURLs(),
		Logger:   logger,
	})
}

// Execute 顺序处理 cfg.MediaDir 下的每个文件。
//
// 单个文件的整理失败只影响该条目；provider 硬失败（以及 ctx 取消）会中止整批，
// 此时返回已处理部分的报告（Aborted=true）和该错误。
func Execute(ctx context.Context, cfg config.Config, providers []*provider.Provider, logger hclog.Logger, obs Observer) (domain.RunReport, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if obs == nil {
		obs = nopObserver{}
	}

	rr := domain.RunReport{
		MediaDir:  cfg.MediaDir,
		TargetDir: cfg.TargetDir,
		Debug:     cfg.Debug,
		StartedAt: time.Now(),
		Items:     make([]domain.ItemResult, 0, 64),
	}
	obs.OnStart(cfg)

	scanStarted := time.Now()
	files, err := scan.Files(cfg.MediaDir, scan.Options{
		Include:     cfg.TargetExts,
		Exclude:     cfg.ExcludeExts,
		IgnoreName:  cfg.IgnoreName,
		InfoName:    cfg.InfoName,
		ExcludeDirs: excludeDirs(cfg),
	})
	if err != nil {
		logger.Error("扫描失败", "dir", cfg.MediaDir, "err", err)
		return finish(&rr, obs, fmt.Errorf("%s: %w", domain.ErrCodeScanFailed, err))
	}
	obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, time.Since(scanStarted))
	logger.Info("扫描完成", "dir", cfg.MediaDir, "files", len(files))

	x := &executor{
		cfg:       cfg,
		providers: providers,
		log:       logger,
		engine: &place.Engine{
			Root:       cfg.TargetDir,
			Debug:      cfg.Debug,
			LinkActors: cfg.LinkActors,
			InfoName:   cfg.InfoName,
			Logger:     logger.Named("place"),
		},
	}

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return finish(&rr, obs, err)
		}
		started := time.Now()
		item, err := x.one(ctx, f)
		rr.Items = append(rr.Items, item)
		obs.OnItemDone(i+1, len(files), item, time.Since(started))
		if err != nil {
			logx.Log(logger, "处理失败, 中止本次运行: "+f.AbsPath, "ERROR")
			return finish(&rr, obs, err)
		}
	}
	return finish(&rr, obs, nil)
}

func finish(rr *domain.RunReport, obs Observer, err error) (domain.RunReport, error) {
	rr.FinishedAt = time.Now()
	if err != nil {
		rr.Aborted = true
		rr.AbortMsg = err.Error()
		obs.OnAbort(err)
	}
	rr.Finalize()
	return *rr, err
}

type executor struct {
	cfg       config.Config
	providers []*provider.Provider
	engine    *place.Engine
	log       hclog.Logger
}

// one 处理单个文件；只有需要中止整批时才返回 error。
func (x *executor) one(ctx context.Context, f domain.VideoFile) (domain.ItemResult, error) {
	item := domain.ItemResult{Src: f.AbsPath}
	logx.Log(x.log, "处理中: "+f.AbsPath, "info")

	item.Query = code.Extract(f.AbsPath)

	info, ok := x.sidecar(f.AbsPath, item.Query)
	if ok {
		item.Provider = ProviderSidecar
		x.log.Info("复用已有标记，跳过网络查询", "path", f.AbsPath, "codename", info.Codename)
	} else {
		logx.Log(x.log, "获取信息: "+item.Query, "info")

		var (
			prov string
			err  error
		)
		info, prov, err = provider.ResolveWith(ctx, item.Query, x.providers, x.log.Named("resolve"))
		item.Provider = prov
		if err != nil {
			item.Status = domain.StatusFailed
			item.ErrorCode = domain.ErrCodeResolveFailed
			item.ErrorMsg = err.Error()
			return item, err
		}
	}
	logx.Log(x.log, "影片信息:\n"+info.String(), "debug")

	if !info.Resolved() {
		item.Status = domain.StatusUnresolved
		item.Provider = ""
		if x.cfg.Debug {
			x.log.Debug("未解析（调试模式，不写 ignore 标记）", "path", f.AbsPath)
			return item, nil
		}
		if err := marker.WriteIgnore(f.AbsPath, x.cfg.IgnoreName); err != nil {
			x.log.Warn("写入 ignore 标记失败", "path", f.AbsPath, "err", err)
			item.ErrorCode = domain.ErrCodeMarkerFailed
			item.ErrorMsg = err.Error()
		}
		return item, nil
	}
	item.Codename = info.Codename

	res, err := x.engine.Place(f.AbsPath, info)
	item.Target = res.Target
	item.Links = res.Links
	if err != nil {
		x.log.Error("整理失败", "path", f.AbsPath, "err", err)
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodePlaceFailed
		var pe *place.Error
		switch {
		case fsx.IsPathTypeConflict(err):
			item.ErrorCode = domain.ErrCodeTargetConflict
		case errors.As(err, &pe) && pe.Op == "marker":
			item.ErrorCode = domain.ErrCodeMarkerFailed
		}
		item.ErrorMsg = err.Error()
		return item, nil
	}
	item.Status = res.Status
	return item, nil
}

// sidecar 读取文件所在目录的 info 标记。
// 只有标记已解析、且番号与 query 一致时才复用：同一目录下的其它影片仍需各自查询。
func (x *executor) sidecar(path, query string) (domain.MovieInfo, bool) {
	info, err := marker.ReadInfo(filepath.Dir(path), x.cfg.InfoName)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			x.log.Warn("info 标记不可读，改为联网查询", "path", path, "err", err)
		}
		return domain.MovieInfo{}, false
	}
	if !info.Resolved() || !sameCode(query, info.Codename) {
		return domain.MovieInfo{}, false
	}
	return info, true
}

// sameCode 忽略大小写与分隔符比较两个番号，例如 "abp_123" 与 "ABP-123"。
func sameCode(a, b string) bool {
	a, b = codeKey(a), codeKey(b)
	return a != "" && a == b
}

func codeKey(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// excludeDirs 返回扫描时整棵跳过的目录。
// 目标目录严格位于媒体目录之下时才排除；媒体目录就是目标目录（或在其中）时，
// 扫描的正是已整理的文件，重跑只会得到 already_placed 并补齐缺失的标记。
func excludeDirs(cfg config.Config) []string {
	media, target := filepath.Clean(cfg.MediaDir), filepath.Clean(cfg.TargetDir)
	if cfg.TargetDir == "" || media == target {
		return nil
	}
	rel, err := filepath.Rel(media, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	return []string{target}
}
