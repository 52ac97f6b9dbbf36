package main

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/gavdener/internal/app/run"
	"github.com/John-Robertt/gavdener/internal/config"
	"github.com/John-Robertt/gavdener/internal/domain"
	"github.com/John-Robertt/gavdener/internal/infra/httpx"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的逐行进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr，不污染 stdout 的报告
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：单个文件重试较久时也会定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total      int
	done       int
	placed     int
	skipped    int
	unresolved int
	failed     int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(cfg config.Config) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "apply"
	modeHint := ""
	if cfg.Debug {
		mode = "debug"
		modeHint = " (只写标记，不移动/不链接)"
	}

	fmt.Fprintf(p.w, "[%s] gavdener run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	if cfg.File != "" {
		fmt.Fprintf(p.w, "  config: %s\n", cfg.File)
	}
	fmt.Fprintf(p.w, "  media: %s\n", cfg.MediaDir)
	fmt.Fprintf(p.w, "  target: %s\n", cfg.TargetDir)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  sites: %s\n", strings.Join(cfg.Sites, " -> "))
	fmt.Fprintf(p.w, "  timeout: %s retry: %d\n", cfg.Timeout, cfg.Retry)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxies(cfg.Proxies))
	fmt.Fprintf(p.w, "  link_actors: %s\n", onOff(cfg.LinkActors))
	if cfg.JavDBBaseURL != "" {
		fmt.Fprintf(p.w, "  javdb_base_url: %s\n", truncate(cfg.JavDBBaseURL, 120))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		p.total = intField(fields, "files")
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n\n", p.total, formatShortDuration(dur))
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	switch res.Status {
	case domain.StatusPlaced, domain.StatusDryRun:
		p.placed++
	case domain.StatusAlreadyPlaced:
		p.skipped++
	case domain.StatusUnresolved:
		p.unresolved++
	case domain.StatusFailed:
		p.failed++
	}

	fmt.Fprintln(p.w, formatItemLine(idx, total, res, dur))
	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

func (p *progressUI) OnAbort(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "中止: done=%d/%d: %s\n", p.done, p.total, truncate(err.Error(), 200))
	p.lastPrinted = time.Now()
	p.stopTickerLocked()
}

func formatItemLine(idx, total int, res domain.ItemResult, dur time.Duration) string {
	key := res.Codename
	if key == "" {
		key = res.Query
	}
	if key == "" {
		key = res.Src
	}
	prefix := fmt.Sprintf("[%d/%d] %s %s", idx, total, statusLabel(res.Status), key)

	switch res.Status {
	case domain.StatusFailed:
		return fmt.Sprintf("%s %s: %s (%s)", prefix, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur))
	case domain.StatusUnresolved:
		return fmt.Sprintf("%s 未找到元数据，已标记忽略 (%s)", prefix, formatShortDuration(dur))
	case domain.StatusAlreadyPlaced:
		return fmt.Sprintf("%s 已在目标位置 (%s)", prefix, formatShortDuration(dur))
	}

	links := ""
	if n := len(res.Links); n > 0 {
		links = fmt.Sprintf(" links=%d", n)
	}
	return fmt.Sprintf("%s provider=%s -> %s%s (%s)",
		prefix, orDash(res.Provider), res.Target, links, formatShortDuration(dur),
	)
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d placed=%d skip=%d miss=%d fail=%d elapsed=%s\n",
						p.done, p.total, p.placed, p.skipped, p.unresolved, p.failed,
						formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) stopTickerLocked() {
	if !p.tickerStarted {
		return
	}
	close(p.stopCh)
	p.tickerStarted = false
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// formatProxies 只展示 scheme://host 与是否带认证，不回显密码。
func formatProxies(p httpx.Proxies) string {
	keys := make([]string, 0, len(p))
	for k, v := range p {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "off"
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatProxy(p[k]))
	}
	return "on (" + strings.Join(parts, ", ") + ")"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return truncate(raw, 120)
	}
	auth := ""
	if u.User != nil {
		auth = " auth"
	}
	return u.Scheme + "://" + u.Host + auth
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
