// Package logx 构造 gavdener 使用的 hclog 日志器：终端输出 + 追加写入的日志文件。
package logx

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
)

// Options 描述日志输出。
type Options struct {
	Name  string
	Level string
	// File 为空表示不写日志文件。文件以追加方式打开，不轮转。
	File string
	// Stderr 为 nil 时使用 os.Stderr。
	Stderr io.Writer
}

// New 返回日志器与需要在退出时关闭的资源。
//
// 终端是 TTY 时启用颜色；日志文件永远不带颜色，且总是记录到 debug 级别，
// 便于事后排查（终端仍按 Level 过滤）。
func New(opts Options) (hclog.Logger, io.Closer, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	name := opts.Name
	if name == "" {
		name = "gavdener"
	}

	color := hclog.ColorOff
	if f, ok := stderr.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		color = hclog.AutoColor
	}

	l := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:   name,
		Level:  ParseLevel(opts.Level),
		Output: stderr,
		Color:  color,
	})

	if strings.TrimSpace(opts.File) == "" {
		return l, nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	l.RegisterSink(hclog.NewSinkAdapter(&hclog.LoggerOptions{
		Name:   name,
		Level:  hclog.Debug,
		Output: f,
		Color:  hclog.ColorOff,
	}))
	return l, f, nil
}

// ParseLevel 解析日志级别；兼容 "warning" 以及单字母缩写（d/i/w/e），无法识别时返回 Info。
func ParseLevel(s string) hclog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "warning", "w":
		return hclog.Warn
	case "d":
		return hclog.Debug
	case "i":
		return hclog.Info
	case "e", "critical":
		return hclog.Error
	}
	if lv := hclog.LevelFromString(s); lv != hclog.NoLevel {
		return lv
	}
	return hclog.Info
}

// Log 是单一入口的“按级别记录一条消息”，供只关心 message + level 的调用方使用。
func Log(l hclog.Logger, msg, level string, args ...any) {
	if l == nil {
		return
	}
	l.Log(ParseLevel(level), msg, args...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
