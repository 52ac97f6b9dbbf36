package logx

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]hclog.Level{
		"debug":   hclog.Debug,
		"INFO":    hclog.Info,
		"WARNING": hclog.Warn,
		"w":       hclog.Warn,
		"error":   hclog.Error,
		"trace":   hclog.Trace,
		"":        hclog.Info,
		"loud":    hclog.Info,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) 期望 %v，实际 %v", in, want, got)
		}
	}
}

func TestNew_WritesStderrAndAppendsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "logs", "gavdener.log")
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(file, []byte("old line\n"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	var stderr bytes.Buffer
	l, closer, err := New(Options{Level: "info", File: file, Stderr: &stderr})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	Log(l, "处理中", "info", "path", "/media/a.mp4")
	Log(l, "调试细节", "debug")
	if err := closer.Close(); err != nil {
		t.Fatalf("关闭失败：%v", err)
	}

	if !strings.Contains(stderr.String(), "处理中") {
		t.Fatalf("终端应输出 info：%q", stderr.String())
	}
	if strings.Contains(stderr.String(), "调试细节") {
		t.Fatalf("终端不应输出低于 Level 的日志：%q", stderr.String())
	}

	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("读取日志文件失败：%v", err)
	}
	s := string(b)
	if !strings.HasPrefix(s, "old line\n") {
		t.Fatalf("日志文件应追加写入：%q", s)
	}
	if !strings.Contains(s, "处理中") || !strings.Contains(s, "调试细节") {
		t.Fatalf("日志文件应记录到 debug：%q", s)
	}
	if strings.Contains(s, "\x1b[") {
		t.Fatalf("日志文件不应包含颜色控制符")
	}
}

func TestNew_NoFile(t *testing.T) {
	var stderr bytes.Buffer
	l, closer, err := New(Options{Stderr: &stderr})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer closer.Close()
	l.Warn("w")
	if !strings.Contains(stderr.String(), "[WARN]") {
		t.Fatalf("期望输出 WARN 行：%q", stderr.String())
	}
}

func TestLog_NilLogger(t *testing.T) {
	Log(nil, "x", "error")
}
