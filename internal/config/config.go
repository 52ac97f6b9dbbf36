// Package config 读取 gavdener.yaml 并与 CLI 参数合并为最终配置。
//
// 所有默认值与校验都在 Load 时完成；下游直接消费 Config，不再做二次判断。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/gavdener/internal/infra/httpx"
	"github.com/John-Robertt/gavdener/internal/marker"
)

const (
	// ErrCodeNotFound 表示显式指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示合并后仍缺少 media_dir 或 target_dir。
	ErrCodeMissingPath = "config_missing_path"
)

// DefaultFileName 是未显式指定 --config 时在 cwd 下查找的文件名（可选）。
const DefaultFileName = "gavdener.yaml"

const (
	DefaultSite     = "javbus"
	DefaultTimeout  = 5 * time.Second
	DefaultRetry    = 2
	DefaultLogFile  = "gavdener.log"
	DefaultLogLevel = "info"
)

// DefaultTargetExts 是未配置 scrapper.target_exts 时的扩展名白名单。
var DefaultTargetExts = []string{".mp4", ".mkv", ".avi", ".wmv", ".mov", ".ts"}

// CLIArgs 是 CLI 暴露的覆盖项；*Set 字段记录“是否显式指定”，
// 保证 --debug=false 能覆盖配置文件里的 debug: true。
type CLIArgs struct {
	ConfigPath string

	MediaDir  string
	TargetDir string

	Debug    bool
	DebugSet bool

	LinkActors    bool
	LinkActorsSet bool

	Sites []string
}

// FileConfig 对应 gavdener.yaml 的解析结构。未知字段忽略。
type FileConfig struct {
	General struct {
		MediaDir   string `yaml:"media_dir"`
		TargetDir  string `yaml:"target_dir"`
		Debug      *bool  `yaml:"debug"`
		LinkActors *bool  `yaml:"link_actors"`
	} `yaml:"general"`

	Spider struct {
		ResourceSites []string          `yaml:"resource_sites"`
		Proxy         map[string]string `yaml:"proxy"`
		Timeout       Duration          `yaml:"timeout"`
		Retry         *int              `yaml:"retry"`
		JavDBBaseURL  string            `yaml:"javdb_base_url"`
	} `yaml:"spider"`

	Scrapper struct {
		TargetExts  []string `yaml:"target_exts"`
		ExcludeExts []string `yaml:"exclude_exts"`
	} `yaml:"scrapper"`

	Markers struct {
		Ignore string `yaml:"ignore"`
		Info   string `yaml:"info"`
	} `yaml:"markers"`

	Log struct {
		File  *string `yaml:"file"`
		Level string  `yaml:"level"`
	} `yaml:"log"`
}

// Duration 接受 "5s"/"1m30s" 这类字符串，也接受纯数字（按秒）。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("第 %d 行：时长必须是标量", n.Line)
	}
	s := strings.TrimSpace(n.Value)
	if s == "" {
		*d = 0
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(f * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("第 %d 行：无效的时长 %q", n.Line, s)
	}
	*d = Duration(v)
	return nil
}

// Config 是合并并规范化后的最终配置。
type Config struct {
	// File 是实际读取的配置文件（未读取时为空）。
	File string

	MediaDir   string
	TargetDir  string
	Debug      bool
	LinkActors bool

	Sites        []string
	Proxies      httpx.Proxies
	Timeout      time.Duration
	Retry        int
	JavDBBaseURL string

	TargetExts  []string
	ExcludeExts []string

	IgnoreName string
	InfoName   string

	// LogFile 为空表示不写日志文件。
	LogFile  string
	LogLevel string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load 发现并读取配置文件，然后与 CLI 参数合并。
//
// 发现规则：
//  1. 指定了 --config：文件必须存在
//  2. 未指定：尝试 <cwd>/gavdener.yaml，不存在则全部使用默认值
//
// 覆盖优先级：CLI > 配置文件 > 内置默认。
// CLI 中的相对路径相对 cwd；配置文件中的相对路径相对配置文件所在目录。
func Load(cwd string, cli CLIArgs) (Config, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return Config{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return Config{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, DefaultFileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return Config{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}
	if !exists {
		cfgPath = ""
	}
	return merge(cwdAbs, cfgPath, cli, fc)
}

func merge(cwd, cfgPath string, cli CLIArgs, fc FileConfig) (Config, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}
	fileBase := cwd
	if cfgPath != "" {
		fileBase = filepath.Dir(cfgPath)
	}

	c := Config{File: cfgPath}

	// 路径：CLI > 配置文件
	c.MediaDir = pick(absCleanFrom(cwd, cli.MediaDir), absCleanFrom(fileBase, fc.General.MediaDir))
	c.TargetDir = pick(absCleanFrom(cwd, cli.TargetDir), absCleanFrom(fileBase, fc.General.TargetDir))
	if c.MediaDir == "" {
		return Config{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath, Err: errors.New("缺少媒体目录（general.media_dir 或命令行参数）")}
	}
	if c.TargetDir == "" {
		return Config{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath, Err: errors.New("缺少目标目录（general.target_dir 或 --target）")}
	}

	c.Debug = pickBool(cli.DebugSet, cli.Debug, fc.General.Debug, false)
	c.LinkActors = pickBool(cli.LinkActorsSet, cli.LinkActors, fc.General.LinkActors, false)

	// 站点顺序：CLI > 配置文件 > 默认 [javbus]。未知站点名在构造 provider 时回退，不在这里报错。
	sites := cli.Sites
	if len(sites) == 0 {
		sites = fc.Spider.ResourceSites
	}
	c.Sites = normSites(sites)
	if len(c.Sites) == 0 {
		c.Sites = []string{DefaultSite}
	}

	c.Proxies = httpx.Proxies{}
	for k, v := range fc.Spider.Proxy {
		if v = strings.TrimSpace(v); v != "" {
			c.Proxies[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
	if err := c.Proxies.Validate(); err != nil {
		return Config{}, invalid("spider.%v", err)
	}

	c.Timeout = time.Duration(fc.Spider.Timeout)
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Timeout < 0 {
		return Config{}, invalid("spider.timeout 不能为负数：%s", c.Timeout)
	}
	c.Retry = DefaultRetry
	if fc.Spider.Retry != nil {
		c.Retry = *fc.Spider.Retry
	}
	if c.Retry < 0 || c.Retry > 10 {
		return Config{}, invalid("spider.retry 必须在 [0, 10] 内，实际 %d", c.Retry)
	}

	c.JavDBBaseURL = strings.TrimSpace(fc.Spider.JavDBBaseURL)
	if c.JavDBBaseURL != "" {
		u, err := url.Parse(c.JavDBBaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return Config{}, invalid("spider.javdb_base_url 必须是 http/https 地址：%q", c.JavDBBaseURL)
		}
	}

	c.TargetExts = normExts(fc.Scrapper.TargetExts)
	if len(c.TargetExts) == 0 {
		c.TargetExts = append([]string(nil), DefaultTargetExts...)
	}
	c.ExcludeExts = normExts(fc.Scrapper.ExcludeExts)

	c.IgnoreName = orDefault(fc.Markers.Ignore, marker.DefaultIgnoreName)
	c.InfoName = orDefault(fc.Markers.Info, marker.DefaultInfoName)
	for _, n := range []string{c.IgnoreName, c.InfoName} {
		if strings.ContainsAny(n, `/\`) || n == "." || n == ".." {
			return Config{}, invalid("markers 文件名不能包含路径：%q", n)
		}
	}
	if c.IgnoreName == c.InfoName {
		return Config{}, invalid("markers.ignore 与 markers.info 不能相同：%q", c.IgnoreName)
	}

	c.LogFile = absCleanFrom(cwd, DefaultLogFile)
	if fc.Log.File != nil {
		c.LogFile = absCleanFrom(fileBase, strings.TrimSpace(*fc.Log.File))
	}
	c.LogLevel = strings.ToLower(orDefault(fc.Log.Level, DefaultLogLevel))
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return Config{}, invalid("log.level 无效：%q（可选 trace/debug/info/warn/error）", c.LogLevel)
	}
	return c, nil
}

// BaseURLs 返回按站点名覆盖的根地址（供 provider.Options 使用）。
func (c Config) BaseURLs() map[string]string {
	out := map[string]string{}
	if c.JavDBBaseURL != "" {
		out["javdb"] = c.JavDBBaseURL
	}
	return out
}

func pick(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func pickBool(cliSet, cliVal bool, file *bool, def bool) bool {
	if cliSet {
		return cliVal
	}
	if file != nil {
		return *file
	}
	return def
}

func normSites(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normExts(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute；p 为空时返回空串。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
