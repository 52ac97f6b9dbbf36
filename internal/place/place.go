// Package place 把已解析的媒体文件放进规范目录树：
//
//	<root>/<主演或 Unknown>/<番号>/<文件名>[-N][.ext]
//
// 约束：
//   - 永不覆盖已存在的不同文件（碰撞时追加递增后缀）
//   - 目标已是源文件本身（同一 inode）时视为已整理，只刷新 info 标记
//   - 移动只用 rename；跨盘（EXDEV）直接失败，不做 copy+delete
package place

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/John-Robertt/gavdener/internal/domain"
	"github.com/John-Robertt/gavdener/internal/infra/fsx"
	"github.com/John-Robertt/gavdener/internal/marker"
)

// Kind 区分失败来源：文件系统错误，还是调用方违反了前置条件。
type Kind string

const (
	KindFS    Kind = "fs"
	KindLogic Kind = "logic"
)

// Error 是 Place 的唯一错误类型。调用方记录后继续处理下一个文件。
type Error struct {
	Kind Kind
	Op   string // 例如 "stat" / "mkdir" / "marker" / "move" / "link"
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("place %s %s（%s）：%v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind 判断 err 是否为指定 Kind 的 *Error。
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

var (
	ErrUnresolved = errors.New("元数据未解析，不能整理")
	ErrNotRegular = errors.New("源路径不是普通文件")
)

// Result 描述一次成功的整理。
type Result struct {
	Status string   // domain.StatusPlaced / StatusAlreadyPlaced / StatusDryRun
	Target string   // 主目录下的最终路径（调试模式下为“将要移动到”的路径）
	Links  []string // 本次新建的硬链接
}

// Engine 持有整理所需的配置；零值 Logger 不输出日志。
type Engine struct {
	Root       string
	Debug      bool
	LinkActors bool
	InfoName   string
	Logger     hclog.Logger
}

func (e *Engine) log() hclog.Logger {
	if e.Logger == nil {
		return hclog.NewNullLogger()
	}
	return e.Logger
}

// Dir 返回 key（演员名）与番号对应的目录。
func (e *Engine) Dir(key, codename string) string {
	return filepath.Join(e.Root, SanitizeName(key), SanitizeName(codename))
}

// Place 整理 src。失败时返回 *Error，且不会 panic。
func (e *Engine) Place(src string, info domain.MovieInfo) (Result, error) {
	if !info.Resolved() {
		return Result{}, &Error{Kind: KindLogic, Op: "precheck", Path: src, Err: ErrUnresolved}
	}
	if strings.TrimSpace(e.Root) == "" {
		return Result{}, &Error{Kind: KindLogic, Op: "precheck", Path: src, Err: errors.New("目标根目录为空")}
	}
	fi, err := os.Lstat(src)
	if err != nil {
		return Result{}, &Error{Kind: KindFS, Op: "stat", Path: src, Err: err}
	}
	if !fi.Mode().IsRegular() {
		return Result{}, &Error{Kind: KindLogic, Op: "precheck", Path: src, Err: ErrNotRegular}
	}

	dir := e.Dir(info.PrimaryActor(), info.Codename)
	if err := fsx.EnsureDir(dir); err != nil {
		return Result{}, &Error{Kind: KindFS, Op: "mkdir", Path: dir, Err: err}
	}

	target, already, err := pickTarget(dir, filepath.Base(src), src)
	if err != nil {
		return Result{}, &Error{Kind: KindFS, Op: "stat", Path: dir, Err: err}
	}

	res := Result{Target: target}
	switch {
	case e.Debug:
		res.Status = domain.StatusDryRun
		e.log().Debug("移动文件（调试模式，未执行）", "src", src, "dst", target)
	case already:
		res.Status = domain.StatusAlreadyPlaced
		e.log().Info("文件已在目标位置，只刷新标记", "path", target)
	default:
		res.Status = domain.StatusPlaced
	}

	if err := marker.WriteInfo(dir, e.InfoName, info); err != nil {
		return res, &Error{Kind: KindFS, Op: "marker", Path: dir, Err: err}
	}

	if res.Status == domain.StatusPlaced {
		e.log().Info("移动文件", "src", src, "dst", target)
		if err := fsx.Rename(src, target); err != nil {
			return res, &Error{Kind: KindFS, Op: "move", Path: target, Err: err}
		}
	}

	if e.LinkActors {
		links, err := e.linkSecondary(info, target)
		res.Links = links
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// linkSecondary 为第二位及之后的演员建立硬链接目录。
// 调试模式下只写标记、不建链接。
func (e *Engine) linkSecondary(info domain.MovieInfo, target string) ([]string, error) {
	if len(info.Actors) < 2 {
		return nil, nil
	}
	primary := SanitizeName(info.PrimaryActor())
	seen := map[string]struct{}{primary: {}}

	var links []string
	for _, actor := range info.Actors[1:] {
		key := SanitizeName(actor)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		dir := e.Dir(actor, info.Codename)
		if err := fsx.EnsureDir(dir); err != nil {
			return links, &Error{Kind: KindFS, Op: "mkdir", Path: dir, Err: err}
		}

		link := filepath.Join(dir, filepath.Base(target))
		if e.Debug {
			e.log().Debug("创建硬链接（调试模式，未执行）", "src", target, "dst", link)
		} else {
			made, err := e.linkIfMissing(target, link)
			if err != nil {
				return links, err
			}
			if made {
				links = append(links, link)
			}
		}

		if err := marker.WriteInfo(dir, e.InfoName, info); err != nil {
			return links, &Error{Kind: KindFS, Op: "marker", Path: dir, Err: err}
		}
	}
	return links, nil
}

// linkIfMissing 仅当 target 存在且 link 不存在时建立硬链接；made 表示本次是否新建。
func (e *Engine) linkIfMissing(target, link string) (made bool, err error) {
	ok, err := fsx.Exists(target)
	if err != nil {
		return false, &Error{Kind: KindFS, Op: "stat", Path: target, Err: err}
	}
	if !ok {
		return false, nil
	}
	ok, err = fsx.Exists(link)
	if err != nil {
		return false, &Error{Kind: KindFS, Op: "stat", Path: link, Err: err}
	}
	if ok {
		return false, nil
	}
	e.log().Info("创建硬链接", "src", target, "dst", link)
	if err := fsx.Link(target, link); err != nil {
		return false, &Error{Kind: KindFS, Op: "link", Path: link, Err: err}
	}
	return true, nil
}

// pickTarget 在 dir 下为 name 找一个可用路径。
//
// 已存在且与 src 是同一文件 => already=true；
// 已存在但是不同文件 => 依次尝试 name-1.ext、name-2.ext ...
func pickTarget(dir, name, src string) (path string, already bool, err error) {
	stem, ext := splitExt(name)
	path = filepath.Join(dir, name)
	for i := 1; ; i++ {
		ok, err := fsx.Exists(path)
		if err != nil {
			return "", false, err
		}
		if !ok {
			return path, false, nil
		}
		same, err := fsx.SameFile(src, path)
		if err != nil {
			return "", false, err
		}
		if same {
			return path, true, nil
		}
		path = filepath.Join(dir, stem+"-"+strconv.Itoa(i)+ext)
	}
}

// splitExt 与 filepath.Ext 的区别：以 '.' 开头且没有其它 '.' 的名字（如 ".hidden"）没有扩展名。
func splitExt(name string) (stem, ext string) {
	trimmed := strings.TrimLeft(name, ".")
	i := strings.LastIndex(trimmed, ".")
	if i < 0 {
		return name, ""
	}
	cut := len(name) - len(trimmed) + i
	return name[:cut], name[cut:]
}

// SanitizeName 把演员名/番号变成安全的单级目录名。
//
// 路径分隔符与 Windows 保留字符替换为 '_'，结尾的点和空格去掉（"." 与 ".." 因此变为 "_"）。
// 空串回退为 domain.DefaultText。
func SanitizeName(s string) string {
	s = domain.NormSpace(s)
	if s == "" {
		return domain.DefaultText
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimRight(b.String(), ". ")
	if out == "" {
		return "_"
	}
	return out
}
