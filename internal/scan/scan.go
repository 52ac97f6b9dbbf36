// Package scan 枚举媒体目录下待处理的文件。
package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/gavdener/internal/domain"
	"github.com/John-Robertt/gavdener/internal/marker"
)

// Options 控制扫描范围。
type Options struct {
	// Include 为扩展名白名单（不区分大小写，可不带 '.'）。为空表示不过滤。
	Include []string
	// Exclude 为扩展名黑名单，优先于 Include。
	Exclude []string
	// IgnoreName 是 ignore 标记文件名；含该文件的目录，其下的文件全部跳过（子目录照常扫描）。
	IgnoreName string
	// InfoName 是 info 标记文件名，标记文件本身永远不会出现在结果里。
	InfoName string
	// ExcludeDirs 整棵跳过的目录（相对 root 或绝对路径），通常包含目标根目录。
	ExcludeDirs []string
}

// Files 扫描 root 下的文件，返回按 RelPath 排序的结果。
//
// 扫描阶段只做 stat（DirEntry.Info），不读文件内容。
func Files(root string, opts Options) ([]domain.VideoFile, error) {
	root, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return nil, err
	}
	excluded := buildExcluded(root, opts.ExcludeDirs)
	include := extSet(opts.Include)
	exclude := extSet(opts.Exclude)
	ignoreName := orDefault(opts.IgnoreName, marker.DefaultIgnoreName)
	infoName := orDefault(opts.InfoName, marker.DefaultInfoName)

	ignored := make(map[string]bool)
	files := make([]domain.VideoFile, 0, 128)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			if path != root && isExcluded(path, excluded) {
				return filepath.SkipDir
			}
			if marker.HasIgnore(path, ignoreName) {
				ignored[path] = true
			}
			return nil
		}

		if ignored[filepath.Dir(path)] {
			return nil
		}
		name := d.Name()
		if name == ignoreName || name == infoName || !d.Type().IsRegular() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := exclude[ext]; ok {
			return nil
		}
		if len(include) > 0 {
			if _, ok := include[ext]; !ok {
				return nil
			}
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, domain.VideoFile{
			AbsPath: path,
			RelPath: rel,
			Ext:     ext,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func extSet(exts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = struct{}{}
	}
	return out
}

func buildExcluded(root string, dirs []string) []string {
	excluded := make([]string, 0, len(dirs))
	for _, x := range dirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if !filepath.IsAbs(x) {
			x = filepath.Join(root, x)
		}
		excluded = append(excluded, filepath.Clean(x))
	}
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, strings.TrimSuffix(base, sep)+sep)
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
