// Package marker 读写整理过程留下的 sidecar 标记文件。
//
//   - info：目标目录下的元数据快照（YAML，字段顺序 codename/title/director/actors/tags）
//   - ignore：未能解析的文件所在目录下的占位文件，后续扫描跳过整个目录
package marker

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/gavdener/internal/domain"
	"github.com/John-Robertt/gavdener/internal/infra/fsx"
)

const (
	DefaultInfoName   = "gavdener.info"
	DefaultIgnoreName = "gavdener.ignore"
)

// IgnoreText 是 ignore 标记的内容；文件本身只靠“存在”生效。
const IgnoreText = "gavdener: 该目录下的文件未能识别，后续扫描将跳过此目录。删除本文件即可重新处理。\n"

// EncodeInfo 把 MovieInfo 序列化为 YAML；非 ASCII 文本原样保留。
func EncodeInfo(info domain.MovieInfo) ([]byte, error) {
	info = info.Normalize()

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(info); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeInfo 解析 EncodeInfo 的输出。缺失字段回退为默认值。
func DecodeInfo(b []byte) (domain.MovieInfo, error) {
	var info domain.MovieInfo
	if err := yaml.Unmarshal(b, &info); err != nil {
		return domain.MovieInfo{}, err
	}
	return info.Normalize(), nil
}

// WriteInfo 在 dir 下（覆盖）写入 info 标记，目录不存在时自动创建。
func WriteInfo(dir, name string, info domain.MovieInfo) error {
	name = orDefault(name, DefaultInfoName)
	b, err := EncodeInfo(info)
	if err != nil {
		return fmt.Errorf("编码 info 标记失败：%w", err)
	}
	return fsx.WriteFileAtomicReplace(dir, name, b)
}

// ReadInfo 读取 dir 下的 info 标记。不存在时返回的错误满足 errors.Is(err, os.ErrNotExist)。
func ReadInfo(dir, name string) (domain.MovieInfo, error) {
	name = orDefault(name, DefaultInfoName)
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return domain.MovieInfo{}, err
	}
	info, err := DecodeInfo(b)
	if err != nil {
		return domain.MovieInfo{}, fmt.Errorf("解析 info 标记失败：%s：%w", filepath.Join(dir, name), err)
	}
	return info, nil
}

// WriteIgnore 在 path 所在目录写入 ignore 标记。已存在时不改动。
func WriteIgnore(path, name string) error {
	name = orDefault(name, DefaultIgnoreName)
	err := fsx.WriteFileAtomicNoOverwrite(filepath.Dir(path), name, []byte(IgnoreText))
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	return err
}

// HasIgnore 报告 dir 下是否存在 ignore 标记（任何类型的同名条目都算）。
func HasIgnore(dir, name string) bool {
	name = orDefault(name, DefaultIgnoreName)
	ok, err := fsx.Exists(filepath.Join(dir, name))
	return err == nil && ok
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
