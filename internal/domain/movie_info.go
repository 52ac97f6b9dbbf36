package domain

import (
	"strings"
)

// DefaultText 是所有“未知”字段的哨兵值。
// 不使用空串：空串会让 <root>/<actor>/ 这类目录键悄悄撞在一起。
const DefaultText = "Unknown"

// MovieInfo 是一次解析得到的元数据记录。
//
// 约束：
// - Codename == DefaultText 表示“解析失败”，下游一律按未解析处理
// - 字符串字段永远不为空串（未知用 DefaultText），列表未知时为空切片
// - 每个文件单独构造，构造后只读，不跨文件共享
type MovieInfo struct {
	Codename string   `yaml:"codename" json:"codename"`
	Title    string   `yaml:"title" json:"title"`
	Director string   `yaml:"director" json:"director"`
	Actors   []string `yaml:"actors" json:"actors"`
	Tags     []string `yaml:"tags" json:"tags"`
}

// NewMovieInfo 返回全部字段为默认值的 MovieInfo（即规范的“未解析”值）。
func NewMovieInfo() MovieInfo {
	return MovieInfo{
		Codename: DefaultText,
		Title:    DefaultText,
		Director: DefaultText,
		Actors:   []string{},
		Tags:     []string{},
	}
}

// Resolved 报告该记录是否代表一次成功解析。
func (m MovieInfo) Resolved() bool {
	c := strings.TrimSpace(m.Codename)
	return c != "" && c != DefaultText
}

// PrimaryActor 返回第一位演员；没有演员时返回 DefaultText。
func (m MovieInfo) PrimaryActor() string {
	if len(m.Actors) > 0 {
		return m.Actors[0]
	}
	return DefaultText
}

// Normalize 返回一个满足不变量的副本：空白字符串回退为 DefaultText，
// 列表去空白、去重且保持输入顺序。
func (m MovieInfo) Normalize() MovieInfo {
	return MovieInfo{
		Codename: orDefault(m.Codename),
		Title:    orDefault(m.Title),
		Director: orDefault(m.Director),
		Actors:   NormList(m.Actors),
		Tags:     NormList(m.Tags),
	}
}

// String 输出用于日志的可读块。
func (m MovieInfo) String() string {
	line := strings.Repeat("=", 80)
	return strings.Join([]string{
		line,
		"番号:\t" + m.Codename,
		"标题:\t" + m.Title,
		"导演:\t" + m.Director,
		"演员:\t" + strings.Join(m.Actors, "; "),
		"标签:\t" + strings.Join(m.Tags, "; "),
		line,
	}, "\n")
}

// NormList 去掉空白项与重复项，保持首次出现的顺序；结果永不为 nil。
func NormList(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = NormSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// NormSpace 把连续空白压缩为单个空格并去掉首尾空白。
func NormSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

func orDefault(s string) string {
	s = NormSpace(s)
	if s == "" {
		return DefaultText
	}
	return s
}
