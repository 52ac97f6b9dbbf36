package code

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"

	"github.com/John-Robertt/gavdener/internal/match"
)

// minCommonRunes 是“文件名与父目录名的公共片段”被采信的最短长度。
const minCommonRunes = 5

// rule 描述一条番号规则。
//
// RE2 不支持环视断言，因此 before/after 以显式边界检查实现：
// 对每个起点，从最长的候选终点往回试，与回溯引擎的尝试顺序一致。
type rule struct {
	name   string
	prefix *regexp.Regexp // ^core：取最长候选
	full   *regexp.Regexp // ^core$：校验较短的候选
	before func(s string, i int) bool
	after  func(s string, j int) bool
}

var fc2RE = regexp.MustCompile(`(FC|fc)2[-_]?((PPV|ppv)[-_])?[0-9]{6,7}`)

var rules = []rule{
	newRule("generic", `([A-Z]|[a-z]){2,5}[-_]?[0-9]{3,5}`, notLetterBefore, guardAfter),
	newRule("uncensored", `[0-9]{6,7}[-_][0-9]{3,4}`, notAlnumBefore, guardAfter),
}

func newRule(name, core string, before func(string, int) bool, after func(string, int) bool) rule {
	return rule{
		name:   name,
		prefix: regexp.MustCompile(`^(?:` + core + `)`),
		full:   regexp.MustCompile(`^(?:` + core + `)$`),
		before: before,
		after:  after,
	}
}

// Extract 从文件路径推断番号。
//
// 步骤：
//  1. 取文件名与父目录名的最长公共片段（下载者通常已用番号命名目录）；
//     片段不足 5 个字符时退回文件名本身
//  2. 依次套用 FC2 / 常见番号 / 无码番号规则，首个命中即返回
//  3. 都不命中时返回去掉扩展名的文件名（低置信度的“放弃”值，不是猜测出的番号）
//
// 路径分隔符同时接受 '/' 与 '\'，因此 Windows 风格路径在任何平台上都能处理。
func Extract(path string) string {
	dir, name := split(path)
	parent := lastElem(dir)

	text := name
	if common := match.LongestCommon(name, parent); utf8.RuneCountInString(common) >= minCommonRunes {
		text = common
	}

	if c, ok := Match(text); ok {
		return c
	}
	return stem(name)
}

// Match 在 text 中按规则顺序查找番号。
func Match(text string) (string, bool) {
	text = width.Fold.String(text)

	if m := fc2RE.FindString(text); m != "" {
		return m, true
	}
	for _, r := range rules {
		if m, ok := r.find(text); ok {
			return m, true
		}
	}
	return "", false
}

func (r rule) find(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if !r.before(s, i) {
			continue
		}
		loc := r.prefix.FindStringIndex(s[i:])
		if loc == nil {
			continue
		}
		for end := i + loc[1]; end > i; end-- {
			if !r.full.MatchString(s[i:end]) {
				continue
			}
			if r.after(s, end) {
				return s[i:end], true
			}
		}
	}
	return "", false
}

func notLetterBefore(s string, i int) bool { return i == 0 || !isLetter(s[i-1]) }

func notAlnumBefore(s string, i int) bool { return i == 0 || !isAlnum(s[i-1]) }

// guardAfter 拒绝“后面紧跟数字”或“后面紧跟 3 个及以上字母数字”的命中，
// 避免在更长的 token 内部截出番号。
func guardAfter(s string, j int) bool {
	if j >= len(s) {
		return true
	}
	if isDigit(s[j]) {
		return false
	}
	if j+3 <= len(s) && isAlnum(s[j]) && isAlnum(s[j+1]) && isAlnum(s[j+2]) {
		return false
	}
	return true
}

func isLetter(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
func isDigit(b byte) bool  { return b >= '0' && b <= '9' }
func isAlnum(b byte) bool  { return isLetter(b) || isDigit(b) }

func split(path string) (dir, name string) {
	i := strings.LastIndexAny(path, `/\`)
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func lastElem(dir string) string {
	dir = strings.TrimRight(dir, `/\`)
	_, name := split(dir)
	return name
}

// stem 去掉扩展名；像 ".hidden" 这种去掉后为空的情况保留原名。
func stem(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name
	}
	return name[:i]
}
