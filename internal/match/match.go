// Package match 提供噪音查询串与候选列表之间的近似匹配。
//
// 相似度采用 difflib 的 Ratcliff/Obershelp ratio（按 rune 比较），
// 不是精确子串匹配。
package match

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
)

const (
	// DefaultCutoff 是候选进入排名所需的最低相似度。
	DefaultCutoff = 0.4
	// DefaultLimit 是参与排名的最多候选数。
	DefaultLimit = 3
)

// Scored 是一个通过阈值的候选（Folded 为折叠大小写后的形态）。
type Scored struct {
	Index  int
	Folded string
	Score  float64
}

// Best 返回与 query 最相近的候选（保留候选原始大小写）；没有候选达到阈值时 ok=false。
//
// 相同输入（含候选顺序）下结果稳定：同分按折叠后的字符串降序，
// 再取折叠形态第一次出现的下标。
func Best(query string, candidates []string) (string, bool) {
	top := Closest(query, candidates, DefaultLimit, DefaultCutoff)
	if len(top) == 0 {
		return "", false
	}
	return candidates[top[0].Index], true
}

// Closest 返回至多 n 个相似度 >= cutoff 的候选，按分数降序排列。
func Closest(query string, candidates []string, n int, cutoff float64) []Scored {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	fold := cases.Fold()
	q := runes(fold.String(query))

	folded := make([]string, len(candidates))
	firstIdx := make(map[string]int, len(candidates))
	out := make([]Scored, 0, len(candidates))
	for i, c := range candidates {
		folded[i] = fold.String(c)
		if _, ok := firstIdx[folded[i]]; !ok {
			firstIdx[folded[i]] = i
		}

		m := difflib.NewMatcher(runes(folded[i]), q)
		if m.RealQuickRatio() < cutoff || m.QuickRatio() < cutoff {
			continue
		}
		r := m.Ratio()
		if r < cutoff {
			continue
		}
		out = append(out, Scored{Folded: folded[i], Score: r})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Folded > out[j].Folded
	})
	if len(out) > n {
		out = out[:n]
	}
	// 同一折叠形态可能出现多次：统一回指第一次出现的位置。
	for i := range out {
		out[i].Index = firstIdx[out[i].Folded]
	}
	return out
}

// LongestCommon 返回 a 与 b 的最长公共连续片段（取自 a）。
// 多个等长片段时取在 a 中最靠前的那个。
func LongestCommon(a, b string) string {
	ra, rb := runes(a), runes(b)
	if len(ra) == 0 || len(rb) == 0 {
		return ""
	}
	best := difflib.Match{}
	for _, blk := range difflib.NewMatcher(ra, rb).GetMatchingBlocks() {
		if blk.Size > best.Size {
			best = blk
		}
	}
	if best.Size == 0 {
		return ""
	}
	return strings.Join(ra[best.A:best.A+best.Size], "")
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
