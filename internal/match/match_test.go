package match

import "testing"

func TestBest_PicksClosestCode(t *testing.T) {
	got, ok := Best("SNIS919", []string{"SNIS-919", "SNIS-920"})
	if !ok {
		t.Fatalf("期望匹配成功，但 ok=false")
	}
	if got != "SNIS-919" {
		t.Fatalf("期望 SNIS-919，实际 %q", got)
	}
}

func TestBest_KeepsOriginalCase(t *testing.T) {
	got, ok := Best("abp-123", []string{"XYZ-999", "ABP-123"})
	if !ok || got != "ABP-123" {
		t.Fatalf("期望 ABP-123（原始大小写），实际 %q ok=%v", got, ok)
	}
}

func TestBest_SelfMatchIsIdempotent(t *testing.T) {
	cands := []string{"ipx-177", "IPX-171", "IPZ-177", "ABW-001"}
	for _, c := range cands {
		got, ok := Best(c, cands)
		if !ok || got != c {
			t.Fatalf("候选自身匹配应返回自身：query=%q got=%q ok=%v", c, got, ok)
		}
	}
}

func TestBest_BelowCutoff(t *testing.T) {
	if got, ok := Best("FC2-PPV-3087371", []string{"zzz", "qq"}); ok {
		t.Fatalf("不期望匹配，实际 %q", got)
	}
	if _, ok := Best("abc", nil); ok {
		t.Fatalf("空候选列表不应匹配")
	}
}

func TestBest_DuplicateFoldedPointsToFirst(t *testing.T) {
	got, ok := Best("abc-001", []string{"ABC-001", "abc-001"})
	if !ok || got != "ABC-001" {
		t.Fatalf("折叠后相同的候选应回指第一次出现：got=%q ok=%v", got, ok)
	}
}

func TestBest_Deterministic(t *testing.T) {
	cands := []string{"SSNI-001", "SSIS-001", "SSIS-010"}
	first, _ := Best("ssis001", cands)
	for i := 0; i < 20; i++ {
		got, _ := Best("ssis001", cands)
		if got != first {
			t.Fatalf("结果不稳定：%q vs %q", got, first)
		}
	}
}

func TestClosest_RanksAndLimits(t *testing.T) {
	got := Closest("snis919", []string{"SNIS-920", "SNIS-919", "SNIS-918", "SNIS-917"}, 3, 0.4)
	if len(got) != 3 {
		t.Fatalf("期望最多 3 个，实际 %d：%+v", len(got), got)
	}
	if got[0].Index != 1 {
		t.Fatalf("期望第一名为 SNIS-919（下标 1），实际 %+v", got[0])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("分数未按降序排列：%+v", got)
		}
	}
}

func TestLongestCommon(t *testing.T) {
	got := LongestCommon("site@FC2-PPV-3087371.mp4", "FC2-PPV-3087371")
	if got != "FC2-PPV-3087371" {
		t.Fatalf("期望 FC2-PPV-3087371，实际 %q", got)
	}
	if got := LongestCommon("abc", ""); got != "" {
		t.Fatalf("空串应返回空，实际 %q", got)
	}
	if got := LongestCommon("演员-ABP-123", "ABP-123 演员"); got != "ABP-123" {
		t.Fatalf("期望 ABP-123，实际 %q", got)
	}
}
