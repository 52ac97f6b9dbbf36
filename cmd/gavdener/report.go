package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/John-Robertt/gavdener/internal/domain"
)

// emitReport 输出最终报告：终端上是表格，否则 stdout 只有一个 RunReport JSON。
func emitReport(w io.Writer, rr domain.RunReport, tty bool) error {
	if !tty {
		return json.NewEncoder(w).Encode(rr)
	}
	if len(rr.Items) > 0 {
		if _, err := fmt.Fprintln(w, renderReport(rr)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "完成：placed=%d skipped=%d unresolved=%d failed=%d\n",
		rr.Summary.Placed, rr.Summary.Skipped, rr.Summary.Unresolved, rr.Summary.Failed,
	)
	if err == nil && rr.Aborted {
		_, err = fmt.Fprintf(w, "已中止：%s\n", rr.AbortMsg)
	}
	return err
}

func renderReport(rr domain.RunReport) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "状态", "番号", "站点", "结果"})

	for i, it := range rr.Items {
		tw.AppendRow(table.Row{
			i + 1,
			statusLabel(it.Status),
			orDash(it.Codename),
			orDash(it.Provider),
			itemDetail(rr, it),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, WidthMax: 96},
	})
	return tw.Render()
}

func statusLabel(status string) string {
	switch status {
	case domain.StatusPlaced:
		return "OK"
	case domain.StatusDryRun:
		return "DRY"
	case domain.StatusAlreadyPlaced:
		return "SKIP"
	case domain.StatusUnresolved:
		return "MISS"
	case domain.StatusFailed:
		return "FAIL"
	}
	return strings.ToUpper(status)
}

func itemDetail(rr domain.RunReport, it domain.ItemResult) string {
	if it.ErrorCode != "" {
		return it.ErrorCode + ": " + truncate(it.ErrorMsg, 160)
	}
	switch it.Status {
	case domain.StatusUnresolved:
		return "未找到: " + it.Query
	case domain.StatusPlaced, domain.StatusDryRun, domain.StatusAlreadyPlaced:
		s := relTo(rr.TargetDir, it.Target)
		if n := len(it.Links); n > 0 {
			s += fmt.Sprintf(" (+%d 链接)", n)
		}
		return s
	}
	return it.Src
}

// relTo 尽量把 p 显示为相对 base 的路径；不在 base 下时原样返回。
func relTo(base, p string) string {
	if base == "" || p == "" {
		return p
	}
	rel, err := filepath.Rel(base, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return p
	}
	return rel
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
