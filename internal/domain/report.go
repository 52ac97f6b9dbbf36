package domain

import (
	"sort"
	"time"
)

const (
	StatusPlaced        = "placed"
	StatusAlreadyPlaced = "already_placed"
	StatusDryRun        = "dry_run"
	StatusUnresolved    = "unresolved"
	StatusFailed        = "failed"
)

const (
	ErrCodeResolveFailed = "resolve_failed"
	ErrCodePlaceFailed   = "place_failed"
	ErrCodeMarkerFailed  = "marker_failed"
	ErrCodeScanFailed    = "scan_failed"
	// ErrCodeTargetConflict 表示目标路径上已有类型不符的条目（例如演员目录处是一个文件）。
	ErrCodeTargetConflict = "target_conflict"
)

// RunReport 是一次 run 的对外输出（stdout JSON / 终端表格）。
type RunReport struct {
	MediaDir  string `json:"media_dir"`
	TargetDir string `json:"target_dir"`
	Debug     bool   `json:"debug"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Aborted 为 true 表示 provider 硬失败导致整批中止；Items 只包含已处理部分。
	Aborted  bool   `json:"aborted"`
	AbortMsg string `json:"abort_msg,omitempty"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Placed     int `json:"placed"`
	Skipped    int `json:"skipped"`
	Unresolved int `json:"unresolved"`
	Failed     int `json:"failed"`
}

type ItemResult struct {
	Src      string   `json:"src"`
	Query    string   `json:"query"`
	Codename string   `json:"codename"`
	Provider string   `json:"provider,omitempty"`
	Status   string   `json:"status"`
	Target   string   `json:"target,omitempty"`
	Links    []string `json:"links,omitempty"`

	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// Finalize 统一时间为 UTC，按 Src 稳定排序，并由 items 计算 summary。
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool { return r.Items[i].Src < r.Items[j].Src })

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusPlaced, StatusDryRun:
			s.Placed++
		case StatusAlreadyPlaced:
			s.Skipped++
		case StatusUnresolved:
			s.Unresolved++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}
