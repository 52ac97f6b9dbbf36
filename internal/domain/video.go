package domain

// VideoFile 描述一次扫描得到的候选媒体文件（只做 stat，不读内容）。
//
// 不变量：
// - AbsPath 必须是 clean + absolute
// - RelPath 相对于扫描根目录
type VideoFile struct {
	AbsPath string
	RelPath string
	Ext     string // 小写，例如 ".mp4"
	Size    int64
}
