package provider

import (
	"errors"
	"fmt"
	"strings"
)

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
// Fetcher 把它当作瞬时失败重试；重试耗尽后原样返回给 Catalog。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d url=%s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d url=%s location=%s", e.StatusCode, e.URL, loc)
}

// IsStatus 判断 err 链上是否有状态码为 code 的 HTTPStatusError。
func IsStatus(err error, code int) bool {
	var e *HTTPStatusError
	return errors.As(err, &e) && e.StatusCode == code
}

// BlockedError 表示请求被站点引导到了“验证/拦截”页面（通常需要浏览器执行 JS 或人工验证）。
// 不尝试绕过，也不重试：换代理或换站点才有意义。
type BlockedError struct {
	URL    string
	Reason string // 例如 "driver-verify"
}

func (e *BlockedError) Error() string {
	if e == nil {
		return "blocked"
	}
	if strings.TrimSpace(e.Reason) == "" {
		return "blocked: " + e.URL
	}
	return "blocked: " + strings.TrimSpace(e.Reason) + " url=" + e.URL
}

// IsBlocked 判断 err 是否为 BlockedError。
func IsBlocked(err error) bool {
	var e *BlockedError
	return errors.As(err, &e)
}
