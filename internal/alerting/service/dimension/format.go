package dimension

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// IsURL 以 http:// 或 https:// 开头
func IsURL(v string) bool {
	v = strings.TrimSpace(v)
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://")
}

// Linkify URL 转 markdown 链接，其余原样返回
func Linkify(v string) string {
	if !IsURL(v) {
		return v
	}
	v = strings.TrimSpace(v)
	return "[" + v + "](" + v + ")"
}

// Truncate 超过 n 个字符时截断并以 ... 结尾，总长度为 n
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}

// HMS 1d 2h 3m 4s，省略为 0 的单位
func HMS(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}
	units := []struct {
		size int64
		name string
	}{{86400, "d"}, {3600, "h"}, {60, "m"}, {1, "s"}}
	var parts []string
	for _, u := range units {
		if n := seconds / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.name))
			seconds %= u.size
		}
	}
	return strings.Join(parts, " ")
}

// EscapeHTML 邮件行内的值
func EscapeHTML(s string) string { return html.EscapeString(s) }
