// Package dimension formats alert dimensions and targets into printable strings.
package dimension

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
)

// Entry 一条可展示的维度
type Entry struct {
	Key   string
	Label string
	Value string
}

// Display 过滤掉身份类和目标类维度，保持原有顺序。目标通过 DisplayTargets 展示
func Display(dims []model.Dimension) []model.Dimension {
	out := make([]model.Dimension, 0, len(dims))
	for _, d := range dims {
		if model.DisplayExcludedDimensions[d.Key] || model.IsTargetDimension(d.Key) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Ordered 先按 agg_dimensions 顺序输出，剩余维度保持插入顺序
func Ordered(dims []model.Dimension, aggDimensions []string) []Entry {
	display := Display(dims)
	used := make([]bool, len(display))
	index := make(map[string]int, len(display))
	for i, d := range display {
		if _, ok := index[d.Key]; !ok {
			index[d.Key] = i
		}
	}

	entries := make([]Entry, 0, len(display))
	for _, key := range aggDimensions {
		key = strings.TrimPrefix(key, "tags.")
		i, ok := index[key]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		entries = append(entries, newEntry(display[i]))
	}
	for i, d := range display {
		if used[i] {
			continue
		}
		entries = append(entries, newEntry(d))
	}
	return entries
}

func newEntry(d model.Dimension) Entry {
	v := d.Display()
	if v == "" {
		v = "--"
	}
	return Entry{Key: d.Key, Label: d.Label(), Value: v}
}

// Formatter 按通知方式输出维度字符串
type Formatter struct {
	markdownWays map[string]bool
}

func NewFormatter(markdownWays []string) *Formatter {
	f := &Formatter{markdownWays: make(map[string]bool, len(markdownWays))}
	for _, w := range markdownWays {
		f.markdownWays[w] = true
	}
	return f
}

// IsMarkdown 通知方式是否属于 markdown 渠道
func (f *Formatter) IsMarkdown(noticeWay string) bool { return f.markdownWays[noticeWay] }

// StringList key=value 列表，markdown 渠道使用 ": " 分隔并把 URL 转为链接
func (f *Formatter) StringList(entries []Entry, noticeWay string) []string {
	sep := "="
	markdown := f.IsMarkdown(noticeWay)
	if markdown {
		sep = ": "
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		v := e.Value
		if markdown {
			v = Linkify(v)
		}
		out = append(out, e.Label+sep+v)
	}
	return out
}

// String 逗号拼接；limit 模式下只保留第一项
func String(list []string, limit bool) string {
	s := strings.Join(list, ",")
	if limit && len(list) > 0 {
		short := list[0] + "..."
		if len(short) < len(s) {
			return short
		}
	}
	return s
}

// DisplayTargets 与代表告警非目标维度一致的告警目标，重复的目标计数
func DisplayTargets(alerts []*model.AlertDocument) []string {
	if len(alerts) == 0 {
		return nil
	}
	first := alerts[0].CommonDimensionTuple()

	var order []string
	counts := make(map[string]int)
	for _, a := range alerts {
		if a.CommonDimensionTuple() != first {
			continue
		}
		byKey := make(map[string]model.Dimension)
		for _, d := range a.TargetDimensions() {
			byKey[d.Key] = d
		}
		var parts []string
		for _, key := range model.CMDBTargetDimensions {
			d, ok := byKey[key]
			if !ok || isCloudKey(key) {
				continue
			}
			if v := d.Display(); v != "" {
				parts = append(parts, v)
			}
		}
		if len(parts) == 0 {
			continue
		}
		t := strings.Join(parts, ":")
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}

	targets := make([]string, 0, len(order))
	for _, t := range order {
		if counts[t] > 1 {
			targets = append(targets, fmt.Sprintf("%s(%d)", t, counts[t]))
			continue
		}
		targets = append(targets, t)
	}
	return targets
}

func isCloudKey(key string) bool {
	return key == "bk_cloud_id" || key == "bk_target_cloud_id"
}

// TargetString 多目标时，concise 形式更短则使用 first...(n)
func TargetString(targets []string, limit bool) string {
	if len(targets) == 0 {
		return ""
	}
	s := strings.Join(targets, ",")
	if limit {
		short := fmt.Sprintf("%s...(%d)", targets[0], len(targets))
		if len(short) < len(s) {
			return short
		}
	}
	return s
}

// MD5 非空维度按 key 排序后的摘要，用于收敛
func MD5(dims []model.Dimension) string {
	m := make(map[string]string, len(dims))
	for _, d := range dims {
		if d.Value == "" {
			continue
		}
		m[d.Key] = d.Value
	}
	// map 序列化时 key 升序，& < > 保持原样
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(m)
	sum := md5.Sum(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return hex.EncodeToString(sum[:])
}
