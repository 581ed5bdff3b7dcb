package content

import (
	"fmt"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/dimension"
)

// 行格式对应的渠道族
const (
	ChannelMail     = model.NoticeWayMail
	ChannelSMS      = model.NoticeWaySMS
	ChannelMarkdown = model.NoticeWayMarkdown
	ChannelPlain    = "plain"
)

// RowChannel 通知方式归入的行格式
func RowChannel(noticeWay string, markdown bool) string {
	switch {
	case markdown:
		return ChannelMarkdown
	case noticeWay == model.NoticeWayMail:
		return ChannelMail
	case noticeWay == model.NoticeWaySMS:
		return ChannelSMS
	}
	return ChannelPlain
}

// FormatRow 输出一行 "标题: 值"，值为空时整行省略
func FormatRow(channel, label, value string) string {
	if value == "" {
		return ""
	}
	switch channel {
	case ChannelMail:
		return fmt.Sprintf("<tr><td>%s:</td><td>%s</td></tr>\n", dimension.EscapeHTML(label), dimension.EscapeHTML(value))
	case ChannelMarkdown:
		value = dimension.Linkify(value)
		if label == "" {
			return value + "\n"
		}
		return fmt.Sprintf("**%s**: %s\n", label, value)
	}
	if label == "" {
		return value + "\n"
	}
	return fmt.Sprintf("%s: %s\n", label, value)
}
