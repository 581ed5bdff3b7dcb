// Package converge builds the dedup keys the scheduler uses to collapse notices.
package converge

import (
	"strconv"
	"strings"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
)

// Source 计算收敛键所需的上下文字段
type Source interface {
	Action() *model.ActionInstance
	StrategyID() int64
	AlertName() string
	AlertLevel() model.Severity
	Signal() model.ActionSignal
	DimensionsMD5() string
	NoticeChannel() string
	NoticeWay() string
	NoticeReceiver() string
	ActionConfigID() int64
}

// Keys 收敛键，同一组输入总是得到相同的结果
type Keys struct {
	AlertInfo      string `json:"alert_info"`
	NoticeInfo     string `json:"notice_info"`
	ActionInfo     string `json:"action_info"`
	NoticeWay      string `json:"-"`
	NoticeReceiver string `json:"-"`
}

func Build(s Source) Keys {
	k := Keys{
		AlertInfo:      AlertInfo(s),
		NoticeWay:      NoticeWay(s),
		NoticeReceiver: NoticeReceiver(s),
		ActionInfo:     ActionInfo(s),
	}
	k.NoticeInfo = join(k.AlertInfo, k.NoticeWay, k.NoticeReceiver)
	return k
}

// AlertInfo <strategy_id|alert_name>_<level>_<signal>_<dimensions_md5>
func AlertInfo(s Source) string {
	head := s.AlertName()
	if id := s.StrategyID(); id != 0 {
		head = strconv.FormatInt(id, 10)
	}
	return join(head, strconv.Itoa(int(s.AlertLevel())), string(s.Signal()), s.DimensionsMD5())
}

// NoticeInfo <alert_info>_<notice_way>_<notice_receiver>
func NoticeInfo(s Source) string {
	return join(AlertInfo(s), NoticeWay(s), NoticeReceiver(s))
}

// ActionInfo <strategy_id>_<signal>_<action_config_id>
func ActionInfo(s Source) string {
	return join(strconv.FormatInt(s.StrategyID(), 10), string(s.Signal()), strconv.FormatInt(s.ActionConfigID(), 10))
}

// NoticeWay 非默认渠道带上渠道前缀
func NoticeWay(s Source) string {
	if ch := s.NoticeChannel(); ch != "" && ch != model.NoticeChannelUser {
		return ch + "|" + s.NoticeWay()
	}
	return s.NoticeWay()
}

// NoticeReceiver 语音通知按动作参数中的接收人拼接
func NoticeReceiver(s Source) string {
	if s.NoticeWay() == model.NoticeWayVoice {
		if a := s.Action(); a != nil {
			return strings.Join(a.Inputs.NoticeReceivers(), ",")
		}
	}
	return s.NoticeReceiver()
}

func join(parts ...string) string { return strings.Join(parts, "_") }
