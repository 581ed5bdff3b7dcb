package actioncontext

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/chart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAIOps struct {
	n, m int64
	err  error
}

func (f *fakeAIOps) AnomalyDimensions(context.Context, int64, string) (int64, int64, error) {
	return f.n, f.m, f.err
}

func (f *fakeAIOps) RecommendedMetrics(context.Context, int64, string) (int64, int64, error) {
	return f.n, f.m, f.err
}

type fakeCharts struct {
	got chart.Input
}

func (f *fakeCharts) Image(_ context.Context, in chart.Input) ([]byte, error) {
	f.got = in
	return []byte("png"), nil
}

type fakeExperiences []*model.Experience

func (f fakeExperiences) ListExperiences(context.Context, int64) ([]*model.Experience, error) {
	return f, nil
}

func newAlarmContext(t *testing.T, alert *model.AlertDocument, opts Options, tweak func(*Deps)) *Context {
	t.Helper()
	actions := &fakeActions{actions: map[int64]*model.ActionInstance{1: abnormalAction(1, alert.ID)}}
	deps, _ := newDeps(t, actions, &fakeAlerts{
		alerts:  map[string]*model.AlertDocument{alert.ID: alert},
		reasons: []string{"已知问题"},
	})
	if tweak != nil {
		tweak(deps)
	}
	opts.ActionID = 1
	c, err := New(context.Background(), deps, opts)
	require.NoError(t, err)
	return c
}

func TestAlarmURLs(t *testing.T) {
	alert := scenarioAlert()
	alert.ExtraInfo = json.RawMessage(`{"matched_rule_info":{"group_info":{"group_id":5},"assign_reason":"命中规则"}}`)

	c := newAlarmContext(t, alert, Options{NoticeWay: "mail"}, nil)
	detail := "http://bk.example/?bizId=2#/event-center/detail/17000000001?actionId=17000000001"
	assert.Equal(t, detail, c.Alarm().DetailURL())
	assert.Equal(t, detail+"&batchAction=ack", c.Alarm().QuickAckURL())
	assert.Equal(t, detail+"&batchAction=shield", c.Alarm().QuickShieldURL())
	assert.Equal(t, "http://bk.example/?bizId=2#/strategy-config/detail/42", c.Alarm().StrategyURL())
	route := base64.StdEncoding.EncodeToString([]byte("#/alarm-dispatch?group_id=5"))
	assert.Equal(t, "http://bk.example/route/?bizId=2&route_path="+route, c.Alarm().AssignDetail())
	assert.Equal(t, "命中规则", c.Alarm().AssignReason())

	mobile := newAlarmContext(t, alert, Options{NoticeWay: "weixin"}, nil)
	assert.Equal(t, "http://bk.example/weixin/?bizId=2&collectId=17000000001", mobile.Alarm().DetailURL())

	sms := newAlarmContext(t, alert, Options{NoticeWay: "sms"}, nil)
	assert.Empty(t, sms.Alarm().DetailURL())
	assert.Empty(t, sms.Alarm().StrategyURL())
	assert.Empty(t, sms.Alarm().AssignDetail())

	follower := newAlarmContext(t, alert, Options{NoticeWay: "mail", UserType: model.UserTypeFollower}, nil)
	assert.Equal(t, detail, follower.Alarm().DetailURL())
	assert.Empty(t, follower.Alarm().QuickAckURL())
	assert.Empty(t, follower.Alarm().QuickShieldURL())
}

func TestAlarmDescription(t *testing.T) {
	alert := scenarioAlert()
	alert.Event.Description = "磁盘使用率 95%"
	alert.LatestTime, alert.FirstAnomalyTime = 1000, 1000
	c := newAlarmContext(t, alert, Options{NoticeWay: "mail"}, nil)
	assert.Equal(t, "新告警, 磁盘使用率 95%", c.Alarm().Description())
	assert.Empty(t, c.Alarm().DurationString())

	running := scenarioAlert()
	running.Event.Description = "磁盘使用率 95%"
	running.LatestTime, running.FirstAnomalyTime, running.Duration = 1000, 880, 3720
	c = newAlarmContext(t, running, Options{NoticeWay: "mail"}, nil)
	assert.Equal(t, "已持续1h 2m, 磁盘使用率 95%", c.Alarm().Description())

	recovered := scenarioAlert()
	recovered.Status = model.AlertRecovered
	recovered.ExtraInfo = json.RawMessage(`{"recovery_value":12}`)
	recovered.Event.ExtraInfo = json.RawMessage(`{"origin_alarm":{"data":{"value":95}}}`)
	c = newAlarmContext(t, recovered, Options{NoticeWay: "mail"}, nil)
	assert.Equal(t, "当前告警已恢复", c.Alarm().Description())
	assert.Equal(t, "12", c.Alarm().CurrentValue())

	noData := scenarioAlert()
	noData.ExtraInfo = json.RawMessage(`{"is_no_data":true}`)
	c = newAlarmContext(t, noData, Options{NoticeWay: "mail"}, nil)
	assert.Equal(t, "发生无数据告警", c.Alarm().DisplayType())
	assert.Empty(t, c.Alarm().CurrentValue())
}

func TestAlarmRelatedInfo(t *testing.T) {
	alert := scenarioAlert()
	c := newAlarmContext(t, alert, Options{NoticeWay: "mail"}, nil)
	assert.Equal(t, "--", c.Alarm().RelatedInfo())

	long := scenarioAlert()
	long.ExtraInfo = json.RawMessage(fmt.Sprintf(`{"relation_info":%q}`, strings.Repeat("x", 400)))
	c = newAlarmContext(t, long, Options{NoticeWay: "sms"}, nil)
	info := c.Alarm().LogRelatedInfo()
	assert.Len(t, info, 300)
	assert.True(t, strings.HasSuffix(info, "..."))
}

func TestAlarmAckFields(t *testing.T) {
	alert := scenarioAlert()
	alert.AckOperator = "alice"
	alert.Assignee = []string{"bob", "carol"}
	c := newAlarmContext(t, alert, Options{NoticeWay: "mail"}, nil)
	assert.Equal(t, []string{"alice"}, c.Alarm().AckOperators())
	assert.Equal(t, "alice", c.Alarm().AckOperator())
	assert.Equal(t, "alice已确认告警【disk usage】", c.Alarm().AckTitle())
	assert.Equal(t, []string{"已知问题"}, c.Alarm().AckReasons())
	assert.Equal(t, []string{"bob", "carol"}, c.Alarm().Receivers())
}

func TestAlarmAIOps(t *testing.T) {
	alert := scenarioAlert()
	c := newAlarmContext(t, alert, Options{}, func(d *Deps) { d.AIOps = &fakeAIOps{n: 3, m: 5} })
	assert.Equal(t, "异常维度 3，异常维度值 5", c.Alarm().AnomalyDimensions())
	assert.Equal(t, "3 个指标,5 个维度", c.Alarm().RecommendedMetrics())

	c = newAlarmContext(t, alert, Options{}, func(d *Deps) {
		d.AIOps = &fakeAIOps{err: fmt.Errorf("biz 2: %w", model.ErrAIOpsNotEnabled)}
	})
	assert.Empty(t, c.Alarm().AnomalyDimensions())
}

func TestAlarmAttachments(t *testing.T) {
	alert := scenarioAlert()
	c := newAlarmContext(t, alert, Options{NoticeWay: "mail"}, nil)
	assert.Empty(t, c.Alarm().Attachments())

	charts := &fakeCharts{}
	c = newAlarmContext(t, alert, Options{NoticeWay: "wxwork-bot"}, func(d *Deps) { d.Charts = charts })
	att := c.Alarm().Attachments()
	require.Len(t, att, 1)
	assert.Equal(t, "alarm_chart_1.png", att[0].Filename)
	assert.Equal(t, att[0].Filename, att[0].ContentID)
	assert.Equal(t, "磁盘使用率 - 1", charts.got.Title)
	assert.Equal(t, model.ConvergeAction, charts.got.ConvergeType)
}

func TestAlarmRemarks(t *testing.T) {
	alert := scenarioAlert()
	exps := fakeExperiences{
		{Type: model.ExperienceMetric, AlertName: "disk usage", Description: "清理日志"},
		{Type: model.ExperienceDimension, AlertName: "disk usage", Description: "扩容 /data",
			Conditions: []model.ExperienceCondition{{Key: "mount_point", Method: "eq", Value: []string{"/data"}}}},
	}
	c := newAlarmContext(t, alert, Options{}, func(d *Deps) { d.Experiences = exps })
	assert.Equal(t, "扩容 /data", c.Alarm().Remarks())
}

func TestCallbackMessage(t *testing.T) {
	alert := scenarioAlert()
	alert.BeginTime, alert.CreateTime = 1700000000, 1700000060
	alert.Event.ID = "E-1"
	alert.Event.Time = 1700000000
	alert.Event.ExtraInfo = json.RawMessage(`{"origin_alarm":{"data":{"value":95,"dimensions":{"mount_point":"/data"}}}}`)

	c := newAlarmContext(t, alert, Options{NoticeWay: "mail"}, func(d *Deps) {
		d.Strategies = fakeStrategies{42: {
			ID: 42, Name: "磁盘使用率", Scenario: "os", Labels: []string{"/disk/"},
			Items: []model.Item{{Name: "磁盘使用率", QueryConfigs: []model.QueryConfig{{
				DataSourceLabel: "bk_monitor", DataTypeLabel: "time_series",
				MetricID: "bk_monitor.system.disk.in_use", AggDimension: []string{"bk_target_ip", "mount_point"},
			}}}},
		}}
	})

	raw := c.Alarm().CallbackMessageJSON()
	assert.True(t, strings.HasPrefix(raw, `{"type":"ANOMALY_NOTICE","scenario":"os","bk_biz_id":2,"bk_biz_name":"2","event":{"id":"A-1"`), raw)

	var decoded CallbackMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	again, err := json.Marshal(&decoded)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(again))
	assert.Equal(t, raw, string(again))

	msg := c.Alarm().CallbackMessage()
	assert.Equal(t, "2023-11-14 22:13:20", msg.Event.BeginTime)
	assert.Nil(t, msg.Event.EndTime)
	assert.Equal(t, []string{"mount_point"}, msg.Event.AggDimensions)
	assert.JSONEq(t, `{"mount_point":"/data"}`, string(msg.Event.Dimensions))
	require.Len(t, msg.Strategy.ItemList, 1)
	assert.Equal(t, CallbackItem{
		MetricField: "in_use", MetricFieldName: "磁盘使用率",
		DataSourceLabel: "bk_monitor", DataSourceName: "监控平台",
		DataTypeLabel: "time_series", DataTypeName: "时序",
		MetricID: "bk_monitor.system.disk.in_use",
	}, msg.Strategy.ItemList[0])
	assert.Equal(t, "E-1", msg.LatestAnomalyRecord.AnomalyID)
	assert.Equal(t, "95", msg.CurrentValue)
}
