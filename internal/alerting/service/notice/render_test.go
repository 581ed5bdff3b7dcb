package notice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext/actioncontexttest"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRenderer(t *testing.T, tweak func(*actioncontexttest.Actions)) *Renderer {
	t.Helper()
	actions, alerts := actioncontexttest.Single(t, actioncontexttest.Alert("A-1"))
	if tweak != nil {
		tweak(actions)
	}
	deps, _ := actioncontexttest.NewDeps(t, actions, alerts)
	return NewRenderer(deps)
}

func TestRenderMail(t *testing.T) {
	r := newRenderer(t, nil)
	out, err := r.Render(context.Background(), actioncontext.Options{
		ActionID: 1, NoticeWay: "mail", NoticeReceiver: model.StringList{"alice"},
	})
	require.NoError(t, err)

	assert.Equal(t, "2 - disk usage 发生告警", out.Title)
	assert.Contains(t, out.Content, "<tr><td>通知人:</td><td>alice</td></tr>")
	assert.Equal(t, content.ShapeDimension, out.Shape)
	assert.Equal(t, "mail", out.NoticeWay)
	assert.NotNil(t, out.Attachments)
	assert.Empty(t, out.Attachments)
	assert.True(t, strings.HasPrefix(out.ConvergenceKeys.AlertInfo, "42_2_ABNORMAL_"))
	assert.Equal(t, out.ConvergenceKeys.AlertInfo+"_mail_alice", out.ConvergenceKeys.NoticeInfo)
	assert.Equal(t, "42_ABNORMAL_0", out.ConvergenceKeys.ActionInfo)
	assert.Empty(t, out.Diagnostics)
}

func TestRenderIsDeterministic(t *testing.T) {
	r := newRenderer(t, nil)
	opts := actioncontext.Options{ActionID: 1, NoticeWay: "wxwork-bot"}
	first, err := r.Render(context.Background(), opts)
	require.NoError(t, err)
	second, err := r.Render(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderWebhookCarriesCallbackMessage(t *testing.T) {
	r := newRenderer(t, func(a *actioncontexttest.Actions) {
		a.Actions[1].ActionPlugin.PluginType = model.PluginWebhook
	})
	out, err := r.Render(context.Background(), actioncontext.Options{ActionID: 1})
	require.NoError(t, err)
	assert.Equal(t, content.ShapeNone, out.Shape)
	assert.True(t, strings.HasPrefix(out.Content, `{"type":"ANOMALY_NOTICE"`), out.Content)
}

func TestRenderErrors(t *testing.T) {
	r := newRenderer(t, nil)
	_, err := r.Render(context.Background(), actioncontext.Options{})
	assert.True(t, errors.Is(err, model.ErrInvalidInput))

	_, err = r.Render(context.Background(), actioncontext.Options{ActionID: 99})
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestCallback(t *testing.T) {
	r := newRenderer(t, nil)
	msg, err := r.Callback(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "A-1", msg.Event.ID)

	r = newRenderer(t, func(a *actioncontexttest.Actions) { a.Actions[1].Alerts = []string{"missing"} })
	_, err = r.Callback(context.Background(), 1)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}
