package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext/actioncontexttest"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/notice"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/store"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/facet"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/filter"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/query"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	got *query.Request
	err error
}

func (f *fakeQuerier) Query(_ context.Context, req *query.Request) (*query.Response, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return query.EmptyResponse(), nil
}

func newRouter(t *testing.T, q StrategyQuerier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	actions, alerts := actioncontexttest.Single(t, actioncontexttest.Alert("A-1"))
	deps, _ := actioncontexttest.NewDeps(t, actions, alerts)
	router := gin.New()
	NewApi(router, q, notice.NewRenderer(deps))
	return router
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestQueryStrategiesDefaults(t *testing.T) {
	q := &fakeQuerier{}
	w := do(newRouter(t, q), http.MethodPost, "/v1/strategies/query", `{"bk_biz_id":2,"conditions":[{"key":"ip","value":"10.0.0.1"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, 1, q.got.Page)
	assert.Equal(t, 10, q.got.PageSize)
	require.Len(t, q.got.Conditions, 1)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(0), resp["total"])
	assert.Equal(t, []any{}, resp["strategy_config_list"])
	assert.Equal(t, []any{}, resp["scenario_list"])
}

func TestQueryStrategiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, CodeInvalidParameter},
		{"missing biz", `{}`, nil, http.StatusBadRequest, CodeInvalidParameter},
		{"permission", `{"bk_biz_id":2}`, &model.PermissionError{BizID: 3}, http.StatusForbidden, CodePermissionDenied},
		{"storage", `{"bk_biz_id":2}`, fmt.Errorf("page strategies: %w", model.ErrUpstream), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(newRouter(t, &fakeQuerier{err: tc.err}), http.MethodPost, "/v1/strategies/query", tc.body)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, errorCode(t, w))
		})
	}
}

func TestRenderNotice(t *testing.T) {
	router := newRouter(t, &fakeQuerier{})
	w := do(router, http.MethodPost, "/v1/notices/render", `{"action_id":1,"notice_way":"mail","notice_receiver":"alice,bob"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out notice.Output
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "2 - disk usage 发生告警", out.Title)
	assert.True(t, strings.HasSuffix(out.ConvergenceKeys.NoticeInfo, "_mail_alice,bob"))
	assert.Empty(t, out.Attachments)

	w = do(router, http.MethodPost, "/v1/notices/render", `{"notice_way":"mail"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidParameter, errorCode(t, w))

	w = do(router, http.MethodPost, "/v1/notices/render", `{"action_id":404}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, errorCode(t, w))
}

func TestCallbackMessage(t *testing.T) {
	router := newRouter(t, &fakeQuerier{})
	w := do(router, http.MethodPost, "/v1/notices/callback", `{"action_id":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var msg actioncontext.CallbackMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, "ANOMALY_NOTICE", msg.Type)
	assert.Equal(t, "A-1", msg.Event.ID)

	w = do(router, http.MethodPost, "/v1/notices/callback", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router := newRouter(t, &fakeQuerier{})
	w := do(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

// strategyBackend 同时充当 filter、facet、store 和告警计数
type strategyBackend struct {
	strategies []*model.Strategy
}

func (b *strategyBackend) Filter(context.Context, int64, []filter.RawCondition) ([]int64, error) {
	ids := make([]int64, 0, len(b.strategies))
	for _, s := range b.strategies {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (b *strategyBackend) Compute(context.Context, int64, []int64) (*facet.Facets, error) {
	return facet.Empty(), nil
}

func (b *strategyBackend) PageIDs(ctx context.Context, bizID int64, ids []int64, _, _ int) ([]int64, int, error) {
	return ids, len(ids), nil
}

func (b *strategyBackend) LoadStrategies(context.Context, []int64) ([]*model.Strategy, error) {
	return b.strategies, nil
}

func (b *strategyBackend) UserGroupsByIDs(context.Context, []int64) ([]*model.UserGroup, error) {
	return nil, nil
}

func (b *strategyBackend) MetricNames(context.Context, int64, []model.MetricTuple) ([]*model.MetricCacheEntry, error) {
	return nil, nil
}

func (b *strategyBackend) ActiveShields(context.Context, int64, time.Time) ([]*model.Shield, error) {
	return nil, nil
}

func (b *strategyBackend) StrategyAlertCounts(context.Context, int64, []int64) (map[int64]store.AlertCount, error) {
	return nil, nil
}

func TestQueryStrategiesOtherBusinessIsForbidden(t *testing.T) {
	b := &strategyBackend{strategies: []*model.Strategy{{ID: 7, BkBizID: 3, Name: "cpu"}}}
	o := query.NewOrchestrator(b, b, b, b, time.Second)

	w := do(newRouter(t, o), http.MethodPost, "/v1/strategies/query", `{"bk_biz_id":2}`)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	assert.Equal(t, CodePermissionDenied, errorCode(t, w))

	b.strategies[0].BkBizID = 2
	w = do(newRouter(t, o), http.MethodPost, "/v1/strategies/query", `{"bk_biz_id":2}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
