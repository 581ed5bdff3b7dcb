package store

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newESStore 以 path 为键返回固定响应，并记录请求体
func newESStore(t *testing.T, responses map[string]string) (*AlertESStore, func(string) string) {
	t.Helper()
	var mu sync.Mutex
	bodies := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies[r.URL.Path] = string(b)
		mu.Unlock()
		resp, ok := responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"},"status":404}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.ElasticsearchConfig{
		URLs:          []string{srv.URL},
		AlertIndex:    "alerts",
		EventIndex:    "events",
		AlertLogIndex: "alert_logs",
	}
	client, err := NewElasticClient(cfg)
	require.NoError(t, err)
	return NewAlertESStore(client, cfg), func(path string) string {
		mu.Lock()
		defer mu.Unlock()
		return bodies[path]
	}
}

func TestAlertsByIDsKeepsRequestOrder(t *testing.T) {
	s, body := newESStore(t, map[string]string{
		"/alerts/_search": `{"hits":{"total":{"value":2,"relation":"eq"},"hits":[
			{"_id":"A-2","_source":{"id":"A-2","strategy_id":42,"severity":1,"event":{"bk_biz_id":2}}},
			{"_id":"A-1","_source":{"id":"A-1","strategy_id":42,"severity":2,"event":{"bk_biz_id":2}}}
		]}}`,
	})

	alerts, err := s.AlertsByIDs(context.Background(), []string{"A-1", "A-3", "A-2", "A-1"})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "A-1", alerts[0].ID)
	assert.Equal(t, "A-2", alerts[1].ID)
	assert.Equal(t, model.Severity(2), alerts[0].Severity)
	assert.Contains(t, body("/alerts/_search"), `"terms":{"id":["A-1","A-3","A-2","A-1"]}`)
}

func TestAlertsByRefsDropsStrategyMismatch(t *testing.T) {
	s, _ := newESStore(t, map[string]string{
		"/alerts/_search": `{"hits":{"hits":[
			{"_id":"A-1","_source":{"id":"A-1","strategy_id":42,"event":{"bk_biz_id":2}}},
			{"_id":"A-2","_source":{"id":"A-2","strategy_id":7,"event":{"bk_biz_id":2}}}
		]}}`,
	})

	alerts, err := s.AlertsByRefs(context.Background(), []model.AlertRef{{ID: "A-1", StrategyID: 42}, {ID: "A-2", StrategyID: 43}})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "A-1", alerts[0].ID)
}

func TestLatestEventNotFound(t *testing.T) {
	s, _ := newESStore(t, map[string]string{
		"/events/_search": `{"hits":{"total":{"value":0,"relation":"eq"},"hits":[]}}`,
	})

	_, err := s.LatestEvent(context.Background(), 1700000000, "md5")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestAckReasons(t *testing.T) {
	s, body := newESStore(t, map[string]string{
		"/alert_logs/_search": `{"hits":{"hits":[
			{"_id":"1","_source":{"description":"已知问题，处理中"}},
			{"_id":"2","_source":{"description":""}},
			{"_id":"3","_source":{"description":"扩容中"}}
		]}}`,
	})

	reasons, err := s.AckReasons(context.Background(), []string{"A-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"已知问题，处理中", "扩容中"}, reasons)
	assert.Contains(t, body("/alert_logs/_search"), `"op_type":"ACK"`)
}

func TestStrategyAlertCounts(t *testing.T) {
	s, body := newESStore(t, map[string]string{
		"/alerts/_search": `{"hits":{"hits":[]},"aggregations":{"strategy_id":{"buckets":[
			{"key":42,"doc_count":3,"shield_status":{"buckets":[
				{"key":0,"key_as_string":"false","doc_count":2},
				{"key":1,"key_as_string":"true","doc_count":1}
			]}},
			{"key":43,"doc_count":1,"shield_status":{"buckets":[
				{"key":1,"key_as_string":"true","doc_count":1}
			]}}
		]}}}`,
	})

	counts, err := s.StrategyAlertCounts(context.Background(), 2, []int64{42, 43, 44})
	require.NoError(t, err)
	assert.Equal(t, AlertCount{Alert: 2, Shielded: 1}, counts[42])
	assert.Equal(t, AlertCount{Alert: 0, Shielded: 1}, counts[43])
	_, ok := counts[44]
	assert.False(t, ok)

	sent := body("/alerts/_search")
	assert.Contains(t, sent, `"size":10000`)
	assert.Contains(t, sent, `"event.bk_biz_id":2`)
	assert.Contains(t, sent, `"status":"ABNORMAL"`)
}

func TestAbnormalStrategyIDs(t *testing.T) {
	s, body := newESStore(t, map[string]string{
		"/alerts/_search": `{"hits":{"hits":[]},"aggregations":{"strategy_id":{"buckets":[
			{"key":7,"doc_count":2},{"key":9,"doc_count":1}
		]}}}`,
	})

	ids, err := s.AbnormalStrategyIDs(context.Background(), 2, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 9}, ids)
	assert.True(t, strings.Contains(body("/alerts/_search"), `"must_not"`))

	_, err = s.AbnormalStrategyIDs(context.Background(), 2, true)
	require.NoError(t, err)
	assert.False(t, strings.Contains(body("/alerts/_search"), `"must_not"`))
	assert.Contains(t, body("/alerts/_search"), `"is_shielded":true`)
}
