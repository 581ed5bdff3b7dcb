package target

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newCMDB(t *testing.T) (*miniredis.Miniredis, *store.RedisCMDB) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, store.NewRedisCMDB(rdb)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func alertWithDims(dims ...model.Dimension) *model.AlertDocument {
	return &model.AlertDocument{ID: "A-1", Dimensions: dims, Event: model.Event{BkBizID: 2}}
}

func TestResolveHostPrefersHostID(t *testing.T) {
	mr, cmdb := newCMDB(t)
	byID := &model.Host{BkHostID: 7, IP: "10.0.0.7", BkHostName: "by-id"}
	byIP := &model.Host{BkHostID: 8, IP: "10.0.0.1", BkHostName: "by-ip"}
	mr.HSet("cmdb.host_id", "7", mustJSON(t, byID))
	mr.HSet("cmdb.host", "10.0.0.1|0", mustJSON(t, byIP))

	r := NewResolver(cmdb)
	a := alertWithDims(
		model.Dimension{Key: "bk_host_id", Value: "7"},
		model.Dimension{Key: "bk_target_ip", Value: "10.0.0.1"},
		model.Dimension{Key: "bk_target_cloud_id", Value: "0"},
	)
	h := r.ResolveHost(context.Background(), a)
	require.NotNil(t, h)
	require.Equal(t, "by-id", h.BkHostName)
}

func TestResolveHostFallsBackToIP(t *testing.T) {
	mr, cmdb := newCMDB(t)
	mr.HSet("cmdb.host", "10.0.0.1|0", mustJSON(t, &model.Host{BkHostID: 8, IP: "10.0.0.1"}))

	r := NewResolver(cmdb)
	a := alertWithDims(
		model.Dimension{Key: "bk_host_id", Value: "99"},
		model.Dimension{Key: "bk_target_ip", Value: "10.0.0.1"},
		model.Dimension{Key: "bk_target_cloud_id", Value: "0"},
	)
	h := r.ResolveHost(context.Background(), a)
	require.NotNil(t, h)
	require.Equal(t, int64(8), h.BkHostID)

	require.Nil(t, r.ResolveHost(context.Background(), alertWithDims()))
}

func TestResolveBusinessStub(t *testing.T) {
	mr, cmdb := newCMDB(t)
	mr.HSet("cmdb.business", "2", mustJSON(t, &model.Business{BkBizID: 2, BkBizName: "blueking"}))
	r := NewResolver(cmdb)

	b := r.ResolveBusiness(context.Background(), 2)
	require.False(t, b.Stub)
	require.Equal(t, "[2] blueking", b.DisplayName())

	stub := r.ResolveBusiness(context.Background(), 5)
	require.True(t, stub.Stub)
	require.Equal(t, "5", stub.BkBizName)
}

func TestResolveSetsCachesMisses(t *testing.T) {
	mr, cmdb := newCMDB(t)
	mr.HSet("cmdb.set", "1", mustJSON(t, &model.Set{BkSetID: 1, BkSetName: "set-a"}))
	r := NewResolver(cmdb)
	h := &model.Host{BkSetIDs: []int64{1, 2}}

	sets := r.ResolveSets(context.Background(), h)
	require.Len(t, sets, 1)
	require.Equal(t, "set-a", sets[0].BkSetName)
	require.True(t, r.missing["set|2"])

	// set 2 shows up later in the cache but the resolver keeps its miss
	mr.HSet("cmdb.set", "2", mustJSON(t, &model.Set{BkSetID: 2, BkSetName: "set-b"}))
	require.Len(t, r.ResolveSets(context.Background(), h), 1)
}

func TestResolveHostsAggregates(t *testing.T) {
	mr, cmdb := newCMDB(t)
	mr.HSet("cmdb.host", "10.0.0.1|0", mustJSON(t, &model.Host{BkHostID: 1, IP: "10.0.0.1", BkOsType: "linux", Operator: []string{"alice"}}))
	mr.HSet("cmdb.host", "10.0.0.2|0", mustJSON(t, &model.Host{BkHostID: 2, IP: "10.0.0.2", BkOsType: "linux", Operator: []string{"bob", "carol"}}))

	r := NewResolver(cmdb)
	a1 := alertWithDims(model.Dimension{Key: "bk_target_ip", Value: "10.0.0.1"})
	a2 := alertWithDims(model.Dimension{Key: "bk_target_ip", Value: "10.0.0.2"})
	a3 := alertWithDims(model.Dimension{Key: "bk_target_ip", Value: "10.0.0.1"})

	mi := r.ResolveHosts(context.Background(), []*model.AlertDocument{a1, a2, a3})
	require.Len(t, mi.Hosts, 2)
	require.Equal(t, "10.0.0.1,10.0.0.2", mi.Get("bk_host_innerip"))
	require.Equal(t, "linux", mi.Get("bk_os_type"))
	require.Equal(t, "alice,bob,carol", mi.Get("operator"))
	v, ok := mi.Lookup("count")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestResolveService(t *testing.T) {
	mr, cmdb := newCMDB(t)
	mr.HSet("cmdb.service_instance", "31", mustJSON(t, &model.ServiceInstance{ServiceInstanceID: 31, Name: "nginx_80"}))
	r := NewResolver(cmdb)
	a := alertWithDims(model.Dimension{Key: "bk_target_service_instance_id", Value: "31"})
	s := r.ResolveService(context.Background(), a)
	require.NotNil(t, s)
	require.Equal(t, "nginx_80", s.Name)
}
