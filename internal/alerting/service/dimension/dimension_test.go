package dimension

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dims(kv ...string) []model.Dimension {
	out := make([]model.Dimension, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, model.Dimension{Key: kv[i], Value: kv[i+1]})
	}
	return out
}

func TestSingleHostDimensionSeparators(t *testing.T) {
	alert := &model.AlertDocument{
		ID:            "A-1",
		StrategyID:    42,
		Severity:      model.SeverityWarn,
		Dimensions:    dims("bk_target_ip", "10.0.0.1", "bk_target_cloud_id", "0", "mount_point", "/data"),
		AggDimensions: []string{"mount_point"},
	}
	f := NewFormatter([]string{"markdown", "wxwork-bot"})

	entries := Ordered(alert.Dimensions, alert.AggDimensions)
	assert.Equal(t, []string{"mount_point: /data"}, f.StringList(entries, "markdown"))
	assert.Equal(t, []string{"mount_point: /data"}, f.StringList(entries, "wxwork-bot"))
	assert.Equal(t, []string{"mount_point=/data"}, f.StringList(entries, "mail"))
	assert.Equal(t, []string{"mount_point=/data"}, f.StringList(entries, "sms"))

	sum := md5.Sum([]byte(`{"bk_target_cloud_id":"0","bk_target_ip":"10.0.0.1","mount_point":"/data"}`))
	assert.Equal(t, hex.EncodeToString(sum[:]), MD5(alert.CommonDimensions()))
}

func TestOrderedFollowsAggDimensions(t *testing.T) {
	d := dims("zone", "z1", "alert_name", "cpu", "tags.device", "eth0", "app", "web", "strategy_id", "1", "bk_biz_id", "2")
	d[2].Key = "device"
	entries := Ordered(d, []string{"app", "tags.device", "missing"})

	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"app", "device", "zone"}, keys)
}

func TestOrderedUsesDisplayFields(t *testing.T) {
	d := []model.Dimension{
		{Key: "bk_target_ip", Value: "10.0.0.1"},
		{Key: "target", Value: "x"},
		{Key: "target_type", Value: "HOST"},
		{Key: "device", Value: "", DisplayKey: "设备"},
		{Key: "path", Value: "/a", DisplayKey: "路径", DisplayValue: "/a (root)"},
	}
	entries := Ordered(d, nil)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Key: "device", Label: "设备", Value: "--"}, entries[0])
	assert.Equal(t, Entry{Key: "path", Label: "路径", Value: "/a (root)"}, entries[1])
}

func TestURLDimensionViaWxworkBot(t *testing.T) {
	f := NewFormatter([]string{"wxwork-bot"})
	entries := Ordered(dims("url", "https://example.com/x"), nil)

	assert.Equal(t, []string{"url: [https://example.com/x](https://example.com/x)"}, f.StringList(entries, "wxwork-bot"))
	assert.Equal(t, []string{"url=https://example.com/x"}, f.StringList(entries, "sms"))
}

func TestMD5(t *testing.T) {
	a := dims("b", "2", "a", "1", "empty", "")
	b := dims("a", "1", "b", "2")
	assert.Equal(t, MD5(a), MD5(b))
	assert.NotEqual(t, MD5(a), MD5(dims("a", "1", "b", "3")))
}

func TestDisplayTargets(t *testing.T) {
	mk := func(ip, mount string) *model.AlertDocument {
		return &model.AlertDocument{Dimensions: dims("bk_target_ip", ip, "bk_target_cloud_id", "0", "mount", mount)}
	}
	alerts := []*model.AlertDocument{
		mk("10.0.0.1", "/data"),
		mk("10.0.0.2", "/data"),
		mk("10.0.0.1", "/data"),
		mk("10.0.0.3", "/home"),
	}
	targets := DisplayTargets(alerts)
	assert.Equal(t, []string{"10.0.0.1(2)", "10.0.0.2"}, targets)

	assert.Equal(t, "10.0.0.1(2),10.0.0.2", TargetString(targets, false))
	assert.Equal(t, "10.0.0.1(2)...(2)", TargetString(targets, true))

	many := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}
	assert.Equal(t, "10.0.0.1...(4)", TargetString(many, true))
	assert.Equal(t, "", TargetString(nil, true))
}

func TestString(t *testing.T) {
	list := []string{"mount_point=/data", "device=sda1", "fs=ext4"}
	assert.Equal(t, "mount_point=/data,device=sda1,fs=ext4", String(list, false))
	assert.Equal(t, "mount_point=/data...", String(list, true))
	assert.Equal(t, "a=1", String([]string{"a=1"}, true))
}

func TestHMS(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0s"},
		{59, "59s"},
		{60, "1m"},
		{3661, "1h 1m 1s"},
		{93784, "1d 2h 3m 4s"},
		{86400, "1d"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HMS(c.in), "HMS(%d)", c.in)
	}
}

func TestTruncate(t *testing.T) {
	long := make([]rune, 400)
	for i := range long {
		long[i] = 'x'
	}
	got := Truncate(string(long), 300)
	assert.Len(t, got, 300)
	assert.Equal(t, "...", got[297:])
	assert.Equal(t, "short", Truncate("short", 300))
}

func TestMD5KeepsURLCharacters(t *testing.T) {
	d := dims("url", "https://example.com/x?a=1&b=<2>")
	sum := md5.Sum([]byte(`{"url":"https://example.com/x?a=1&b=<2>"}`))
	assert.Equal(t, hex.EncodeToString(sum[:]), MD5(d))
}
