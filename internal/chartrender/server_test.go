package chartrender

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/chart"
	"github.com/fox-gonic/fox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func newRouter() *fox.Engine {
	router := fox.New()
	NewServer(NewPainter(400, 200)).UseApi(router)
	return router
}

func TestPaintProducesPNG(t *testing.T) {
	req := &chart.RenderRequest{
		Title: "disk usage",
		Unit:  "%",
		Series: []chart.Series{
			{Name: "today", Points: []chart.Point{{Ts: 1000, Value: ptr(1)}, {Ts: 2000, Value: nil}, {Ts: 3000, Value: ptr(95)}}},
			{Name: "yesterday", Points: []chart.Point{{Ts: 1000, Value: ptr(3)}, {Ts: 3000, Value: ptr(4)}}},
		},
	}
	data, err := NewPainter(400, 200).Paint(req)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestPaintEdgeCases(t *testing.T) {
	p := NewPainter(0, 0)
	assert.Equal(t, defaultWidth, p.width)

	_, err := p.Paint(&chart.RenderRequest{})
	assert.ErrorIs(t, err, ErrNoSeries)

	// 全是空值时仍然出图
	data, err := p.Paint(&chart.RenderRequest{Series: []chart.Series{{Name: "today", Points: []chart.Point{{Ts: 1}, {Ts: 1}}}}})
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestMeasure(t *testing.T) {
	b := measure([]chart.Series{{Points: []chart.Point{{Ts: 10, Value: ptr(5)}, {Ts: 20, Value: ptr(7)}}}})
	assert.Equal(t, int64(10), b.minTs)
	assert.Equal(t, int64(20), b.maxTs)
	assert.Equal(t, 0.0, b.minVal)
	assert.Equal(t, 7.0, b.maxVal)
	assert.False(t, b.empty)

	b = measure([]chart.Series{{Points: []chart.Point{{Ts: 10, Value: ptr(-2)}}}})
	assert.Equal(t, -2.0, b.minVal)
	assert.Equal(t, -1.0, b.maxVal)
	assert.Equal(t, int64(11), b.maxTs)
}

func TestRenderChartHandler(t *testing.T) {
	router := newRouter()

	body, _ := json.Marshal(chart.RenderRequest{
		Title:  "cpu",
		Series: []chart.Series{{Name: "today", Points: []chart.Point{{Ts: 1000, Value: ptr(1)}, {Ts: 2000, Value: ptr(2)}}}},
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/charts/render", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(w.Body)
	require.NoError(t, err)

	for _, bad := range []string{`{`, `{"title":"x","series":[]}`} {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/charts/render", strings.NewReader(bad)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, ErrorCodeInvalidParameter, resp.Error.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
