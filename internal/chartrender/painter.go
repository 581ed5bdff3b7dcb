package chartrender

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strconv"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/chart"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ErrNoSeries 请求中没有任何曲线
var ErrNoSeries = errors.New("chart has no series")

const (
	defaultWidth  = 800
	defaultHeight = 300

	marginLeft   = 64
	marginRight  = 16
	marginTop    = 28
	marginBottom = 36
	gridLines    = 4
)

var (
	background = color.RGBA{0xff, 0xff, 0xff, 0xff}
	axisColor  = color.RGBA{0x99, 0x99, 0x99, 0xff}
	gridColor  = color.RGBA{0xe8, 0xe8, 0xe8, 0xff}
	textColor  = color.RGBA{0x33, 0x33, 0x33, 0xff}

	// 今天、昨天、上周依次取色
	palette = []color.RGBA{
		{0x3a, 0x84, 0xff, 0xff},
		{0xa3, 0xc5, 0xfd, 0xff},
		{0xff, 0xb8, 0x48, 0xff},
		{0x2d, 0xcb, 0x56, 0xff},
		{0xea, 0x36, 0x36, 0xff},
	}
)

// Painter 把曲线画成 PNG 折线图
type Painter struct {
	width  int
	height int
}

func NewPainter(width, height int) *Painter {
	if width <= marginLeft+marginRight {
		width = defaultWidth
	}
	if height <= marginTop+marginBottom {
		height = defaultHeight
	}
	return &Painter{width: width, height: height}
}

// bounds 所有非空点的时间与数值范围
type bounds struct {
	minTs, maxTs   int64
	minVal, maxVal float64
	empty          bool
}

func measure(series []chart.Series) bounds {
	b := bounds{minTs: math.MaxInt64, maxTs: math.MinInt64, minVal: math.Inf(1), maxVal: math.Inf(-1), empty: true}
	for _, s := range series {
		for _, p := range s.Points {
			b.minTs = min(b.minTs, p.Ts)
			b.maxTs = max(b.maxTs, p.Ts)
			if p.Value == nil || math.IsNaN(*p.Value) || math.IsInf(*p.Value, 0) {
				continue
			}
			b.empty = false
			b.minVal = math.Min(b.minVal, *p.Value)
			b.maxVal = math.Max(b.maxVal, *p.Value)
		}
	}
	if b.empty {
		b.minVal, b.maxVal = 0, 1
	}
	if b.minTs > b.maxTs {
		b.minTs, b.maxTs = 0, 1
	}
	if b.maxTs == b.minTs {
		b.maxTs = b.minTs + 1
	}
	// 从 0 起画，曲线整体偏高时不贴底
	if b.minVal > 0 {
		b.minVal = 0
	}
	if b.maxVal == b.minVal {
		b.maxVal = b.minVal + 1
	}
	return b
}

// Paint 空值点断开曲线；没有任何数值时只画坐标轴
func (p *Painter) Paint(req *chart.RenderRequest) ([]byte, error) {
	if req == nil || len(req.Series) == 0 {
		return nil, ErrNoSeries
	}
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	plot := image.Rect(marginLeft, marginTop, p.width-marginRight, p.height-marginBottom)
	b := measure(req.Series)

	for i := 0; i <= gridLines; i++ {
		y := plot.Max.Y - i*plot.Dy()/gridLines
		line(img, plot.Min.X, y, plot.Max.X, y, gridColor)
		v := b.minVal + float64(i)*(b.maxVal-b.minVal)/gridLines
		label := strconv.FormatFloat(v, 'f', -1, 64)
		if len(label) > 8 {
			label = strconv.FormatFloat(v, 'g', 4, 64)
		}
		text(img, 4, y+4, label+req.Unit, textColor)
	}
	line(img, plot.Min.X, plot.Min.Y, plot.Min.X, plot.Max.Y, axisColor)
	line(img, plot.Min.X, plot.Max.Y, plot.Max.X, plot.Max.Y, axisColor)

	x := func(ts int64) int {
		return plot.Min.X + int(float64(ts-b.minTs)/float64(b.maxTs-b.minTs)*float64(plot.Dx()))
	}
	y := func(v float64) int {
		return plot.Max.Y - int((v-b.minVal)/(b.maxVal-b.minVal)*float64(plot.Dy()))
	}

	for i, s := range req.Series {
		c := palette[i%len(palette)]
		havePrev := false
		var px, py int
		for _, pt := range s.Points {
			if pt.Value == nil || math.IsNaN(*pt.Value) || math.IsInf(*pt.Value, 0) {
				havePrev = false
				continue
			}
			cx, cy := x(pt.Ts), y(*pt.Value)
			if havePrev {
				line(img, px, py, cx, cy, c)
			} else {
				img.Set(cx, cy, c)
			}
			px, py, havePrev = cx, cy, true
		}
		// 图例
		lx := plot.Min.X + i*120
		ly := p.height - 14
		draw.Draw(img, image.Rect(lx, ly-8, lx+10, ly+2), image.NewUniform(c), image.Point{}, draw.Src)
		text(img, lx+14, ly, s.Name, textColor)
	}

	text(img, marginLeft, 18, req.Title, textColor)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// line Bresenham
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func text(img *image.RGBA, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
