package layout

import (
	"math"
	"strconv"

	"github.com/dharmatimeline/dharmatimeline/internal/config"
	"github.com/dharmatimeline/dharmatimeline/internal/dataset"
)

// Frame holds the base scales for one viewport size. Base scales are built
// once per bind and never change; zoom only ever derives effective scales
// from them.
type Frame struct {
	Width, Height float64
	Margin        struct{ Top, Right, Bottom, Left float64 }

	baseX, baseY Scale
}

// NewFrame builds the base mappings: years to X across
// [margin_left, width*x_range_factor], and lane positions to Y with the
// highest position at the top.
func NewFrame(cfg config.Config, width, height float64, minPos, maxPos int) Frame {
	l := cfg.Layout
	f := Frame{Width: width, Height: height}
	f.Margin.Top = float64(l.MarginTop)
	f.Margin.Right = float64(l.MarginRight)
	f.Margin.Bottom = float64(l.MarginBottom)
	f.Margin.Left = float64(l.MarginLeft)

	rows := float64(maxPos-minPos) + 2
	f.baseY = NewScale(
		float64(maxPos)+l.LanePadding, float64(minPos)-l.LanePadding,
		f.Margin.Top, f.Margin.Top+rows*float64(l.RowHeight),
	)
	f.baseX = NewScale(
		float64(l.TimeStart), float64(l.TimeEnd),
		f.Margin.Left, width*l.XRangeFactor,
	)
	return f
}

// FrameFor is NewFrame sized from the configured viewport and the dataset's
// lane positions.
func FrameFor(cfg config.Config, d *dataset.Dataset) Frame {
	lo, hi := d.PositionRange()
	return NewFrame(cfg, float64(cfg.Layout.Width), float64(cfg.Layout.Height), lo, hi)
}

func (f Frame) BaseX() Scale { return f.baseX }
func (f Frame) BaseY() Scale { return f.baseY }

// Effective returns the scales seen through t.
func (f Frame) Effective(t Transform) (x, y Scale) {
	return t.RescaleX(f.baseX), t.RescaleY(f.baseY)
}

// Content is the clip rectangle of the plotting area.
func (f Frame) Content() Rect {
	return Rect{Min: Point{X: f.Margin.Left, Y: f.Margin.Top}, Max: Point{X: f.Width, Y: f.Height}}
}

// Viewport is the whole drawable area.
func (f Frame) Viewport() Rect {
	return Rect{Max: Point{X: f.Width, Y: f.Height}}
}

// ZoomFor builds the pan/zoom behaviour for this frame.
func (f Frame) ZoomFor(z config.Zoom) Zoom {
	return Zoom{
		MinScale: z.Min,
		MaxScale: z.Max,
		World: Rect{
			Min: Point{X: z.ExtentLeft, Y: z.ExtentTop},
			Max: Point{X: f.Width * z.ExtentWidthFactor, Y: f.Height * z.ExtentHeightFactor},
		},
		Viewport: f.Viewport(),
	}
}

// num formats a pixel value compactly for SVG attributes.
func num(v float64) string {
	if math.Abs(v) < 1e-9 {
		return "0"
	}
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// Num is the exported formatter used by the renderer.
func Num(v float64) string { return num(v) }
