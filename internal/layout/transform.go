package layout

import (
	"fmt"
	"math"
)

// Point is a screen or world position in pixels.
type Point struct{ X, Y float64 }

// Rect is an axis aligned rectangle given by two corners.
type Rect struct{ Min, Max Point }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Transform is a pan/zoom gesture: scale K followed by translation (X, Y).
// A screen point s and a world point w relate by s = w*K + (X, Y).
// All methods return new values.
type Transform struct {
	K, X, Y float64
}

// Identity is the transform with no zoom and no pan.
var Identity = Transform{K: 1}

func (t Transform) Apply(p Point) Point {
	return Point{X: p.X*t.K + t.X, Y: p.Y*t.K + t.Y}
}

func (t Transform) Invert(p Point) Point {
	return Point{X: t.InvertX(p.X), Y: t.InvertY(p.Y)}
}

func (t Transform) InvertX(x float64) float64 { return (x - t.X) / t.K }
func (t Transform) InvertY(y float64) float64 { return (y - t.Y) / t.K }

// Scale multiplies the zoom factor, keeping the world origin in place.
func (t Transform) Scale(k float64) Transform {
	if k == 1 {
		return t
	}
	return Transform{K: t.K * k, X: t.X, Y: t.Y}
}

// Translate pans by (dx, dy) world units.
func (t Transform) Translate(dx, dy float64) Transform {
	if dx == 0 && dy == 0 {
		return t
	}
	return Transform{K: t.K, X: t.X + t.K*dx, Y: t.Y + t.K*dy}
}

// RescaleX derives the effective horizontal scale: the range is kept and
// the domain becomes whatever is visible across it under t.
func (t Transform) RescaleX(s Scale) Scale {
	r0, r1 := s.Range()
	return NewScale(s.Invert(t.InvertX(r0)), s.Invert(t.InvertX(r1)), r0, r1)
}

// RescaleY is RescaleX for the vertical axis.
func (t Transform) RescaleY(s Scale) Scale {
	r0, r1 := s.Range()
	return NewScale(s.Invert(t.InvertY(r0)), s.Invert(t.InvertY(r1)), r0, r1)
}

func (t Transform) String() string {
	return fmt.Sprintf("translate(%s,%s) scale(%s)", num(t.X), num(t.Y), num(t.K))
}

// Zoom is the pan/zoom behaviour: a bounded scale extent and a world
// rectangle the viewport may never leave.
type Zoom struct {
	MinScale, MaxScale float64
	World              Rect // translate extent
	Viewport           Rect // visible extent, normally [0,0]..[w,h]
}

// ClampScale bounds k to the scale extent.
func (z Zoom) ClampScale(k float64) float64 {
	return math.Min(math.Max(k, z.MinScale), z.MaxScale)
}

// Constrain shifts t so the viewport, seen in world coordinates, stays
// inside the world rectangle. When the viewport is wider (or taller) than
// the world the view is centred instead.
func (z Zoom) Constrain(t Transform) Transform {
	dx0 := t.InvertX(z.Viewport.Min.X) - z.World.Min.X
	dx1 := t.InvertX(z.Viewport.Max.X) - z.World.Max.X
	dy0 := t.InvertY(z.Viewport.Min.Y) - z.World.Min.Y
	dy1 := t.InvertY(z.Viewport.Max.Y) - z.World.Max.Y
	return t.Translate(constrainAxis(dx0, dx1), constrainAxis(dy0, dy1))
}

func constrainAxis(d0, d1 float64) float64 {
	if d1 > d0 {
		return (d0 + d1) / 2
	}
	if m := math.Min(0, d0); m != 0 {
		return m
	}
	return math.Max(0, d1)
}

// Set clamps an arbitrary transform into the behaviour's bounds.
func (z Zoom) Set(t Transform) Transform {
	return z.Constrain(Transform{K: z.ClampScale(t.K), X: t.X, Y: t.Y})
}

// ZoomAt multiplies the scale by factor while keeping the world point under
// the screen point p fixed.
func (z Zoom) ZoomAt(t Transform, factor float64, p Point) Transform {
	k := z.ClampScale(t.K * factor)
	w := t.Invert(p)
	return z.Constrain(Transform{K: k, X: p.X - w.X*k, Y: p.Y - w.Y*k})
}

// Pan moves the view by (dx, dy) screen pixels.
func (z Zoom) Pan(t Transform, dx, dy float64) Transform {
	return z.Constrain(Transform{K: t.K, X: t.X + dx, Y: t.Y + dy})
}

// VisibleOrigin returns the world point shown at the viewport's top-left
// corner.
func (z Zoom) VisibleOrigin(t Transform) Point {
	return t.Invert(z.Viewport.Min)
}
