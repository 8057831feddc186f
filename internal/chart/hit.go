package chart

import (
	"math"
	"unicode/utf8"

	"github.com/dharmatimeline/dharmatimeline/internal/layout"
)

// Box is an axis aligned screen rectangle.
type Box struct {
	Left, Top, Right, Bottom float64
}

// Overlaps reports whether two boxes intersect. Boxes that only touch do
// not overlap.
func (b Box) Overlaps(o Box) bool {
	if b.Right <= o.Left || b.Left >= o.Right ||
		b.Bottom <= o.Top || b.Top >= o.Bottom {
		return false
	}
	return true
}

func (b Box) Contains(p layout.Point) bool {
	return p.X >= b.Left && p.X <= b.Right && p.Y >= b.Top && p.Y <= b.Bottom
}

// estimateTextWidth assumes an average glyph is 0.6 of the font size wide.
func estimateTextWidth(text string, fontSize int) float64 {
	return float64(utf8.RuneCountInString(text)) * float64(fontSize) * 0.6
}

func (s *Scene) nodeBox(n *node) Box {
	if layout.Spans(n.entity) {
		h := n.size / 2
		return Box{Left: n.x - 3, Top: n.y - h, Right: n.x + n.spanWidth, Bottom: n.y + h}
	}
	r := n.size * n.scale
	return Box{Left: n.x - r, Top: n.y - r, Right: n.x + r, Bottom: n.y + r}
}

// labelBox bounds the rotated label run starting at the leader tip.
func (s *Scene) labelBox(l *label) Box {
	fs := s.cfg.Font.LabelSize
	rad := s.cfg.Nodes.LabelAngle * math.Pi / 180
	ux, uy := math.Cos(rad), math.Sin(rad)
	ax, ay := l.node.x, l.node.y+l.offset
	w := estimateTextWidth(l.node.entity.Name, fs)
	x0, y0 := ax+4*ux, ay+4*uy
	x1, y1 := ax+(4+w)*ux, ay+(4+w)*uy
	pad := float64(fs) / 2
	return Box{
		Left:   math.Min(x0, x1) - pad,
		Top:    math.Min(y0, y1) - pad,
		Right:  math.Max(x0, x1) + pad,
		Bottom: math.Max(y0, y1) + pad,
	}
}

// HitTest returns the topmost entity under the screen point p. Labels sit
// above nodes; hidden labels take no pointer events. Points outside the
// plotting area hit nothing.
func (s *Scene) HitTest(p layout.Point) (string, bool) {
	if !s.frame.Content().Contains(p) {
		return "", false
	}
	labels := s.orderedLabels()
	for i := len(labels) - 1; i >= 0; i-- {
		l := labels[i]
		if l.interactive && s.labelBox(l).Contains(p) {
			return l.node.entity.ID, true
		}
	}
	nodes := s.orderedNodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		if s.nodeBox(nodes[i]).Contains(p) {
			return nodes[i].entity.ID, true
		}
	}
	return "", false
}

// LabelOverlaps counts pairs of visible labels whose boxes intersect.
func (s *Scene) LabelOverlaps() int {
	var boxes []Box
	for _, l := range s.labels {
		if l.opacity > 0 {
			boxes = append(boxes, s.labelBox(l))
		}
	}
	count := 0
	for i := range boxes {
		for j := i + 1; j < len(boxes); j++ {
			if boxes[i].Overlaps(boxes[j]) {
				count++
			}
		}
	}
	return count
}
