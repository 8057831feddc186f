package layout

import (
	"fmt"
	"math"

	"github.com/dharmatimeline/dharmatimeline/internal/config"
	"github.com/dharmatimeline/dharmatimeline/internal/dataset"
)

// leaderFactor is how far the leader starts above the node centre, as a
// fraction of the node size.
var leaderFactor = map[dataset.Category]float64{
	dataset.Person: 1.0,
	dataset.Text:   0.8,
	dataset.School: 0.5,
	dataset.Event:  0.7,
}

// Geometry turns node configuration into sizes and offsets.
type Geometry struct {
	cfg config.Nodes
}

func NewGeometry(cfg config.Nodes) Geometry { return Geometry{cfg: cfg} }

// Importance resolves an entity's rank with the configured default.
func (g Geometry) Importance(e dataset.Entity) int {
	return e.ImportanceOr(g.cfg.DefaultImportance)
}

// NodeSize is the glyph radius before zoom scaling.
func (g Geometry) NodeSize(importance int) float64 {
	return float64(importance)*g.cfg.SizePerImportance + g.cfg.BaseSize
}

// NodeScale is the glyph scale factor at zoom k: sqrt(k) clamped, so
// glyphs grow slower than the map.
func (g Geometry) NodeScale(k float64) float64 {
	return math.Min(math.Max(math.Sqrt(k), g.cfg.MinNodeScale), g.cfg.MaxNodeScale)
}

// LeaderTip is the local Y of the leader line end, above the glyph.
func (g Geometry) LeaderTip(e dataset.Entity) float64 {
	size := g.NodeSize(g.Importance(e))
	f, ok := leaderFactor[e.Category]
	if !ok {
		f = leaderFactor[dataset.Event]
	}
	return -size*f - g.cfg.LeaderExtension
}

// Spans reports whether an entity is drawn as an unscaled horizontal span.
func Spans(e dataset.Entity) bool {
	return e.Category == dataset.School && e.End != nil
}

// GlyphScale is the scale applied to an entity's glyph group at zoom k.
// Spans stay unscaled because their width already follows the time axis.
func (g Geometry) GlyphScale(e dataset.Entity, k float64) float64 {
	if Spans(e) {
		return 1
	}
	return g.NodeScale(k)
}

// LabelOffset is the on-screen Y offset of the label anchor from the node
// centre: the leader tip after glyph scaling.
func (g Geometry) LabelOffset(e dataset.Entity, k float64) float64 {
	return g.LeaderTip(e) * g.GlyphScale(e, k)
}

// SpanWidth is the pixel width of a school span under x.
func (g Geometry) SpanWidth(e dataset.Entity, x Scale) float64 {
	if e.End == nil {
		return g.cfg.SchoolBaseWidth
	}
	return math.Max(x.Map(float64(*e.End))-x.Map(float64(e.Start)), g.cfg.MinSchoolWidth)
}

// LinkPath is a horizontal-tangent cubic between two screen points.
func LinkPath(s, t Point) string {
	mid := (s.X + t.X) / 2
	return fmt.Sprintf("M%s,%s C%s,%s %s,%s %s,%s",
		num(s.X), num(s.Y), num(mid), num(s.Y), num(mid), num(t.Y), num(t.X), num(t.Y))
}
