// Package chart keeps a retained scene of the timeline and updates it
// through three channels of increasing cost: Restyle (emphasis only),
// Layout (positions only) and Bind (the whole scene).
package chart

import (
	"math"

	"github.com/dharmatimeline/dharmatimeline/internal/config"
	"github.com/dharmatimeline/dharmatimeline/internal/dataset"
	"github.com/dharmatimeline/dharmatimeline/internal/interaction"
	"github.com/dharmatimeline/dharmatimeline/internal/layout"
	"github.com/dharmatimeline/dharmatimeline/internal/lod"
)

// Pass names an update channel.
type Pass string

const (
	PassBind   Pass = "bind"
	PassLayout Pass = "layout"
	PassStyle  Pass = "style"
)

// Stats counts the passes a scene has run.
type Stats struct {
	Binds    int
	Layouts  int
	Restyles int
}

// Option configures a Scene.
type Option func(*Scene)

// WithPassObserver registers fn to be called after every pass.
func WithPassObserver(fn func(Pass)) Option {
	return func(s *Scene) { s.observe = fn }
}

type node struct {
	entity     dataset.Entity
	glyph      glyph
	importance int
	size       float64
	lanePos    float64
	leaderTip  float64

	// positions
	x, y      float64
	scale     float64
	spanWidth float64

	// style
	opacity       float64
	stroke        string
	strokeWidth   float64
	strokeOpacity float64
	fill          string
	leaderStroke  string
	leaderWidth   float64
	leaderOpacity float64
}

type label struct {
	node *node

	offset float64

	opacity     float64
	interactive bool
	fill        string
	dotRadius   float64
}

type link struct {
	rel            dataset.Relationship
	index          int
	source, target *node

	path string

	width   float64
	opacity float64
}

type tick struct {
	px    float64
	label string
}

type laneMark struct {
	lane dataset.Lane
	y    float64
}

// Scene is the retained chart. It is not safe for concurrent use.
type Scene struct {
	cfg     config.Config
	policy  lod.Policy
	geom    layout.Geometry
	glyphs  map[dataset.Category]glyph
	observe func(Pass)

	data      *dataset.Dataset
	frame     layout.Frame
	zoom      layout.Zoom
	transform layout.Transform

	nodes  []*node
	labels []*label
	links  []*link
	byID   map[string]*node

	gridX   []float64
	lanes   []laneMark
	originY float64
	ticks   []tick

	active string
	stats  Stats
}

// New returns an empty scene. Call Bind before anything else.
func New(cfg config.Config, policy lod.Policy, opts ...Option) *Scene {
	s := &Scene{
		cfg:       cfg,
		policy:    policy,
		geom:      layout.NewGeometry(cfg.Nodes),
		glyphs:    glyphTable(cfg.Colors),
		transform: layout.Identity,
		byID:      map[string]*node{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scene) done(p Pass) {
	switch p {
	case PassBind:
		s.stats.Binds++
	case PassLayout:
		s.stats.Layouts++
	case PassStyle:
		s.stats.Restyles++
	}
	if s.observe != nil {
		s.observe(p)
	}
}

// Bind rebuilds every element for d in a width x height viewport and
// resets the view to the configured initial zoom. Static attributes such
// as shape, colour and text are fixed here and never touched again.
func (s *Scene) Bind(d *dataset.Dataset, width, height float64) {
	lo, hi := d.PositionRange()
	s.data = d
	s.frame = layout.NewFrame(s.cfg, width, height, lo, hi)
	s.zoom = s.frame.ZoomFor(s.cfg.Zoom)
	s.transform = s.zoom.Set(layout.Identity.Scale(s.cfg.Zoom.Initial))
	s.active = ""

	entities := d.SortedEntities()
	s.nodes = make([]*node, 0, len(entities))
	s.labels = make([]*label, 0, len(entities))
	s.byID = make(map[string]*node, len(entities))
	for _, e := range entities {
		imp := s.geom.Importance(e)
		n := &node{
			entity:     e,
			glyph:      s.glyphs[e.Category],
			importance: imp,
			size:       s.geom.NodeSize(imp),
			lanePos:    float64(d.LaneOf(e).Position),
			leaderTip:  s.geom.LeaderTip(e),
			scale:      1,
			spanWidth:  s.cfg.Nodes.SchoolBaseWidth,
		}
		s.nodes = append(s.nodes, n)
		s.labels = append(s.labels, &label{node: n})
		s.byID[e.ID] = n
	}

	s.links = s.links[:0]
	for i, r := range d.Relationships {
		src, tgt := s.byID[r.Source], s.byID[r.Target]
		if src == nil || tgt == nil {
			continue
		}
		s.links = append(s.links, &link{rel: r, index: i, source: src, target: tgt})
	}

	s.resetStyle()
	s.done(PassBind)
}

// resetStyle applies the resting style so a freshly bound scene can be
// written before its first Restyle.
func (s *Scene) resetStyle() {
	e := s.cfg.Emphasis
	for _, n := range s.nodes {
		n.opacity = 1
		n.stroke = n.glyph.color
		n.fill = n.glyph.color
		n.strokeWidth = e.NodeStroke
		n.strokeOpacity = e.SchoolStrokeAlpha
		n.leaderStroke = n.glyph.color
		n.leaderWidth = e.LeaderWidth
		n.leaderOpacity = 1
	}
	for _, l := range s.labels {
		l.opacity = 1
		l.interactive = true
		l.fill = l.node.glyph.color
		l.dotRadius = e.DotRadius
	}
	for _, k := range s.links {
		k.width = e.LinkWidth
		k.opacity = restingLinkOpacity(e, k.rel.Kind)
	}
}

func restingLinkOpacity(e config.Emphasis, kind dataset.RelationKind) float64 {
	if kind == dataset.Influence {
		return e.InfluenceAlpha
	}
	return e.TransmissionAlpha
}

// Layout recomputes every position-dependent attribute for t: node
// translations and scale, span widths, label offsets, connector paths,
// grid lines and axis ticks. Styles are left alone.
func (s *Scene) Layout(t layout.Transform) {
	s.transform = t
	x, y := s.frame.Effective(t)
	k := t.K

	for _, n := range s.nodes {
		n.x = x.Map(float64(n.entity.Start))
		n.y = y.Map(n.lanePos)
		n.scale = s.geom.GlyphScale(n.entity, k)
		if layout.Spans(n.entity) {
			n.spanWidth = s.geom.SpanWidth(n.entity, x)
		}
	}
	for _, l := range s.labels {
		l.offset = s.geom.LabelOffset(l.node.entity, k)
	}
	for _, lk := range s.links {
		lk.path = layout.LinkPath(
			layout.Point{X: lk.source.x, Y: lk.source.y},
			layout.Point{X: lk.target.x, Y: lk.target.y},
		)
	}

	s.gridX = s.gridX[:0]
	for _, v := range x.Ticks(tickCount(s.frame.Width, s.cfg.Layout.GridSpacing)) {
		s.gridX = append(s.gridX, x.Map(v))
	}
	s.ticks = s.ticks[:0]
	for _, v := range x.Ticks(tickCount(s.frame.Width, s.cfg.Layout.AxisSpacing)) {
		px := x.Map(v)
		if px < 0 || px > s.frame.Width {
			continue
		}
		s.ticks = append(s.ticks, tick{px: px, label: dataset.FormatTick(v)})
	}
	s.lanes = s.lanes[:0]
	if s.data != nil {
		for _, ln := range s.data.Lanes {
			s.lanes = append(s.lanes, laneMark{lane: ln, y: y.Map(float64(ln.Position))})
		}
	}
	s.originY = y.Map(0)

	s.done(PassLayout)
}

func tickCount(width float64, spacing int) int {
	if spacing <= 0 {
		return 1
	}
	return max(1, int(math.Round(width/float64(spacing))))
}

// Restyle applies emphasis for snap across nodes, connectors and labels.
// The active entity overrides level of detail and is raised to the top of
// its layers.
func (s *Scene) Restyle(snap interaction.Snapshot) {
	e := s.cfg.Emphasis
	k := snap.Zoom
	if k <= 0 {
		k = s.transform.K
	}
	activeColor := s.cfg.Colors.Active

	for _, n := range s.nodes {
		isActive := snap.IsActive(n.entity.ID)
		visible := s.policy.Visible(n.importance, k)
		color := n.glyph.color
		if isActive {
			color = activeColor
		}

		n.opacity = 1
		if !snap.Matches(n.entity.Category) {
			n.opacity = e.DimOpacity
		}

		n.leaderStroke = color
		n.leaderWidth = pick(isActive, e.ActiveLeaderWidth, e.LeaderWidth)
		n.leaderOpacity = 0
		if isActive || visible {
			n.leaderOpacity = 1
		}

		n.stroke = color
		if n.glyph.shape == shapeSpan {
			n.strokeOpacity = pick(isActive, 1, e.SchoolStrokeAlpha)
			n.fill = color
		} else {
			n.strokeWidth = pick(isActive, e.ActiveNodeStroke, e.NodeStroke)
		}
	}

	for _, lk := range s.links {
		touches := snap.IsActive(lk.rel.Source) || snap.IsActive(lk.rel.Target)
		switch {
		case touches:
			lk.width, lk.opacity = e.ActiveLinkWidth, 1
		case snap.HasFilter():
			lk.width, lk.opacity = e.LinkWidth, e.LinkDimOpacity
		default:
			lk.width, lk.opacity = e.LinkWidth, restingLinkOpacity(e, lk.rel.Kind)
		}
	}

	for _, l := range s.labels {
		n := l.node
		isActive := snap.IsActive(n.entity.ID)
		l.opacity, l.interactive = 1, true
		if !isActive {
			if !s.policy.Visible(n.importance, k) {
				l.opacity, l.interactive = 0, false
			} else if !snap.Matches(n.entity.Category) {
				l.opacity = e.DimOpacity
			}
		}
		l.fill = n.glyph.color
		if isActive {
			l.fill = activeColor
		}
		l.dotRadius = pick(isActive, e.ActiveDotRadius, e.DotRadius)
	}

	s.active = ""
	if _, ok := s.byID[snap.ActiveID]; ok {
		s.active = snap.ActiveID
	}
	s.done(PassStyle)
}

func pick(cond bool, a, b float64) float64 {
	if cond {
		return a
	}
	return b
}

// ZoomBy scales the view by factor around the screen point p and runs the
// layout pass.
func (s *Scene) ZoomBy(factor float64, p layout.Point) layout.Transform {
	t := s.zoom.ZoomAt(s.transform, factor, p)
	s.Layout(t)
	return t
}

// PanBy moves the view by screen pixels and runs the layout pass.
func (s *Scene) PanBy(dx, dy float64) layout.Transform {
	t := s.zoom.Pan(s.transform, dx, dy)
	s.Layout(t)
	return t
}

// SetTransform clamps t into the zoom bounds and runs the layout pass.
func (s *Scene) SetTransform(t layout.Transform) layout.Transform {
	t = s.zoom.Set(t)
	s.Layout(t)
	return t
}

func (s *Scene) Transform() layout.Transform { return s.transform }
func (s *Scene) Frame() layout.Frame         { return s.frame }
func (s *Scene) Stats() Stats                { return s.stats }
func (s *Scene) Dataset() *dataset.Dataset   { return s.data }

// Position returns the screen position of an entity's node.
func (s *Scene) Position(id string) (layout.Point, bool) {
	n, ok := s.byID[id]
	if !ok {
		return layout.Point{}, false
	}
	return layout.Point{X: n.x, Y: n.y}, true
}

// LabelVisible reports whether an entity's label currently shows.
func (s *Scene) LabelVisible(id string) bool {
	for _, l := range s.labels {
		if l.node.entity.ID == id {
			return l.opacity > 0
		}
	}
	return false
}

// drawOrder returns items with the active one moved to the end, so it
// draws on top.
func drawOrder[T any](items []T, active func(T) bool) []T {
	out := make([]T, 0, len(items))
	var top []T
	for _, it := range items {
		if active(it) {
			top = append(top, it)
			continue
		}
		out = append(out, it)
	}
	return append(out, top...)
}

func (s *Scene) orderedNodes() []*node {
	return drawOrder(s.nodes, func(n *node) bool { return s.active != "" && n.entity.ID == s.active })
}

func (s *Scene) orderedLabels() []*label {
	return drawOrder(s.labels, func(l *label) bool { return s.active != "" && l.node.entity.ID == s.active })
}
