package chart

import (
	"fmt"
	"io"
	"strings"

	"github.com/dharmatimeline/dharmatimeline/internal/layout"
)

type attr struct{ key, val string }

func num(v float64) string { return layout.Num(v) }

func writeAttrs(b *strings.Builder, attrs ...[]attr) {
	for _, set := range attrs {
		for _, a := range set {
			fmt.Fprintf(b, ` %s="%s"`, a.key, escapeXML(a.val))
		}
	}
}

// escapeXML escapes special XML characters so names and descriptions can
// be embedded in SVG content.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

// Element ids shared by the SVG output and the patches.
func nodeID(id string) string   { return "node-" + id }
func leaderID(id string) string { return "leader-" + id }
func mainID(id string) string   { return "main-" + id }
func bgID(id string) string     { return "bg-" + id }
func labelID(id string) string  { return "label-" + id }
func dotID(id string) string    { return "dot-" + id }
func textID(id string) string   { return "text-" + id }
func linkID(i int) string       { return fmt.Sprintf("link-%d", i) }

// Position attributes.

func (n *node) groupPos() []attr {
	t := fmt.Sprintf("translate(%s,%s)", num(n.x), num(n.y))
	if !layout.Spans(n.entity) {
		t += fmt.Sprintf(" scale(%s)", num(n.scale))
	}
	return []attr{{"transform", t}}
}

func (n *node) bgPos() []attr { return []attr{{"width", num(n.spanWidth)}} }

func (l *label) groupPos() []attr {
	return []attr{{"transform", fmt.Sprintf("translate(%s,%s)", num(l.node.x), num(l.node.y))}}
}

func (l *label) dotPos() []attr { return []attr{{"cy", num(l.offset)}} }

func (l *label) textPos(angle float64) []attr {
	return []attr{{"transform", fmt.Sprintf("translate(0,%s) rotate(%s)", num(l.offset), num(angle))}}
}

func (k *link) pos() []attr { return []attr{{"d", k.path}} }

// Style attributes.

func (n *node) groupStyle() []attr { return []attr{{"opacity", num(n.opacity)}} }

func (n *node) leaderStyle() []attr {
	return []attr{
		{"stroke", n.leaderStroke},
		{"stroke-width", num(n.leaderWidth)},
		{"opacity", num(n.leaderOpacity)},
	}
}

func (n *node) mainStyle() []attr {
	if n.glyph.shape == shapeSpan {
		return []attr{{"fill", n.fill}}
	}
	return []attr{{"stroke", n.stroke}, {"stroke-width", num(n.strokeWidth)}}
}

func (n *node) bgStyle() []attr {
	return []attr{{"stroke", n.stroke}, {"stroke-opacity", num(n.strokeOpacity)}}
}

func (l *label) groupStyle() []attr {
	pe := "auto"
	if !l.interactive {
		pe = "none"
	}
	return []attr{{"opacity", num(l.opacity)}, {"pointer-events", pe}}
}

func (l *label) dotStyle() []attr {
	return []attr{{"fill", l.fill}, {"r", num(l.dotRadius)}}
}

func (l *label) textStyle() []attr { return []attr{{"fill", l.fill}} }

func (k *link) style() []attr {
	return []attr{{"stroke-width", num(k.width)}, {"stroke-opacity", num(k.opacity)}}
}

// WriteSVG writes the whole scene as a standalone SVG document.
func (s *Scene) WriteSVG(w io.Writer) error {
	var svg strings.Builder
	s.writeDocument(&svg)
	_, err := io.WriteString(w, svg.String())
	return err
}

// SVG returns the scene as a string.
func (s *Scene) SVG() string {
	var svg strings.Builder
	s.writeDocument(&svg)
	return svg.String()
}

func (s *Scene) writeDocument(svg *strings.Builder) {
	f := s.frame
	c := s.cfg.Colors
	font := s.cfg.Font
	content := f.Content()

	fmt.Fprintf(svg, `<?xml version="1.0" encoding="UTF-8"?>
<svg width="%s" height="%s" viewBox="0 0 %s %s" xmlns="http://www.w3.org/2000/svg">
<defs>
<clipPath id="content-clip"><rect x="%s" y="%s" width="%s" height="%s"/></clipPath>
<clipPath id="lane-clip"><rect x="0" y="%s" width="%s" height="%s"/></clipPath>
<style>
.label { font-family: %s; font-size: %dpx; font-weight: 600; stroke: rgba(255,255,255,0.8); stroke-width: 2px; stroke-linejoin: round; paint-order: stroke; }
.tick text { font-family: %s; font-size: %dpx; font-weight: bold; fill: %s; }
.lane-name { font-family: %s; font-size: %dpx; font-weight: bold; fill: %s; }
.corner-title { font-family: %s; font-size: 12px; font-weight: bold; fill: #57534e; text-transform: uppercase; letter-spacing: 0.1em; }
.node-group, .label-group { cursor: pointer; }
</style>
</defs>
`,
		num(f.Width), num(f.Height), num(f.Width), num(f.Height),
		num(content.Min.X), num(content.Min.Y), num(f.Width-content.Min.X), num(f.Height-content.Min.Y),
		num(f.Margin.Top), num(f.Margin.Left), num(f.Height-f.Margin.Top),
		font.Family, font.LabelSize,
		font.Family, font.AxisSize, c.AxisText,
		font.Family, font.LaneSize, c.LaneText,
		font.Family)

	fmt.Fprintf(svg, `<rect class="background" data-role="background" width="%s" height="%s" fill="%s"/>`+"\n",
		num(f.Width), num(f.Height), c.Background)

	svg.WriteString(`<g clip-path="url(#content-clip)">` + "\n")
	svg.WriteString(`<g id="grid-layer">`)
	s.writeGrid(svg)
	svg.WriteString("</g>\n")

	svg.WriteString(`<g id="link-layer">`)
	for _, k := range s.links {
		s.writeLink(svg, k)
	}
	svg.WriteString("</g>\n")

	svg.WriteString(`<g id="node-layer">`)
	for _, n := range s.orderedNodes() {
		s.writeNode(svg, n)
	}
	svg.WriteString("</g>\n")

	svg.WriteString(`<g id="label-layer">`)
	for _, l := range s.orderedLabels() {
		s.writeLabel(svg, l)
	}
	svg.WriteString("</g>\n</g>\n")

	// Lane axis
	fmt.Fprintf(svg, `<rect x="0" y="0" width="%s" height="%s" fill="%s" pointer-events="none"/>`+"\n",
		num(f.Margin.Left), num(f.Height), c.AxisBackground)
	svg.WriteString(`<g id="lane-axis" clip-path="url(#lane-clip)">`)
	s.writeLaneAxis(svg)
	svg.WriteString("</g>\n")

	// Time axis
	fmt.Fprintf(svg, `<rect x="0" y="0" width="%s" height="%s" fill="%s" pointer-events="none"/>`+"\n",
		num(f.Width), num(f.Margin.Top), c.AxisBackground)
	fmt.Fprintf(svg, `<line x1="0" x2="%s" y1="%s" y2="%s" stroke="%s"/>`+"\n",
		num(f.Width), num(f.Margin.Top), num(f.Margin.Top), c.AxisTick)
	fmt.Fprintf(svg, `<g id="time-axis" transform="translate(0,%s)">`, num(f.Margin.Top-1))
	s.writeTimeAxis(svg)
	svg.WriteString("</g>\n")

	// Corner
	fmt.Fprintf(svg, `<rect width="%s" height="%s" fill="%s"/>`, num(f.Margin.Left), num(f.Margin.Top), c.Corner)
	fmt.Fprintf(svg, `<text class="corner-title" x="%s" y="%s" dy="0.35em" text-anchor="middle">%s</text>`+"\n",
		num(f.Margin.Left/2), num(f.Margin.Top/2), escapeXML(s.cfg.Layout.CornerTitle))

	svg.WriteString("</svg>\n")
}

func (s *Scene) writeGrid(svg *strings.Builder) {
	f := s.frame
	c := s.cfg.Colors
	for _, x := range s.gridX {
		fmt.Fprintf(svg, `<line class="grid-x" x1="%s" x2="%s" y1="%s" y2="%s" stroke="%s" stroke-dasharray="4,4"/>`,
			num(x), num(x), num(f.Margin.Top), num(f.Height), c.Grid)
	}
	for _, ln := range s.lanes {
		fmt.Fprintf(svg, `<line class="grid-y" x1="%s" x2="%s" y1="%s" y2="%s" stroke="%s"/>`,
			num(f.Margin.Left), num(f.Width), num(ln.y), num(ln.y), c.LaneLine)
	}
	fmt.Fprintf(svg, `<line class="origin-guide" x1="%s" x2="%s" y1="%s" y2="%s" stroke="%s" stroke-opacity="0.2" stroke-width="%d"/>`,
		num(f.Margin.Left), num(f.Width), num(s.originY), num(s.originY), c.OriginGuide, s.cfg.Layout.OriginGuideW)
}

func (s *Scene) writeTimeAxis(svg *strings.Builder) {
	for _, t := range s.ticks {
		fmt.Fprintf(svg, `<g class="tick" transform="translate(%s,0)"><line y2="-6" stroke="%s"/><text y="-9" text-anchor="middle">%s</text></g>`,
			num(t.px), s.cfg.Colors.AxisTick, escapeXML(t.label))
	}
}

func (s *Scene) writeLaneAxis(svg *strings.Builder) {
	l := s.cfg.Layout
	for _, m := range s.lanes {
		fmt.Fprintf(svg, `<g class="lane-label" transform="translate(0,%s)">`, num(m.y))
		if m.lane.Icon != "" && l.LaneIconURLFmt != "" {
			href := fmt.Sprintf(l.LaneIconURLFmt, m.lane.Icon)
			fmt.Fprintf(svg, `<image href="%s" width="%d" height="%d" transform="translate(30,%d)" style="filter: grayscale(100%%) brightness(0.2)" preserveAspectRatio="xMidYMid meet"/>`,
				escapeXML(href), l.LaneIconSize, l.LaneIconSize, -l.LaneIconSize/2)
		} else {
			fmt.Fprintf(svg, `<path d="%s" fill="#292524" transform="translate(45,-12) scale(0.35)"/>`, laneShape(m.lane.ID))
		}
		fmt.Fprintf(svg, `<text class="lane-name" x="75" y="0" dy="0.35em">%s</text></g>`, escapeXML(m.lane.Name))
	}
}

func (s *Scene) writeLink(svg *strings.Builder, k *link) {
	svg.WriteString("<path")
	writeAttrs(svg, []attr{
		{"id", linkID(k.index)},
		{"class", "link"},
		{"data-source", k.rel.Source},
		{"data-target", k.rel.Target},
		{"fill", "none"},
		{"stroke", linkColor(s.cfg.Colors, k.rel.Kind)},
		{"stroke-dasharray", linkDash(k.rel.Kind)},
	}, k.pos(), k.style())
	svg.WriteString("/>")
}

func (s *Scene) writeNode(svg *strings.Builder, n *node) {
	id := n.entity.ID
	svg.WriteString("<g")
	writeAttrs(svg, []attr{{"id", nodeID(id)}, {"class", "node-group"}, {"data-entity", id}}, n.groupPos(), n.groupStyle())
	svg.WriteString(">")

	svg.WriteString("<line")
	writeAttrs(svg, []attr{
		{"id", leaderID(id)}, {"class", "leader-line"},
		{"x1", "0"}, {"y1", "0"}, {"x2", "0"}, {"y2", num(n.leaderTip)},
		{"stroke-opacity", "0.6"},
	}, n.leaderStyle())
	svg.WriteString("/>")

	size := n.size
	switch n.glyph.shape {
	case shapeCircle:
		svg.WriteString("<circle")
		writeAttrs(svg, []attr{{"id", mainID(id)}, {"class", "main-node"}, {"r", num(size)}, {"fill", "#fff"}}, n.mainStyle())
		svg.WriteString("/>")
		writeIcon(svg, n.glyph.icon, size)
	case shapeCard:
		svg.WriteString("<rect")
		writeAttrs(svg, []attr{
			{"id", mainID(id)}, {"class", "main-node"},
			{"x", num(-size)}, {"y", num(-size * 0.8)},
			{"width", num(size * 2)}, {"height", num(size * 1.6)},
			{"rx", "3"}, {"fill", "#fff"},
		}, n.mainStyle())
		svg.WriteString("/>")
		writeIcon(svg, n.glyph.icon, size)
	case shapeSpan:
		svg.WriteString("<rect")
		writeAttrs(svg, []attr{
			{"id", bgID(id)}, {"class", "school-bg"},
			{"x", "0"}, {"y", num(-size / 2)}, {"height", num(size)}, {"rx", num(size / 2)},
			{"fill", n.glyph.color}, {"fill-opacity", "0.15"},
		}, n.bgPos(), n.bgStyle())
		svg.WriteString("/>")
		svg.WriteString("<circle")
		writeAttrs(svg, []attr{{"id", mainID(id)}, {"class", "main-node"}, {"r", "3"}}, n.mainStyle())
		svg.WriteString("/>")
	default:
		svg.WriteString("<circle")
		writeAttrs(svg, []attr{{"id", mainID(id)}, {"class", "main-node"}, {"r", num(size * 0.7)}, {"fill", "#fff"}}, n.mainStyle())
		svg.WriteString("/>")
	}

	fmt.Fprintf(svg, "<title>%s</title></g>", escapeXML(n.entity.Name+" ("+n.entity.Era()+")"))
}

func writeIcon(svg *strings.Builder, icon string, size float64) {
	if icon == "" {
		return
	}
	fmt.Fprintf(svg, `<text class="icon-text" text-anchor="middle" dominant-baseline="central" y="1" font-size="%spx" pointer-events="none">%s</text>`,
		num(size), icon)
}

func (s *Scene) writeLabel(svg *strings.Builder, l *label) {
	id := l.node.entity.ID
	svg.WriteString("<g")
	writeAttrs(svg, []attr{{"id", labelID(id)}, {"class", "label-group"}, {"data-entity", id}}, l.groupPos(), l.groupStyle())
	svg.WriteString(">")
	svg.WriteString("<circle")
	writeAttrs(svg, []attr{{"id", dotID(id)}, {"class", "leader-dot"}, {"cx", "0"}}, l.dotPos(), l.dotStyle())
	svg.WriteString("/>")
	svg.WriteString("<text")
	writeAttrs(svg, []attr{{"id", textID(id)}, {"class", "label"}, {"dx", "4"}, {"dy", "0.35em"}},
		l.textPos(s.cfg.Nodes.LabelAngle), l.textStyle())
	fmt.Fprintf(svg, ">%s</text></g>", escapeXML(l.node.entity.Name))
}
