package chart

import "strings"

// Patch is a set of attribute changes for one SVG element.
type Patch struct {
	ID    string            `json:"id"`
	Attrs map[string]string `json:"attrs"`
}

// StyleUpdate is the result of the style channel: emphasis attributes for
// every element plus the ids to move to the top of their layer, in order.
type StyleUpdate struct {
	Elements []Patch  `json:"elements"`
	Raise    []string `json:"raise,omitempty"`
}

// PositionUpdate is the result of the layout channel. Grid and axes change
// their number of children with the zoom, so they travel as markup.
type PositionUpdate struct {
	Transform string  `json:"transform"`
	Zoom      float64 `json:"zoom"`
	Elements  []Patch `json:"elements"`
	Grid      string  `json:"grid"`
	TimeAxis  string  `json:"time_axis"`
	LaneAxis  string  `json:"lane_axis"`
}

func patch(id string, sets ...[]attr) Patch {
	p := Patch{ID: id, Attrs: map[string]string{}}
	for _, set := range sets {
		for _, a := range set {
			p.Attrs[a.key] = a.val
		}
	}
	return p
}

// StylePatch returns the current emphasis attributes.
func (s *Scene) StylePatch() StyleUpdate {
	out := StyleUpdate{Elements: make([]Patch, 0, 3*len(s.nodes)+2*len(s.labels)+len(s.links))}
	for _, n := range s.nodes {
		id := n.entity.ID
		out.Elements = append(out.Elements,
			patch(nodeID(id), n.groupStyle()),
			patch(leaderID(id), n.leaderStyle()),
			patch(mainID(id), n.mainStyle()),
		)
		if n.glyph.shape == shapeSpan {
			out.Elements = append(out.Elements, patch(bgID(id), n.bgStyle()))
		}
	}
	for _, l := range s.labels {
		id := l.node.entity.ID
		out.Elements = append(out.Elements,
			patch(labelID(id), l.groupStyle()),
			patch(dotID(id), l.dotStyle()),
			patch(textID(id), l.textStyle()),
		)
	}
	for _, k := range s.links {
		out.Elements = append(out.Elements, patch(linkID(k.index), k.style()))
	}
	if s.active != "" {
		out.Raise = []string{nodeID(s.active), labelID(s.active)}
	}
	return out
}

// PositionPatch returns the current position attributes.
func (s *Scene) PositionPatch() PositionUpdate {
	out := PositionUpdate{
		Transform: s.transform.String(),
		Zoom:      s.transform.K,
		Elements:  make([]Patch, 0, 2*len(s.nodes)+3*len(s.labels)+len(s.links)),
	}
	angle := s.cfg.Nodes.LabelAngle
	for _, n := range s.nodes {
		id := n.entity.ID
		out.Elements = append(out.Elements, patch(nodeID(id), n.groupPos()))
		if n.glyph.shape == shapeSpan {
			out.Elements = append(out.Elements, patch(bgID(id), n.bgPos()))
		}
	}
	for _, l := range s.labels {
		id := l.node.entity.ID
		out.Elements = append(out.Elements,
			patch(labelID(id), l.groupPos()),
			patch(dotID(id), l.dotPos()),
			patch(textID(id), l.textPos(angle)),
		)
	}
	for _, k := range s.links {
		out.Elements = append(out.Elements, patch(linkID(k.index), k.pos()))
	}

	var b strings.Builder
	s.writeGrid(&b)
	out.Grid = b.String()
	b.Reset()
	s.writeTimeAxis(&b)
	out.TimeAxis = b.String()
	b.Reset()
	s.writeLaneAxis(&b)
	out.LaneAxis = b.String()
	return out
}
