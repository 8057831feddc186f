package chart

import (
	"github.com/dharmatimeline/dharmatimeline/internal/config"
	"github.com/dharmatimeline/dharmatimeline/internal/dataset"
)

type shape int

const (
	shapeCircle shape = iota // person: outlined circle with an icon
	shapeCard                // text: rounded card with an icon
	shapeSpan                // school: translucent pill along the time axis
	shapeDot                 // event: small outlined circle
)

// glyph is the static look of one category.
type glyph struct {
	shape shape
	color string
	icon  string
}

// glyphTable is the closed per-category dispatch table. Every category has
// an entry; unknown categories never get past dataset validation.
func glyphTable(c config.Colors) map[dataset.Category]glyph {
	return map[dataset.Category]glyph{
		dataset.Person: {shape: shapeCircle, color: c.Person, icon: "👤"},
		dataset.Text:   {shape: shapeCard, color: c.Text, icon: "📜"},
		dataset.School: {shape: shapeSpan, color: c.School},
		dataset.Event:  {shape: shapeDot, color: c.Event},
	}
}

// CategoryColor returns the configured colour of a category, for legends.
func CategoryColor(c config.Colors, cat dataset.Category) string {
	return glyphTable(c)[cat].color
}

func linkColor(c config.Colors, k dataset.RelationKind) string {
	if k == dataset.Influence {
		return c.Influence
	}
	return c.Transmission
}

func linkDash(k dataset.RelationKind) string {
	if k == dataset.Influence {
		return "4,2"
	}
	return "none"
}

// laneShapes are silhouettes drawn when a lane has no icon code.
var laneShapes = map[string]string{
	"mongolia": "M10,40 C20,35 40,30 80,40 C90,45 85,60 70,65 C50,70 30,70 15,60 Z",
}

const defaultLaneShape = "M10,10 L90,10 L90,90 L10,90 Z"

func laneShape(id string) string {
	if p, ok := laneShapes[id]; ok {
		return p
	}
	return defaultLaneShape
}
