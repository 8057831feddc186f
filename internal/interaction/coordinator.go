// Package interaction tracks what the chart currently emphasizes: the
// hovered entity, the host's selection and the legend category filter.
//
// The coordinator only ever drives the cheap style channel. Rebinding data
// and recomputing positions belong to the renderer.
package interaction

import (
	"github.com/dharmatimeline/dharmatimeline/internal/dataset"
)

// Mode summarizes the hover and lock state.
type Mode int

const (
	Idle Mode = iota
	Hovering
	Locked
	HoveringLocked
)

func (m Mode) String() string {
	switch m {
	case Hovering:
		return "hovering"
	case Locked:
		return "locked"
	case HoveringLocked:
		return "hovering+locked"
	default:
		return "idle"
	}
}

// Snapshot is an immutable view of the interaction state, handed to the
// style pass.
type Snapshot struct {
	HoveredID  string
	SelectedID string
	// ActiveID is the hovered entity if any, else the selection.
	ActiveID string
	// Filter is the locked category if any, else the legend-hovered one.
	// Zero means no filter.
	Filter      dataset.Category
	LegendHover dataset.Category
	Locked      bool
	Zoom        float64
}

// HasFilter reports whether a category filter is in effect.
func (s Snapshot) HasFilter() bool { return s.Filter.Valid() }

// Matches reports whether c passes the filter. Everything passes when no
// filter is set.
func (s Snapshot) Matches(c dataset.Category) bool {
	return !s.HasFilter() || s.Filter == c
}

// IsActive reports whether id is the emphasized entity.
func (s Snapshot) IsActive(id string) bool {
	return id != "" && s.ActiveID == id
}

func (s Snapshot) Mode() Mode {
	switch {
	case s.HoveredID != "" && s.Locked:
		return HoveringLocked
	case s.Locked:
		return Locked
	case s.HoveredID != "":
		return Hovering
	default:
		return Idle
	}
}

// Styler applies emphasis for a snapshot without touching layout.
type Styler interface {
	Restyle(Snapshot)
}

// StylerFunc adapts a function to Styler.
type StylerFunc func(Snapshot)

func (f StylerFunc) Restyle(s Snapshot) { f(s) }

// SelectFunc is the host callback for entity clicks.
type SelectFunc func(id string)

// Coordinator is the single source of truth for emphasis state. It is not
// safe for concurrent use; callers serialize events per chart.
type Coordinator struct {
	hovered     string
	selected    string
	legendHover dataset.Category
	locked      dataset.Category
	zoom        float64

	styler   Styler
	onSelect SelectFunc
}

// New returns an idle coordinator. styler and onSelect may be nil.
func New(styler Styler, onSelect SelectFunc, zoom float64) *Coordinator {
	return &Coordinator{styler: styler, onSelect: onSelect, zoom: zoom}
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() Snapshot {
	s := Snapshot{
		HoveredID:   c.hovered,
		SelectedID:  c.selected,
		ActiveID:    c.hovered,
		Filter:      c.locked,
		LegendHover: c.legendHover,
		Locked:      c.locked.Valid(),
		Zoom:        c.zoom,
	}
	if s.ActiveID == "" {
		s.ActiveID = c.selected
	}
	if !s.Filter.Valid() {
		s.Filter = c.legendHover
	}
	return s
}

func (c *Coordinator) Mode() Mode { return c.Snapshot().Mode() }

func (c *Coordinator) restyle() Snapshot {
	s := c.Snapshot()
	if c.styler != nil {
		c.styler.Restyle(s)
	}
	return s
}

// PointerEnter marks id as hovered.
func (c *Coordinator) PointerEnter(id string) Snapshot {
	c.hovered = id
	return c.restyle()
}

// PointerLeave clears the hover. The lock, if any, stays.
func (c *Coordinator) PointerLeave() Snapshot {
	c.hovered = ""
	return c.restyle()
}

// ClickEntity selects id and tells the host about it.
func (c *Coordinator) ClickEntity(id string) Snapshot {
	c.selected = id
	s := c.restyle()
	if c.onSelect != nil {
		c.onSelect(id)
	}
	return s
}

// ClickBackground clears the selection but keeps the category lock.
func (c *Coordinator) ClickBackground() Snapshot {
	c.selected = ""
	return c.restyle()
}

// SetSelection applies a selection made by the host, e.g. from a list.
func (c *Coordinator) SetSelection(id string) Snapshot {
	c.selected = id
	return c.restyle()
}

func (c *Coordinator) LegendEnter(cat dataset.Category) Snapshot {
	c.legendHover = cat
	return c.restyle()
}

func (c *Coordinator) LegendLeave() Snapshot {
	c.legendHover = 0
	return c.restyle()
}

// LegendClick locks cat, or unlocks it when it is already locked. Clicking
// a different category moves the lock.
func (c *Coordinator) LegendClick(cat dataset.Category) Snapshot {
	if c.locked == cat {
		c.locked = 0
	} else {
		c.locked = cat
	}
	return c.restyle()
}

// SetZoom records the zoom scale the style pass uses for level of detail.
// The renderer runs its layout pass before calling this.
func (c *Coordinator) SetZoom(k float64) Snapshot {
	c.zoom = k
	return c.restyle()
}
