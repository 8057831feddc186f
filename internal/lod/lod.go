// Package lod decides which entity labels and leader lines are shown at a
// given zoom scale.
package lod

import (
	"fmt"

	"github.com/dharmatimeline/dharmatimeline/internal/config"
)

// Band hides every entity ranked below MinImportance while the zoom scale
// is below BelowZoom.
type Band struct {
	BelowZoom     float64
	MinImportance int
}

// Policy is a monotonic step function from zoom scale to minimum
// importance. Above the last band everything is visible.
type Policy struct {
	bands []Band
}

// DefaultBands are five visibility bands: only rank 10 below 0.7, then
// 8, 7, 6, and everything from 2.2 up.
var DefaultBands = []Band{
	{BelowZoom: 0.7, MinImportance: 10},
	{BelowZoom: 1.1, MinImportance: 8},
	{BelowZoom: 1.6, MinImportance: 7},
	{BelowZoom: 2.2, MinImportance: 6},
}

// Default returns the policy built from DefaultBands.
func Default() Policy {
	p, _ := NewPolicy(DefaultBands)
	return p
}

// NewPolicy validates that zoom thresholds strictly increase and minimum
// importance never increases, so zooming in never hides anything.
func NewPolicy(bands []Band) (Policy, error) {
	for i := 1; i < len(bands); i++ {
		if bands[i].BelowZoom <= bands[i-1].BelowZoom {
			return Policy{}, fmt.Errorf("lod band %d: zoom %g not above %g", i, bands[i].BelowZoom, bands[i-1].BelowZoom)
		}
		if bands[i].MinImportance > bands[i-1].MinImportance {
			return Policy{}, fmt.Errorf("lod band %d: importance %d above %d", i, bands[i].MinImportance, bands[i-1].MinImportance)
		}
	}
	out := make([]Band, len(bands))
	copy(out, bands)
	return Policy{bands: out}, nil
}

// FromConfig builds the policy from configuration bands.
func FromConfig(c config.LOD) (Policy, error) {
	bands := make([]Band, 0, len(c.Bands))
	for _, b := range c.Bands {
		bands = append(bands, Band{BelowZoom: b.BelowZoom, MinImportance: b.MinImportance})
	}
	return NewPolicy(bands)
}

// Threshold returns the minimum importance visible at zoom k; 0 means
// everything is visible.
func (p Policy) Threshold(k float64) int {
	for _, b := range p.bands {
		if k < b.BelowZoom {
			return b.MinImportance
		}
	}
	return 0
}

// Visible reports whether an entity of the given importance is shown at k.
// Overrides for hovered or selected entities are the caller's job.
func (p Policy) Visible(importance int, k float64) bool {
	return importance >= p.Threshold(k)
}

// Bands returns a copy of the policy's bands.
func (p Policy) Bands() []Band {
	out := make([]Band, len(p.bands))
	copy(out, p.bands)
	return out
}
