package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dharmatimeline/dharmatimeline/internal/audio"
	"github.com/dharmatimeline/dharmatimeline/internal/chart"
	"github.com/dharmatimeline/dharmatimeline/internal/config"
	"github.com/dharmatimeline/dharmatimeline/internal/dataset"
	"github.com/dharmatimeline/dharmatimeline/internal/interaction"
	"github.com/dharmatimeline/dharmatimeline/internal/layout"
	"github.com/dharmatimeline/dharmatimeline/internal/lod"
	"github.com/dharmatimeline/dharmatimeline/internal/logging"
	"github.com/dharmatimeline/dharmatimeline/internal/observability"
)

var (
	ErrUnknownEntity = errors.New("unknown entity")
	ErrBadEvent      = errors.New("unsupported event")
	ErrNoSelection   = errors.New("nothing selected")
)

// Session is one viewer's chart together with its interaction, summary
// and narration state. All methods serialize on the session lock.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex
	data     *dataset.Dataset
	scene    *chart.Scene
	coord    *interaction.Coordinator
	player   *audio.Player
	selected string
	summary  string
	log      logging.Logger
}

func newSession(id string, cfg config.Config, policy lod.Policy, d *dataset.Dataset,
	metrics *observability.Collector, log logging.Logger) *Session {
	s := &Session{
		ID:      id,
		Created: time.Now(),
		data:    d,
		log:     log.With(logging.String("session", id)),
	}
	s.scene = chart.New(cfg, policy, chart.WithPassObserver(func(p chart.Pass) {
		metrics.ObservePass(string(p))
	}))
	s.scene.Bind(d, float64(cfg.Layout.Width), float64(cfg.Layout.Height))
	s.scene.Layout(s.scene.Transform())
	s.coord = interaction.New(s.scene, s.hostSelect, s.scene.Transform().K)
	s.coord.SetZoom(s.scene.Transform().K)
	s.player = audio.NewPlayer(func(src *audio.Source) {
		s.log.Debug(context.Background(), "narration finished", logging.Any("source", src.ID))
	})
	return s
}

// State is the interaction state reported to the page.
type State struct {
	Mode     string  `json:"mode"`
	Hovered  string  `json:"hovered,omitempty"`
	Selected string  `json:"selected,omitempty"`
	Active   string  `json:"active,omitempty"`
	Filter   string  `json:"filter,omitempty"`
	Locked   bool    `json:"locked"`
	Zoom     float64 `json:"zoom"`
	// Detail is the entity shown in the detail panel. It follows host
	// selections, which a background click does not make.
	Detail string `json:"detail,omitempty"`
}

// Update is the answer to every chart event.
type Update struct {
	State    State                 `json:"state"`
	Style    *chart.StyleUpdate    `json:"style,omitempty"`
	Position *chart.PositionUpdate `json:"position,omitempty"`
}

func (s *Session) state(snap interaction.Snapshot) State {
	st := State{
		Mode:     snap.Mode().String(),
		Hovered:  snap.HoveredID,
		Selected: snap.SelectedID,
		Active:   snap.ActiveID,
		Locked:   snap.Locked,
		Zoom:     snap.Zoom,
		Detail:   s.selected,
	}
	if snap.HasFilter() {
		st.Filter = snap.Filter.String()
	}
	return st
}

func (s *Session) styled(snap interaction.Snapshot) Update {
	style := s.scene.StylePatch()
	return Update{State: s.state(snap), Style: &style}
}

func (s *Session) positioned(snap interaction.Snapshot) Update {
	u := s.styled(snap)
	pos := s.scene.PositionPatch()
	u.Position = &pos
	return u
}

// hostSelect runs under the session lock, called back by the coordinator.
func (s *Session) hostSelect(id string) {
	if id == s.selected {
		return
	}
	s.player.Stop()
	s.summary = ""
	s.selected = id
}

func (s *Session) close() {
	s.player.Stop()
}

// Point is a position in chart pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointerEvent is a pointer interaction, addressed either by entity id or
// by a point that is hit tested against the chart.
type PointerEvent struct {
	Type  string `json:"type"` // enter, leave, move, click, background
	ID    string `json:"id,omitempty"`
	Point *Point `json:"point,omitempty"`
}

func (s *Session) resolve(ev PointerEvent) (string, error) {
	if ev.ID != "" {
		if _, ok := s.data.Entity(ev.ID); !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownEntity, ev.ID)
		}
		return ev.ID, nil
	}
	if ev.Point != nil {
		id, _ := s.scene.HitTest(layout.Point{X: ev.Point.X, Y: ev.Point.Y})
		return id, nil
	}
	return "", nil
}

// Pointer applies a pointer event. Moves only restyle when the hovered
// entity changes.
func (s *Session) Pointer(ev PointerEvent) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.resolve(ev)
	if err != nil {
		return Update{}, err
	}
	var snap interaction.Snapshot
	switch ev.Type {
	case "enter", "move":
		hovered := s.coord.Snapshot().HoveredID
		switch {
		case id == hovered:
			snap = s.coord.Snapshot()
		case id == "":
			snap = s.coord.PointerLeave()
		default:
			snap = s.coord.PointerEnter(id)
		}
	case "leave":
		snap = s.coord.PointerLeave()
	case "click":
		if id == "" {
			snap = s.coord.ClickBackground()
		} else {
			snap = s.coord.ClickEntity(id)
		}
	case "background":
		snap = s.coord.ClickBackground()
	default:
		return Update{}, fmt.Errorf("%w: pointer %q", ErrBadEvent, ev.Type)
	}
	return s.styled(snap), nil
}

// LegendEvent is a legend interaction.
type LegendEvent struct {
	Type     string `json:"type"` // enter, leave, click
	Category string `json:"category,omitempty"`
}

func (s *Session) Legend(ev LegendEvent) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Type == "leave" {
		return s.styled(s.coord.LegendLeave()), nil
	}
	cat, err := dataset.ParseCategory(ev.Category)
	if err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	switch ev.Type {
	case "enter":
		return s.styled(s.coord.LegendEnter(cat)), nil
	case "click":
		return s.styled(s.coord.LegendClick(cat)), nil
	default:
		return Update{}, fmt.Errorf("%w: legend %q", ErrBadEvent, ev.Type)
	}
}

// ZoomEvent changes the view. wheel scales by Factor around Point, pan
// moves by DX/DY pixels and set replaces the transform.
type ZoomEvent struct {
	Type   string  `json:"type"` // wheel, pan, set
	Factor float64 `json:"factor,omitempty"`
	Point  Point   `json:"point"`
	DX     float64 `json:"dx,omitempty"`
	DY     float64 `json:"dy,omitempty"`
	K      float64 `json:"k,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
}

// Zoom runs the layout pass for ev and then hands the new scale to the
// coordinator, which restyles for level of detail.
func (s *Session) Zoom(ev ZoomEvent) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t layout.Transform
	switch ev.Type {
	case "wheel":
		if ev.Factor <= 0 {
			return Update{}, fmt.Errorf("%w: zoom factor %v", ErrBadEvent, ev.Factor)
		}
		t = s.scene.ZoomBy(ev.Factor, layout.Point{X: ev.Point.X, Y: ev.Point.Y})
	case "pan":
		t = s.scene.PanBy(ev.DX, ev.DY)
	case "set":
		if ev.K <= 0 {
			return Update{}, fmt.Errorf("%w: zoom scale %v", ErrBadEvent, ev.K)
		}
		t = s.scene.SetTransform(layout.Transform{K: ev.K, X: ev.X, Y: ev.Y})
	default:
		return Update{}, fmt.Errorf("%w: zoom %q", ErrBadEvent, ev.Type)
	}
	return s.positioned(s.coord.SetZoom(t.K)), nil
}

// Resize rebinds the chart for a new viewport. This is the only event that
// takes the expensive channel.
func (s *Session) Resize(width, height float64) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.scene.Frame()
	if width <= f.Margin.Left+f.Margin.Right || height <= f.Margin.Top+f.Margin.Bottom {
		return Update{}, fmt.Errorf("%w: viewport %vx%v leaves no room inside margins", ErrBadEvent, width, height)
	}
	s.scene.Bind(s.data, width, height)
	s.scene.Layout(s.scene.Transform())
	return s.positioned(s.coord.SetZoom(s.scene.Transform().K)), nil
}

// Select applies a selection made outside the chart, such as closing the
// detail panel with an empty id.
func (s *Session) Select(id string) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if _, ok := s.data.Entity(id); !ok {
			return Update{}, fmt.Errorf("%w: %q", ErrUnknownEntity, id)
		}
	}
	s.hostSelect(id)
	return s.styled(s.coord.SetSelection(id)), nil
}

// Snapshot returns the current state and full style.
func (s *Session) Snapshot() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.styled(s.coord.Snapshot())
}

func (s *Session) Frame() layout.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene.Frame()
}

func (s *Session) SVG() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene.SVG()
}

// Stats reports how often each chart channel ran.
func (s *Session) Stats() chart.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene.Stats()
}

// Selected returns the entity of the detail panel and its summary.
func (s *Session) Selected() (dataset.Entity, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return dataset.Entity{}, "", false
	}
	e, ok := s.data.Entity(s.selected)
	return e, s.summary, ok
}

// storeSummary keeps text if id is still selected.
func (s *Session) storeSummary(id, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected != id {
		return false
	}
	s.summary = text
	return true
}

// StopSpeech stops narration and reports whether any was playing.
func (s *Session) StopSpeech() bool { return s.player.Stop() }

func (s *Session) Speaking() bool { return s.player.Playing() }

// play starts buf if id is still selected, replacing any narration.
func (s *Session) play(id string, buf audio.Buffer) (*audio.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected != id {
		return nil, false
	}
	return s.player.Play(buf), true
}
