// Package server hosts the interactive chart: one session per viewer, the
// detail panel, entity summaries and narration.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dharmatimeline/dharmatimeline/internal/audio"
	"github.com/dharmatimeline/dharmatimeline/internal/chart"
	"github.com/dharmatimeline/dharmatimeline/internal/config"
	"github.com/dharmatimeline/dharmatimeline/internal/dataset"
	"github.com/dharmatimeline/dharmatimeline/internal/lod"
	"github.com/dharmatimeline/dharmatimeline/internal/logging"
	"github.com/dharmatimeline/dharmatimeline/internal/observability"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const maxBody = 1 << 16

// Narrator produces entity summaries and their narration.
type Narrator interface {
	Summarize(ctx context.Context, topic, detail string) string
	Speak(ctx context.Context, text string) (string, bool)
}

type Server struct {
	cfg      config.Config
	data     *dataset.Dataset
	policy   lod.Policy
	narrator Narrator
	store    *Store
	metrics  *observability.Collector
	log      logging.Logger
	mux      *http.ServeMux
}

type Option func(*Server)

func WithLogger(l logging.Logger) Option { return func(s *Server) { s.log = l } }

func WithMetrics(m *observability.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// New wires the routes. narrator may be nil, in which case summaries and
// narration report that nothing is available.
func New(cfg config.Config, d *dataset.Dataset, narrator Narrator, opts ...Option) (*Server, error) {
	policy, err := lod.FromConfig(cfg.LOD)
	if err != nil {
		return nil, fmt.Errorf("level of detail: %w", err)
	}
	s := &Server{
		cfg:      cfg,
		data:     d,
		policy:   policy,
		narrator: narrator,
		log:      logging.Noop(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = NewStore(cfg.Server.MaxSessions, cfg.Server.SessionTTL, s.metrics)
	s.routes()
	return s, nil
}

func (s *Server) Store() *Store { return s.store }

func (s *Server) routes() {
	s.handle("GET /{$}", "page", s.handlePage)
	s.handle("POST /api/sessions", "session_create", s.handleCreate)
	s.handle("GET /api/sessions/{id}", "session_state", s.handleState)
	s.handle("DELETE /api/sessions/{id}", "session_delete", s.handleDelete)
	s.handle("GET /api/sessions/{id}/chart.svg", "chart", s.handleChart)
	s.handle("POST /api/sessions/{id}/resize", "resize", s.handleResize)
	s.handle("POST /api/sessions/{id}/pointer", "pointer", s.handlePointer)
	s.handle("POST /api/sessions/{id}/legend", "legend", s.handleLegend)
	s.handle("POST /api/sessions/{id}/zoom", "zoom", s.handleZoom)
	s.handle("POST /api/sessions/{id}/select", "select", s.handleSelect)
	s.handle("GET /api/sessions/{id}/detail", "detail", s.handleDetail)
	s.handle("POST /api/sessions/{id}/summary", "summary", s.handleSummary)
	s.handle("POST /api/sessions/{id}/speech", "speech", s.handleSpeech)
	s.handle("POST /api/sessions/{id}/speech/stop", "speech_stop", s.handleSpeechStop)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "ok\n")
	})
}

func (s *Server) handle(pattern, route string, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.metrics.Instrument(route, h))
}

// ServeHTTP attaches a request logger and dispatches to the routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, l := logging.WithRequestLogger(r.Context(), s.log)
	s.mux.ServeHTTP(w, r.WithContext(ctx))
	l.Debug(ctx, "request",
		logging.String("method", r.Method),
		logging.String("path", r.URL.Path),
		logging.Duration("elapsed", float64(time.Since(start).Microseconds())/1000))
}

func (s *Server) newSession() *Session {
	return s.store.Create(func(id string) *Session {
		return newSession(id, s.cfg, s.policy, s.data, s.metrics, s.log)
	})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return sess, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, ErrBadEvent):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoSelection):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), s.log).Error(r.Context(), "request failed", logging.Err(err))
	}
	writeError(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	return nil
}

// Page

type legendItem struct {
	Key   string
	Name  string
	Color template.CSS
}

type pageView struct {
	Title     string
	SessionID string
	Chart     template.HTML
	Legend    []legendItem
	Narration bool
}

func (s *Server) legend() []legendItem {
	var items []legendItem
	for _, c := range dataset.Categories() {
		items = append(items, legendItem{
			Key:   strings.ToLower(c.String()),
			Name:  c.String(),
			Color: template.CSS(chart.CategoryColor(s.cfg.Colors, c)),
		})
	}
	return items
}

// inlineSVG drops the XML declaration so the chart can sit inside HTML.
func inlineSVG(doc string) string {
	if strings.HasPrefix(doc, "<?xml") {
		if i := strings.Index(doc, "?>"); i >= 0 {
			return strings.TrimLeft(doc[i+2:], "\n")
		}
	}
	return doc
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess := s.newSession()
	view := pageView{
		Title:     s.cfg.Layout.CornerTitle,
		SessionID: sess.ID,
		Chart:     template.HTML(inlineSVG(sess.SVG())),
		Legend:    s.legend(),
		Narration: s.narrator != nil,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, "page.html", view); err != nil {
		logging.FromContext(r.Context(), s.log).Error(r.Context(), "render page", logging.Err(err))
	}
}

// Sessions

type sessionView struct {
	ID     string  `json:"id"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Update
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess := s.newSession()
	f := sess.Frame()
	logging.FromContext(r.Context(), s.log).Info(r.Context(), "session created", logging.String("session", sess.ID))
	writeJSON(w, http.StatusCreated, sessionView{ID: sess.ID, Width: f.Width, Height: f.Height, Update: sess.Snapshot()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.store.Delete(r.PathValue("id")) {
		s.fail(w, r, ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	io.WriteString(w, sess.SVG())
}

// Chart events

type resizeRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type selectRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	s.event(w, r, &req, func(sess *Session) (Update, error) { return sess.Resize(req.Width, req.Height) })
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var ev PointerEvent
	s.event(w, r, &ev, func(sess *Session) (Update, error) { return sess.Pointer(ev) })
}

func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	var ev LegendEvent
	s.event(w, r, &ev, func(sess *Session) (Update, error) { return sess.Legend(ev) })
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	var ev ZoomEvent
	s.event(w, r, &ev, func(sess *Session) (Update, error) { return sess.Zoom(ev) })
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	s.event(w, r, &req, func(sess *Session) (Update, error) { return sess.Select(req.ID) })
}

func (s *Server) event(w http.ResponseWriter, r *http.Request, body any, apply func(*Session) (Update, error)) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := decode(r, body); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := apply(sess)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Detail panel

type detailView struct {
	Selected    bool
	ID          string
	Name        string
	Era         string
	Lane        string
	Category    string
	Color       template.CSS
	Description string
	Impact      []bool
	Summary     string
	Narration   bool
	Speaking    bool
}

const noDescription = "No detailed description available."

// impactDots marks importance/2 of five dots, rounding up.
func impactDots(importance int) []bool {
	dots := make([]bool, 5)
	for i := range dots {
		dots[i] = float64(i) < float64(importance)/2
	}
	return dots
}

func (s *Server) detail(sess *Session) detailView {
	e, summary, ok := sess.Selected()
	if !ok {
		return detailView{}
	}
	v := detailView{
		Selected:    true,
		ID:          e.ID,
		Name:        e.Name,
		Era:         e.Era(),
		Lane:        s.data.LaneOf(e).Name,
		Category:    e.Category.String(),
		Color:       template.CSS(chart.CategoryColor(s.cfg.Colors, e.Category)),
		Description: e.Description,
		Impact:      impactDots(e.ImportanceOr(5)),
		Summary:     summary,
		Narration:   s.narrator != nil,
		Speaking:    sess.Speaking(),
	}
	if strings.TrimSpace(v.Description) == "" {
		v.Description = noDescription
	}
	return v
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, "detail.html", s.detail(sess)); err != nil {
		logging.FromContext(r.Context(), s.log).Error(r.Context(), "render detail", logging.Err(err))
	}
}

// Summary and narration

type summaryView struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	// Current is false when the selection changed while the summary was
	// being fetched; the text is then not kept.
	Current bool `json:"current"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	e, _, ok := sess.Selected()
	if !ok {
		s.fail(w, r, ErrNoSelection)
		return
	}
	text := "No details available."
	if s.narrator != nil {
		text = s.narrator.Summarize(r.Context(), e.Name, e.Description)
	}
	current := sess.storeSummary(e.ID, text)
	writeJSON(w, http.StatusOK, summaryView{ID: e.ID, Summary: text, Current: current})
}

// handleSpeech toggles narration of the current summary. A playing
// narration is stopped; otherwise the summary is spoken and returned as
// WAV. Anything that leaves nothing to play answers 204.
func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	log := logging.FromContext(r.Context(), s.log)
	if sess.StopSpeech() {
		w.Header().Set("X-Narration", "stopped")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	e, summary, ok := sess.Selected()
	if !ok || summary == "" || s.narrator == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	data, ok := s.narrator.Speak(r.Context(), summary)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	buf, err := audio.DecodeBase64PCM(data)
	if err != nil {
		log.Warn(r.Context(), "narration undecodable", logging.String("entity", e.ID), logging.Err(err))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	src, ok := sess.play(e.ID, buf)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Narration", "playing")
	w.Header().Set("X-Narration-Source", strconv.FormatUint(src.ID, 10))
	w.Header().Set("X-Narration-Duration", strconv.FormatFloat(buf.Duration().Seconds(), 'f', 3, 64))
	if err := buf.WriteWAV(w); err != nil {
		log.Warn(r.Context(), "write narration", logging.Err(err))
	}
}

func (s *Server) handleSpeechStop(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": sess.StopSpeech()})
}
