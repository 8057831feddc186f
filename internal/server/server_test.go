package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dharmatimeline/dharmatimeline/internal/audio"
	"github.com/dharmatimeline/dharmatimeline/internal/chart"
	"github.com/dharmatimeline/dharmatimeline/internal/config"
	"github.com/dharmatimeline/dharmatimeline/internal/dataset"
	"github.com/dharmatimeline/dharmatimeline/internal/layout"
	"github.com/dharmatimeline/dharmatimeline/internal/observability"
)

type fakeNarrator struct {
	summaries  int
	speeches   int
	lastTopic  string
	lastDetail string
	lastSpoken string
	audio      string
	ok         bool
}

func (f *fakeNarrator) Summarize(_ context.Context, topic, detail string) string {
	f.summaries++
	f.lastTopic, f.lastDetail = topic, detail
	return "Summary of " + topic
}

func (f *fakeNarrator) Speak(_ context.Context, text string) (string, bool) {
	f.speeches++
	f.lastSpoken = text
	return f.audio, f.ok
}

// oneSecond is a second of silent 24 kHz mono PCM.
var oneSecond = base64.StdEncoding.EncodeToString(make([]byte, 2*audio.SampleRate))

func newTestServer(t *testing.T) (*Server, *fakeNarrator, *observability.Collector) {
	t.Helper()
	d, err := dataset.Default()
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	m, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	n := &fakeNarrator{audio: oneSecond, ok: true}
	srv, err := New(config.Default(), d, n, WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, n, m
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func createSession(t *testing.T, srv *Server) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var v sessionView
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v.ID
}

func event(t *testing.T, srv *Server, id, path string, body any) Update {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/sessions/"+id+path, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s: %d %s", path, rec.Code, rec.Body)
	}
	var u Update
	if err := json.NewDecoder(rec.Body).Decode(&u); err != nil {
		t.Fatal(err)
	}
	return u
}

func attrs(t *testing.T, u Update, elem string) map[string]string {
	t.Helper()
	if u.Style == nil {
		t.Fatal("update without style")
	}
	for _, p := range u.Style.Elements {
		if p.ID == elem {
			return p.Attrs
		}
	}
	t.Fatalf("no patch for %s", elem)
	return nil
}

func sessionOf(t *testing.T, srv *Server, id string) *Session {
	t.Helper()
	s, err := srv.Store().Get(id)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCreateSessionAndChart(t *testing.T) {
	srv, _, m := newTestServer(t)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodGet, "/api/sessions/"+id+"/chart.svg", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("chart: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("content type %q", ct)
	}
	for _, want := range []string{`id="node-buddha"`, `id="label-ashoka"`, `id="time-axis"`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("chart missing %s", want)
		}
	}

	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Fatalf("active sessions = %v", got)
	}
	if got := testutil.ToFloat64(m.RenderPasses.WithLabelValues(string(chart.PassBind))); got != 1 {
		t.Fatalf("bind passes = %v", got)
	}
}

func TestUnknownSession(t *testing.T) {
	srv, _, _ := newTestServer(t)
	for _, path := range []string{
		"/api/sessions/not-a-uuid/detail",
		"/api/sessions/2b0d1b8e-8f6e-4a53-a3c1-5a9d3c1f0e11/detail",
	} {
		rec := do(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), ErrSessionNotFound.Error()) {
			t.Fatalf("%s: body %s", path, rec.Body)
		}
	}
}

func TestClickOverridesLevelOfDetail(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createSession(t, srv)

	// Importance 6 is below the band at the initial zoom.
	u := event(t, srv, id, "/pointer", PointerEvent{Type: "leave"})
	if got := attrs(t, u, "label-second_council")["opacity"]; got != "0" {
		t.Fatalf("resting label opacity = %s", got)
	}

	u = event(t, srv, id, "/pointer", PointerEvent{Type: "click", ID: "second_council"})
	if u.State.Selected != "second_council" || u.State.Active != "second_council" || u.State.Detail != "second_council" {
		t.Fatalf("state = %+v", u.State)
	}
	if got := attrs(t, u, "label-second_council")["opacity"]; got != "1" {
		t.Fatalf("active label opacity = %s", got)
	}
	if len(u.Style.Raise) == 0 || u.Style.Raise[0] != "node-second_council" {
		t.Fatalf("raise = %v", u.Style.Raise)
	}
}

func TestHoverByPoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createSession(t, srv)
	sess := sessionOf(t, srv, id)

	var target string
	var p layout.Point
	sess.mu.Lock()
	for _, e := range sess.data.SortedEntities() {
		pos, ok := sess.scene.Position(e.ID)
		if hit, _ := sess.scene.HitTest(pos); ok && hit == e.ID {
			target, p = e.ID, pos
			break
		}
	}
	sess.mu.Unlock()
	if target == "" {
		t.Fatal("no entity can be hit at its own position")
	}

	u := event(t, srv, id, "/pointer", PointerEvent{Type: "move", Point: &Point{X: p.X, Y: p.Y}})
	if u.State.Hovered != target || u.State.Mode != "hovering" {
		t.Fatalf("state = %+v", u.State)
	}
	before := sess.Stats().Restyles
	event(t, srv, id, "/pointer", PointerEvent{Type: "move", Point: &Point{X: p.X, Y: p.Y}})
	if after := sess.Stats().Restyles; after != before {
		t.Fatalf("same-entity move restyled: %d -> %d", before, after)
	}

	// The top-left corner is axis, never content.
	u = event(t, srv, id, "/pointer", PointerEvent{Type: "move", Point: &Point{X: 1, Y: 1}})
	if u.State.Hovered != "" || u.State.Mode != "idle" {
		t.Fatalf("state = %+v", u.State)
	}
}

func TestBackgroundKeepsLockAndDetail(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createSession(t, srv)

	event(t, srv, id, "/pointer", PointerEvent{Type: "click", ID: "ashoka"})
	u := event(t, srv, id, "/legend", LegendEvent{Type: "click", Category: "school"})
	if !u.State.Locked || u.State.Filter != "School" {
		t.Fatalf("state after lock = %+v", u.State)
	}
	if got := attrs(t, u, "node-buddha")["opacity"]; got != "0.1" {
		t.Fatalf("filtered node opacity = %s", got)
	}

	u = event(t, srv, id, "/pointer", PointerEvent{Type: "background"})
	if !u.State.Locked || u.State.Selected != "" {
		t.Fatalf("state after background = %+v", u.State)
	}
	if u.State.Detail != "ashoka" {
		t.Fatalf("detail = %q, background click must not change the panel", u.State.Detail)
	}

	u = event(t, srv, id, "/legend", LegendEvent{Type: "click", Category: "School"})
	if u.State.Locked || u.State.Filter != "" {
		t.Fatalf("state after unlock = %+v", u.State)
	}
}

func TestBadEvents(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createSession(t, srv)
	cases := []struct {
		path string
		body any
		code int
	}{
		{"/pointer", PointerEvent{Type: "wiggle"}, http.StatusBadRequest},
		{"/pointer", PointerEvent{Type: "click", ID: "atlantis"}, http.StatusNotFound},
		{"/legend", LegendEvent{Type: "enter", Category: "dragon"}, http.StatusBadRequest},
		{"/zoom", ZoomEvent{Type: "wheel"}, http.StatusBadRequest},
		{"/resize", resizeRequest{Width: 10, Height: 10}, http.StatusBadRequest},
		{"/select", map[string]any{"id": "buddha", "extra": true}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := do(t, srv, http.MethodPost, "/api/sessions/"+id+tc.path, tc.body)
		if rec.Code != tc.code {
			t.Errorf("%s %+v: status %d, want %d", tc.path, tc.body, rec.Code, tc.code)
		}
	}
}

func TestZoomRunsLayoutNotBind(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createSession(t, srv)
	sess := sessionOf(t, srv, id)

	u := event(t, srv, id, "/zoom", ZoomEvent{Type: "wheel", Factor: 2, Point: Point{X: 700, Y: 450}})
	if u.Position == nil || u.Style == nil {
		t.Fatal("zoom must return position and style")
	}
	if u.State.Zoom < 1.69 || u.State.Zoom > 1.71 {
		t.Fatalf("zoom = %v", u.State.Zoom)
	}
	if u.Position.Zoom != u.State.Zoom {
		t.Fatalf("position zoom %v, state zoom %v", u.Position.Zoom, u.State.Zoom)
	}
	// At 1.7 importance 6 shows without emphasis.
	if got := attrs(t, u, "label-second_council")["opacity"]; got != "1" {
		t.Fatalf("label opacity at 1.7 = %s", got)
	}

	event(t, srv, id, "/zoom", ZoomEvent{Type: "pan", DX: -40})
	stats := sess.Stats()
	if stats.Binds != 1 || stats.Layouts != 3 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestResizeRebinds(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createSession(t, srv)
	event(t, srv, id, "/pointer", PointerEvent{Type: "click", ID: "ashoka"})

	u := event(t, srv, id, "/resize", resizeRequest{Width: 1000, Height: 700})
	if u.Position == nil {
		t.Fatal("resize must return positions")
	}
	if u.State.Selected != "ashoka" {
		t.Fatalf("selection lost on resize: %+v", u.State)
	}
	sess := sessionOf(t, srv, id)
	if f := sess.Frame(); f.Width != 1000 || f.Height != 700 {
		t.Fatalf("frame = %vx%v", f.Width, f.Height)
	}
	if got := sess.Stats().Binds; got != 2 {
		t.Fatalf("binds = %d", got)
	}
}

func TestDetailFragment(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodGet, "/api/sessions/"+id+"/detail", nil)
	if !strings.Contains(rec.Body.String(), "Select an item to view details") {
		t.Fatalf("empty detail = %s", rec.Body)
	}

	event(t, srv, id, "/select", selectRequest{ID: "second_council"})
	rec = do(t, srv, http.MethodGet, "/api/sessions/"+id+"/detail", nil)
	body := rec.Body.String()
	for _, want := range []string{"Second Buddhist Council", "India", "Event", `data-action="summary"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("detail missing %q:\n%s", want, body)
		}
	}
	if got := strings.Count(body, `class="dot on"`); got != 3 {
		t.Fatalf("impact dots = %d, want 3", got)
	}
}

func TestImpactDots(t *testing.T) {
	for imp, want := range map[int]int{10: 5, 9: 5, 7: 4, 6: 3, 1: 1, 0: 0} {
		got := 0
		for _, on := range impactDots(imp) {
			if on {
				got++
			}
		}
		if got != want {
			t.Errorf("impactDots(%d) lights %d, want %d", imp, got, want)
		}
	}
}

func TestSummaryRequiresSelection(t *testing.T) {
	srv, n, _ := newTestServer(t)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/sessions/"+id+"/summary", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d", rec.Code)
	}
	if n.summaries != 0 {
		t.Fatal("summary requested without a selection")
	}

	event(t, srv, id, "/pointer", PointerEvent{Type: "click", ID: "ashoka"})
	rec = do(t, srv, http.MethodPost, "/api/sessions/"+id+"/summary", nil)
	var v summaryView
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v.Summary != "Summary of Emperor Ashoka" || !v.Current {
		t.Fatalf("summary = %+v", v)
	}
	if !strings.HasPrefix(n.lastDetail, "Mauryan emperor") {
		t.Fatalf("detail passed = %q", n.lastDetail)
	}
	rec = do(t, srv, http.MethodGet, "/api/sessions/"+id+"/detail", nil)
	if !strings.Contains(rec.Body.String(), "Summary of Emperor Ashoka") {
		t.Fatalf("detail without summary:\n%s", rec.Body)
	}
}

func TestSpeechToggle(t *testing.T) {
	srv, n, _ := newTestServer(t)
	id := createSession(t, srv)
	sess := sessionOf(t, srv, id)
	speech := "/api/sessions/" + id + "/speech"

	event(t, srv, id, "/pointer", PointerEvent{Type: "click", ID: "buddha"})
	rec := do(t, srv, http.MethodPost, speech, nil)
	if rec.Code != http.StatusNoContent || n.speeches != 0 {
		t.Fatalf("speech without summary: %d, %d calls", rec.Code, n.speeches)
	}

	do(t, srv, http.MethodPost, "/api/sessions/"+id+"/summary", nil)
	rec = do(t, srv, http.MethodPost, speech, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("speech: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("content type %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("RIFF")) {
		t.Fatal("body is not a WAV file")
	}
	if n.lastSpoken != "Summary of Siddhartha Gautama" {
		t.Fatalf("spoke %q", n.lastSpoken)
	}
	if !sess.Speaking() {
		t.Fatal("narration not playing")
	}

	rec = do(t, srv, http.MethodPost, speech, nil)
	if rec.Code != http.StatusNoContent || rec.Header().Get("X-Narration") != "stopped" {
		t.Fatalf("toggle off: %d %q", rec.Code, rec.Header().Get("X-Narration"))
	}
	if sess.Speaking() || n.speeches != 1 {
		t.Fatalf("speaking=%v calls=%d", sess.Speaking(), n.speeches)
	}
}

func TestSpeechWithoutAudio(t *testing.T) {
	srv, n, _ := newTestServer(t)
	id := createSession(t, srv)
	event(t, srv, id, "/pointer", PointerEvent{Type: "click", ID: "buddha"})
	do(t, srv, http.MethodPost, "/api/sessions/"+id+"/summary", nil)

	for _, tc := range []struct {
		audio string
		ok    bool
	}{{"", false}, {"%%%", true}, {"AAE=AA", true}} {
		n.audio, n.ok = tc.audio, tc.ok
		rec := do(t, srv, http.MethodPost, "/api/sessions/"+id+"/speech", nil)
		if rec.Code != http.StatusNoContent {
			t.Errorf("audio %q: status %d", tc.audio, rec.Code)
		}
	}
	if sessionOf(t, srv, id).Speaking() {
		t.Fatal("undecodable audio started playback")
	}
}

func TestNewSelectionStopsNarration(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := createSession(t, srv)
	sess := sessionOf(t, srv, id)

	event(t, srv, id, "/pointer", PointerEvent{Type: "click", ID: "buddha"})
	do(t, srv, http.MethodPost, "/api/sessions/"+id+"/summary", nil)
	do(t, srv, http.MethodPost, "/api/sessions/"+id+"/speech", nil)
	if !sess.Speaking() {
		t.Fatal("narration not playing")
	}

	// Clicking the same entity keeps both.
	event(t, srv, id, "/pointer", PointerEvent{Type: "click", ID: "buddha"})
	if _, summary, _ := sess.Selected(); summary == "" || !sess.Speaking() {
		t.Fatal("reselecting the same entity reset the panel")
	}

	event(t, srv, id, "/select", selectRequest{ID: "ashoka"})
	if sess.Speaking() {
		t.Fatal("narration survived a new selection")
	}
	if _, summary, _ := sess.Selected(); summary != "" {
		t.Fatalf("summary survived a new selection: %q", summary)
	}

	rec := do(t, srv, http.MethodPost, "/api/sessions/"+id+"/speech/stop", nil)
	if !strings.Contains(rec.Body.String(), `"stopped":false`) {
		t.Fatalf("stop = %s", rec.Body)
	}
}

func TestPageAndProbes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/", nil)
	body := rec.Body.String()
	if rec.Code != http.StatusOK || strings.Contains(body, "<?xml") || !strings.Contains(body, `id="node-layer"`) {
		t.Fatalf("page: %d", rec.Code)
	}
	for _, name := range []string{"Person", "Text", "School", "Event"} {
		if !strings.Contains(body, `data-category="`+strings.ToLower(name)+`"`) {
			t.Fatalf("legend missing %s", name)
		}
	}
	if srv.Store().Len() != 1 {
		t.Fatalf("sessions = %d", srv.Store().Len())
	}

	if rec := do(t, srv, http.MethodGet, "/healthz", nil); rec.Body.String() != "ok\n" {
		t.Fatalf("healthz = %q", rec.Body)
	}
	rec = do(t, srv, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rec.Body.String(), "dharma_http_requests_total") {
		t.Fatal("metrics missing request counter")
	}
}

func TestDeleteSession(t *testing.T) {
	srv, _, m := newTestServer(t)
	id := createSession(t, srv)

	if rec := do(t, srv, http.MethodDelete, "/api/sessions/"+id, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/api/sessions/"+id, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rec.Code)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Fatalf("active sessions = %v", got)
	}
}

func stubSession(id string) *Session {
	return &Session{ID: id, player: audio.NewPlayer(nil)}
}

func TestStoreEvictsLeastRecentlyUsed(t *testing.T) {
	m, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	st := NewStore(2, time.Hour, m)
	a := st.Create(stubSession)
	b := st.Create(stubSession)
	if _, err := st.Get(a.ID); err != nil {
		t.Fatal(err)
	}
	st.Create(stubSession)

	if _, err := st.Get(b.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("b: err = %v", err)
	}
	if _, err := st.Get(a.ID); err != nil {
		t.Fatalf("a: %v", err)
	}
	if st.Len() != 2 {
		t.Fatalf("len = %d", st.Len())
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 2 {
		t.Fatalf("active sessions = %v", got)
	}
}

func TestStoreExpiresIdleSessions(t *testing.T) {
	st := NewStore(4, 20*time.Millisecond, nil)
	s := st.Create(stubSession)
	s.player.Play(audio.Buffer{Samples: make([]float32, audio.SampleRate), SampleRate: audio.SampleRate, Channels: 1})
	time.Sleep(100 * time.Millisecond)
	if _, err := st.Get(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v", err)
	}
}
