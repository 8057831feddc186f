package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dharmatimeline/dharmatimeline/internal/config"
	"github.com/dharmatimeline/dharmatimeline/internal/observability"
)

type fakeModel struct {
	calls    atomic.Int32
	status   int
	body     string
	lastPath string
	lastKey  string
	lastReq  generateRequest
}

func (f *fakeModel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	f.lastPath = r.URL.Path
	f.lastKey = r.Header.Get("x-goog-api-key")
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &f.lastReq)
	if f.status != 0 {
		w.WriteHeader(f.status)
	}
	io.WriteString(w, f.body)
}

func newClient(t *testing.T, f *fakeModel, key string) (*Client, *observability.Collector) {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	cfg := config.Default().Gateway
	cfg.BaseURL = srv.URL
	cfg.APIKey = key
	m, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	return New(cfg, WithHTTPClient(srv.Client()), WithMetrics(m)), m
}

func TestMissingKeyMakesNoCalls(t *testing.T) {
	f := &fakeModel{body: `{}`}
	c, m := newClient(t, f, "")

	if got := c.Summarize(context.Background(), "Ashoka", ""); got != MissingKeyMessage {
		t.Fatalf("Summarize = %q", got)
	}
	if audio, ok := c.Speak(context.Background(), "hello"); ok || audio != "" {
		t.Fatalf("Speak = %q, %v", audio, ok)
	}
	if n := f.calls.Load(); n != 0 {
		t.Fatalf("outbound calls = %d, want 0", n)
	}
	if got := testutil.ToFloat64(m.GatewayCalls.WithLabelValues("summary", "missing_key")); got != 1 {
		t.Fatalf("missing_key counter = %v", got)
	}
}

func TestSummarize(t *testing.T) {
	f := &fakeModel{body: `{"candidates":[{"content":{"parts":[{"text":"Ashoka spread "},{"text":"the Dharma."}]}}]}`}
	c, m := newClient(t, f, "secret")

	got := c.Summarize(context.Background(), "Ashoka", "")
	if got != "Ashoka spread the Dharma." {
		t.Fatalf("Summarize = %q", got)
	}
	if f.lastPath != "/models/gemini-2.5-flash:generateContent" {
		t.Fatalf("path = %q", f.lastPath)
	}
	if f.lastKey != "secret" {
		t.Fatalf("api key header = %q", f.lastKey)
	}
	prompt := f.lastReq.Contents[0].Parts[0].Text
	for _, want := range []string{`about: "Ashoka"`, DefaultContext, "history of Buddhism"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if f.lastReq.GenerationConfig != nil {
		t.Fatal("summary request carries a generation config")
	}
	if got := testutil.ToFloat64(m.GatewayCalls.WithLabelValues("summary", "ok")); got != 1 {
		t.Fatalf("ok counter = %v", got)
	}
}

func TestSummarizeFallbacks(t *testing.T) {
	cases := []struct {
		name string
		f    *fakeModel
		want string
	}{
		{"server error", &fakeModel{status: 500, body: `{"error":{"code":500,"message":"boom"}}`}, FailureMessage},
		{"bad json", &fakeModel{body: `not json`}, FailureMessage},
		{"no candidates", &fakeModel{body: `{"candidates":[]}`}, EmptyMessage},
		{"empty text", &fakeModel{body: `{"candidates":[{"content":{"parts":[{"text":""}]}}]}`}, EmptyMessage},
	}
	for _, tc := range cases {
		c, _ := newClient(t, tc.f, "secret")
		if got := c.Summarize(context.Background(), "Nalanda", "A monastic university."); got != tc.want {
			t.Errorf("%s: Summarize = %q, want %q", tc.name, got, tc.want)
		}
		if n := tc.f.calls.Load(); n != 1 {
			t.Errorf("%s: calls = %d, want exactly 1 (no retries)", tc.name, n)
		}
	}
}

func TestSpeak(t *testing.T) {
	f := &fakeModel{body: `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16;rate=24000","data":"AAAAQA=="}}]}}]}`}
	c, _ := newClient(t, f, "secret")

	audio, ok := c.Speak(context.Background(), "Namo Buddhaya")
	if !ok || audio != "AAAAQA==" {
		t.Fatalf("Speak = %q, %v", audio, ok)
	}
	if f.lastPath != "/models/gemini-2.5-flash-preview-tts:generateContent" {
		t.Fatalf("path = %q", f.lastPath)
	}
	gc := f.lastReq.GenerationConfig
	if gc == nil || len(gc.ResponseModalities) != 1 || gc.ResponseModalities[0] != "AUDIO" {
		t.Fatalf("generation config = %+v", gc)
	}
	if v := gc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; v != "Kore" {
		t.Fatalf("voice = %q", v)
	}
}

func TestSpeakFailures(t *testing.T) {
	for name, f := range map[string]*fakeModel{
		"http error": {status: 429, body: `{"error":{"message":"quota"}}`},
		"text only":  {body: `{"candidates":[{"content":{"parts":[{"text":"no audio"}]}}]}`},
	} {
		c, _ := newClient(t, f, "secret")
		if audio, ok := c.Speak(context.Background(), "x"); ok || audio != "" {
			t.Errorf("%s: Speak = %q, %v", name, audio, ok)
		}
	}
}
