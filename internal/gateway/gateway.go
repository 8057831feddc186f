// Package gateway fronts the remote generative model used for entity
// summaries and narration. Calls are never retried and never fail hard:
// summaries degrade to fixed messages and speech to "no audio".
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dharmatimeline/dharmatimeline/internal/config"
	"github.com/dharmatimeline/dharmatimeline/internal/logging"
	"github.com/dharmatimeline/dharmatimeline/internal/observability"
)

const (
	MissingKeyMessage = "API Key is missing. Please provide an API Key to use Gemini features."
	FailureMessage    = "Failed to fetch details from Gemini. Please try again later."
	EmptyMessage      = "No details available."

	// DefaultContext stands in for entities without a description.
	DefaultContext = "A key figure or event in Buddhism."
)

const summaryPrompt = `Provide a concise but insightful historical summary (approx 150 words) about: "%s".
Context: This is for a visualization of the history of Buddhism.
Specific context for this item: %s.
Focus on its significance in the spread or development of Buddhist thought/history.
Return plain text.`

// Outcomes recorded per call.
const (
	outcomeOK         = "ok"
	outcomeEmpty      = "empty"
	outcomeError      = "error"
	outcomeMissingKey = "missing_key"
)

// Client calls the generateContent endpoint. It is safe for concurrent use.
type Client struct {
	cfg     config.Gateway
	http    *http.Client
	log     logging.Logger
	metrics *observability.Collector
	tracer  trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithLogger(l logging.Logger) Option    { return func(c *Client) { c.log = l } }

func WithMetrics(m *observability.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a client for cfg. Without an API key every call returns its
// fallback immediately.
func New(cfg config.Gateway, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 60 * time.Second},
		log:    logging.Noop(),
		tracer: otel.Tracer("github.com/dharmatimeline/dharmatimeline/internal/gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasKey reports whether calls will be attempted.
func (c *Client) HasKey() bool { return c.cfg.APIKey != "" }

// Summarize returns a short history of topic. detail describes the entity;
// an empty detail falls back to DefaultContext.
func (c *Client) Summarize(ctx context.Context, topic, detail string) string {
	if strings.TrimSpace(detail) == "" {
		detail = DefaultContext
	}
	if !c.HasKey() {
		c.metrics.ObserveGatewayCall("summary", outcomeMissingKey, 0)
		return MissingKeyMessage
	}

	ctx, span := c.tracer.Start(ctx, "gateway.Summarize",
		trace.WithAttributes(attribute.String("gateway.model", c.cfg.SummaryModel), attribute.String("gateway.topic", topic)))
	defer span.End()

	req := generateRequest{Contents: []content{{Parts: []part{{Text: fmt.Sprintf(summaryPrompt, topic, detail)}}}}}
	start := time.Now()
	resp, err := c.generate(ctx, c.cfg.SummaryModel, req)
	elapsed := time.Since(start)
	if err != nil {
		c.fail(ctx, span, "summary", err, elapsed)
		return FailureMessage
	}

	text := resp.text()
	if text == "" {
		c.metrics.ObserveGatewayCall("summary", outcomeEmpty, elapsed)
		span.SetAttributes(attribute.Bool("gateway.empty", true))
		return EmptyMessage
	}
	c.metrics.ObserveGatewayCall("summary", outcomeOK, elapsed)
	c.log.Debug(ctx, "summary generated",
		logging.String("topic", topic),
		logging.Int("chars", len(text)),
		logging.Duration("elapsed", float64(elapsed.Milliseconds())))
	return text
}

// Speak returns base64 PCM narration of text. ok is false when the key is
// missing, the call fails or the response has no audio.
func (c *Client) Speak(ctx context.Context, text string) (audio string, ok bool) {
	if !c.HasKey() {
		c.metrics.ObserveGatewayCall("speech", outcomeMissingKey, 0)
		return "", false
	}

	ctx, span := c.tracer.Start(ctx, "gateway.Speak",
		trace.WithAttributes(attribute.String("gateway.model", c.cfg.SpeechModel), attribute.String("gateway.voice", c.cfg.Voice)))
	defer span.End()

	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: text}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: c.cfg.Voice}},
			},
		},
	}
	start := time.Now()
	resp, err := c.generate(ctx, c.cfg.SpeechModel, req)
	elapsed := time.Since(start)
	if err != nil {
		c.fail(ctx, span, "speech", err, elapsed)
		return "", false
	}
	data := resp.inlineData()
	if data == "" {
		c.metrics.ObserveGatewayCall("speech", outcomeEmpty, elapsed)
		span.SetAttributes(attribute.Bool("gateway.empty", true))
		return "", false
	}
	c.metrics.ObserveGatewayCall("speech", outcomeOK, elapsed)
	return data, true
}

func (c *Client) fail(ctx context.Context, span trace.Span, op string, err error, elapsed time.Duration) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.metrics.ObserveGatewayCall(op, outcomeError, elapsed)
	c.log.Error(ctx, "gateway call failed", logging.String("operation", op), logging.Err(err))
}

func (c *Client) generate(ctx context.Context, model string, body generateRequest) (*generateResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", model, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%s: status %d: %s", model, res.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("%s: status %d", model, res.StatusCode)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
