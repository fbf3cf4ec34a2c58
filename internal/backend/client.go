package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// RequestIDHeader tags every request so it can be matched in backend logs.
const RequestIDHeader = "X-Request-ID"

// Client talks to the support chat API. One method per endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
	timeout    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets a per-request timeout. Zero means none. It is applied to a
// copy of the http.Client, so a shared client passed to WithHTTPClient is left alone.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger. The client adds component=backend.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer wraps every request in a client span from t.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithMeter records request durations on m.
func WithMeter(m metric.Meter) Option {
	return func(c *Client) {
		h, err := m.Float64Histogram(
			"http.client.request.duration",
			metric.WithDescription("HTTP request duration in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err == nil {
			c.duration = h
		}
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     slog.Default(),
		tracer:     tracenoop.NewTracerProvider().Tracer("backend"),
	}
	WithMeter(metricnoop.NewMeterProvider().Meter("backend"))(c)
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	c.logger = c.logger.With("component", "backend")
	return c
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	op     string
	method string
	path   string
	token  string
	body   any
}

// roundTrip sends req and returns the status and raw body. Errors are transport level only.
func (c *Client) roundTrip(ctx context.Context, r request) (int, []byte, error) {
	ctx, span := c.tracer.Start(ctx, r.op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	requestID := uuid.NewString()
	span.SetAttributes(
		attribute.String("http.request.method", r.method),
		attribute.String("url.path", r.path),
		attribute.String("request.id", requestID),
	)

	var reader io.Reader
	if r.body != nil {
		jsonData, err := json.Marshal(r.body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		c.record(ctx, r.op, 0, start)
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		c.record(ctx, r.op, resp.StatusCode, start)
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, resp.Status)
	}
	c.record(ctx, r.op, resp.StatusCode, start)

	c.logger.Debug("api call",
		"op", r.op,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp.StatusCode, body, nil
}

func (c *Client) record(ctx context.Context, op string, status int, start time.Time) {
	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.Int("status", status),
		),
	)
}

// doJSON performs r and decodes a 2xx body into out. Every failure is a *TransportError.
func (c *Client) doJSON(ctx context.Context, r request, out any) error {
	status, body, err := c.roundTrip(ctx, r)
	if err != nil {
		return &TransportError{Op: r.op, Status: status, Err: err}
	}
	if !isSuccess(status) {
		c.logger.Warn("api error", "op", r.op, "status", status)
		return &TransportError{Op: r.op, Status: status}
	}
	if err := decode(body, out); err != nil {
		c.logger.Warn("malformed api response", "op", r.op, "error", err)
		return &TransportError{Op: r.op, Status: status, Err: err}
	}
	return nil
}

// authenticate is doJSON for the auth endpoints: non-2xx becomes an *AuthError
// carrying the API's detail message, or fallback when there is none.
func (c *Client) authenticate(ctx context.Context, r request, out any, fallback string, useDetail bool) error {
	status, body, err := c.roundTrip(ctx, r)
	if err != nil {
		return &TransportError{Op: r.op, Status: status, Err: err}
	}
	if !isSuccess(status) {
		msg := fallback
		if useDetail {
			if detail := errorDetail(body); detail != "" {
				msg = detail
			}
		}
		c.logger.Info("authentication rejected", "op", r.op, "status", status)
		return &AuthError{Status: status, Message: msg}
	}
	if err := decode(body, out); err != nil {
		return &TransportError{Op: r.op, Status: status, Err: err}
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if v, ok := out.(validator); ok {
		return v.Validate()
	}
	return nil
}

// errorDetail extracts the API's "detail" field. Validation failures carry a list
// of {msg} objects instead of a string; their messages are joined.
func errorDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
