// Package apiclient is the shared REST transport to the upstream QA API.
//
// It attaches the bearer token from a TokenSource, refreshes once and retries
// when the upstream answers 401, and maps failures to *TransportError. Every
// call is traced with OpenTelemetry and recorded in Prometheus.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TokenSource supplies the access token and renews it on demand.
type TokenSource interface {
	// Token returns the current access token, or "" when signed out.
	Token() string
	// Refresh renews the credential pair. A failure ends the session.
	Refresh(ctx context.Context) error
}

// Observer receives the latency of each completed upstream call. The
// performance monitor implements it.
type Observer interface {
	// ObserveAPI records d for endpoint, a templated route.
	ObserveAPI(endpoint string, d time.Duration)
}

// Client performs JSON requests against BaseURL.
type Client struct {
	// BaseURL is the upstream API root without a trailing slash.
	BaseURL string
	// HTTP performs the requests; its Timeout bounds each attempt.
	HTTP *http.Client
	// Tokens supplies bearer tokens. Nil sends every request anonymously.
	Tokens TokenSource
	// Obs, when set, receives per-call latency.
	Obs Observer
	// Log receives transport warnings.
	Log zerolog.Logger
}

// New returns a Client with the given base URL and timeout.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Log:     log,
	}
}

// Request describes one upstream call.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Route is the templated path (e.g. /documents/:id) used for span names
	// and metric labels. Defaults to Path.
	Route string

	// JSON is marshaled as the request body when non-nil.
	JSON any
	// Body builds a fresh raw body for each attempt. It takes precedence over
	// JSON and must return the matching Content-Type.
	Body func() (io.Reader, string, error)

	// Anonymous skips the bearer token and the refresh-on-401 retry.
	Anonymous bool
}

// Do sends req and decodes a JSON response into out (which may be nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &TransportError{Status: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return nil
}

// Get is shorthand for a GET decoded into out.
func (c *Client) Get(ctx context.Context, path string, q url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: q}, out)
}

// Post is shorthand for a JSON POST decoded into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, JSON: in}, out)
}

// Patch is shorthand for a JSON PATCH decoded into out.
func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, JSON: in}, out)
}

// Delete is shorthand for a DELETE with no response body.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, nil)
}

// Send performs req and returns the raw 2xx response. The caller closes the
// body. Non-2xx responses are returned as *TransportError.
func (c *Client) Send(ctx context.Context, req Request) (*http.Response, error) {
	if req.Route == "" {
		req.Route = req.Path
	}
	tr := otel.Tracer("apiclient")
	ctx, span := tr.Start(ctx, req.Method+" "+req.Route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("upstream.route", req.Route),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.attempt(ctx, req)

	if resp != nil && resp.StatusCode == http.StatusUnauthorized && !req.Anonymous && c.Tokens != nil {
		drain(resp)
		c.Log.Debug().Str("path", req.Path).Msg("upstream 401, refreshing token")
		if rerr := c.Tokens.Refresh(ctx); rerr != nil {
			c.record(req, http.StatusUnauthorized, start, span, rerr)
			return nil, rerr
		}
		resp, err = c.attempt(ctx, req)
	}

	if err != nil {
		te := &TransportError{Message: err.Error(), Err: err}
		c.record(req, 0, start, span, te)
		return nil, te
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		te := &TransportError{Status: resp.StatusCode, Message: upstreamMessage(resp.StatusCode, body)}
		c.record(req, resp.StatusCode, start, span, te)
		return nil, te
	}
	c.record(req, resp.StatusCode, start, span, nil)
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req Request) (*http.Response, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.Body != nil:
		b, ct, err := req.Body()
		if err != nil {
			return nil, err
		}
		body, contentType = b, ct
	case req.JSON != nil:
		raw, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, err
		}
		body, contentType = bytes.NewReader(raw), "application/json"
	}

	u := c.BaseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	hr, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, err
	}
	hr.Header.Set("Accept", "application/json")
	if contentType != "" {
		hr.Header.Set("Content-Type", contentType)
	}
	if !req.Anonymous && c.Tokens != nil {
		if tok := c.Tokens.Token(); tok != "" {
			hr.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return c.HTTP.Do(hr)
}

func (c *Client) record(req Request, status int, start time.Time, span trace.Span, err error) {
	d := time.Since(start)
	code := strconv.Itoa(status)
	upstreamReqs.WithLabelValues(req.Method, req.Route, code).Inc()
	upstreamLat.WithLabelValues(req.Method, req.Route).Observe(d.Seconds())
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, MessageOf(err))
		c.Log.Warn().Str("method", req.Method).Str("path", req.Path).Int("status", status).Err(err).Msg("upstream request failed")
	}
	if c.Obs != nil {
		c.Obs.ObserveAPI(req.Route, d)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
