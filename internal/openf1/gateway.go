// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package openf1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/pitwall/internal/config"
	"github.com/tomtom215/pitwall/internal/metrics"
)

// maxErrorBodySize bounds how much of a non-2xx body is kept for errors.
const maxErrorBodySize = 64 * 1024

// readBodyForError reads at most maxErrorBodySize bytes of r.
func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	if len(body) == maxErrorBodySize {
		return string(body) + "\n... (truncated)"
	}
	return strings.TrimSpace(string(body))
}

// fetcher performs one GET against an OpenF1 endpoint and decodes the JSON
// body into out.
type fetcher interface {
	Fetch(ctx context.Context, endpoint string, query url.Values, out interface{}) error
}

// Gateway is the raw HTTP layer in front of OpenF1. Every call gets its
// own deadline and waits on a shared client-side limiter first.
type Gateway struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// NewGateway builds a gateway from the OpenF1 config section.
func NewGateway(cfg config.OpenF1Config) *Gateway {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Fetch issues GET {baseURL}/v1/{endpoint}?{query} and decodes the body
// into out. Failures are returned as *FetchError.
func (g *Gateway) Fetch(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	start := time.Now()
	err := g.fetch(ctx, endpoint, query, out)

	outcome := "ok"
	if fe, ok := AsFetchError(err); ok {
		outcome = fe.Kind.String()
	}
	metrics.RecordOpenF1Request(endpoint, outcome, time.Since(start))
	return err
}

func (g *Gateway) fetch(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline cannot be met.
		if ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &FetchError{Kind: KindTimeout, Endpoint: endpoint, Err: err}
		}
		return &FetchError{Kind: KindTransport, Endpoint: endpoint, Err: ctx.Err()}
	}

	reqURL := fmt.Sprintf("%s/v1/%s", g.baseURL, endpoint)
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return &FetchError{Kind: KindTransport, Endpoint: endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &FetchError{
			Kind:       KindRateLimited,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       readBodyForError(resp.Body),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{
			Kind:       KindHTTP,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       readBodyForError(resp.Body),
		}
	}

	if err := decodeBody(resp.Body, out); err != nil {
		if ctx.Err() != nil {
			return classifyTransportError(ctx, endpoint, err)
		}
		return &FetchError{Kind: KindParse, Endpoint: endpoint, Err: err}
	}
	return nil
}

// decodeBody decodes exactly one JSON value; anything but whitespace after
// it makes the body malformed.
func decodeBody(r io.Reader, out interface{}) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(out); err != nil {
		return err
	}
	var extra json.RawMessage
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return fmt.Errorf("after JSON value: %w", err)
	default:
		return errors.New("unexpected data after JSON value")
	}
}

func classifyTransportError(ctx context.Context, endpoint string, err error) *FetchError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, Endpoint: endpoint, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, Endpoint: endpoint, Err: err}
	}
	return &FetchError{Kind: KindTransport, Endpoint: endpoint, Err: err}
}

// parseRetryAfter accepts the delay-seconds and HTTP-date forms of the header.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
