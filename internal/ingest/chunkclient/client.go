// Package chunkclient sends import chunks to an HTTP endpoint.
//
// Each chunk is POSTed as JSON with headers that mark it as a programmatic
// chunk upload. Responses that are not JSON, typically an HTML error page
// from a proxy that timed out, are reported as a distinct failure.
package chunkclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/refimport/internal/ingest"
)

// Header names shared with the server.
const (
	HeaderChunkUpload = "X-Chunk-Upload"
	HeaderImportID    = "X-Import-ID"
)

// NonJSONMessage is the failure text for a response that is not JSON.
const NonJSONMessage = "Server returned HTML instead of JSON. The server may have timed out."

// snippetSize bounds how much of a non-JSON body is logged.
const snippetSize = 200

// Config configures the client. Zero values are given defaults:
//   - Timeout:        none (the caller's context governs)
//   - MaxRetries:     0
//   - InitialBackoff: 500ms
//   - MaxBackoff:     10s
type Config struct {
	// URL is the import endpoint.
	URL string

	// Timeout bounds each request. Zero means no client-side timeout.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after a 429 or 503.
	// Other failures are never retried.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// BaseHeaders are added to every request after the standard headers.
	BaseHeaders http.Header

	// Transport is an optional custom RoundTripper.
	Transport http.RoundTripper

	Logger *slog.Logger
}

// Client implements ingest.Endpoint over HTTP.
type Client struct {
	url            string
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	baseHeaders    http.Header
	logger         *slog.Logger
}

var _ ingest.Endpoint = (*Client)(nil)

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("chunkclient: url must not be empty")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		baseHeaders:    cfg.BaseHeaders.Clone(),
		logger:         cfg.Logger,
	}, nil
}

// response is the endpoint's JSON body for both outcomes.
type response struct {
	ingest.ChunkResult
	Error string `json:"error,omitempty"`
}

// SendChunk posts one chunk. Failures are returned as *ingest.ChunkError.
func (c *Client) SendChunk(ctx context.Context, req ingest.ChunkRequest) (ingest.ChunkResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ingest.ChunkResult{}, &ingest.ChunkError{
			ChunkNumber: req.ChunkNumber,
			Kind:        ingest.ChunkDecode,
			Message:     fmt.Sprintf("encode chunk: %v", err),
			Err:         err,
		}
	}

	for attempt := 0; ; attempt++ {
		res, retryAfter, err := c.post(ctx, req, body)
		if err == nil || retryAfter < 0 || attempt >= c.maxRetries {
			return res, err
		}

		wait := backoff(c.initialBackoff, attempt, c.maxBackoff)
		if retryAfter > 0 {
			wait = min(retryAfter, c.maxBackoff)
		}
		c.logger.Debug("retrying chunk", "chunk", req.ChunkNumber, "attempt", attempt+1, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ingest.ChunkResult{}, &ingest.ChunkError{
				ChunkNumber: req.ChunkNumber,
				Kind:        ingest.ChunkCancelled,
				Message:     ctx.Err().Error(),
				Err:         ctx.Err(),
			}
		case <-timer.C:
		}
	}
}

// post performs one attempt. retryAfter is negative when the failure is
// final, zero for a default backoff and positive when the server asked for
// a specific delay.
func (c *Client) post(ctx context.Context, req ingest.ChunkRequest, body []byte) (ingest.ChunkResult, time.Duration, error) {
	fail := func(kind ingest.ChunkErrorKind, status int, msg string, err error) *ingest.ChunkError {
		return &ingest.ChunkError{ChunkNumber: req.ChunkNumber, Kind: kind, StatusCode: status, Message: msg, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return ingest.ChunkResult{}, -1, fail(ingest.ChunkNetwork, 0, fmt.Sprintf("build request: %v", err), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderChunkUpload, "true")
	httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if req.ImportID != "" {
		httpReq.Header.Set(HeaderImportID, req.ImportID)
	}
	for k, vs := range c.baseHeaders {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		kind := ingest.ChunkNetwork
		if ctx.Err() != nil {
			kind = ingest.ChunkCancelled
		}
		return ingest.ChunkResult{}, -1, fail(kind, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "application/json") {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, snippetSize))
		c.logger.Warn("non-JSON response from import endpoint",
			"chunk", req.ChunkNumber,
			"status", resp.StatusCode,
			"content_type", resp.Header.Get("Content-Type"),
			"body", string(snippet),
		)
		return ingest.ChunkResult{}, -1, fail(ingest.ChunkNonJSON, resp.StatusCode, NonJSONMessage, nil)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ingest.ChunkResult{}, -1, fail(ingest.ChunkDecode, resp.StatusCode,
			fmt.Sprintf("decode response: %v", err), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Only JSON throttling responses are retried.
		retryAfter := time.Duration(-1)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("Upload failed with status %d", resp.StatusCode)
		}
		return ingest.ChunkResult{}, retryAfter, fail(ingest.ChunkHTTPStatus, resp.StatusCode, msg, nil)
	}

	return out.ChunkResult, -1, nil
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func backoff(initial time.Duration, attempt int, max time.Duration) time.Duration {
	d := initial << attempt
	if d <= 0 || d > max {
		return max
	}
	return d
}
