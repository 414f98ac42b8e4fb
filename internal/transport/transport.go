package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ErrNetwork marks failures reaching a remote service.
var ErrNetwork = errors.New("network error")

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-Id"

const maxResponseBytes = 1 << 20

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Request describes one outbound call. Body is JSON-encoded when non-nil.
type Request struct {
	Method      string
	URL         string
	Header      http.Header
	ContentType string
	Body        any
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// DecodeJSON unmarshals the body into v. An empty body leaves v untouched.
func (r *Response) DecodeJSON(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Client wraps a [Doer] with JSON encoding, request ids and debug logging.
type Client struct {
	doer   Doer
	logger *slog.Logger
}

// New returns a Client. A nil doer uses a client with a 30 second timeout; a
// nil logger discards output.
func New(doer Doer, logger *slog.Logger) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{doer: doer, logger: logger}
}

type requestIDKey struct{}

// WithRequestID attaches id to ctx for the next outbound request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by [WithRequestID].
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Do sends req and reads the whole response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil {
		ct := req.ContentType
		if ct == "" {
			ct = "application/json"
		}
		httpReq.Header.Set("Content-Type", ct)
	}
	httpReq.Header.Set("Accept", "application/json")

	reqID := RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	httpReq.Header.Set(HeaderRequestID, reqID)

	start := time.Now()
	resp, err := c.doer.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed",
			"method", req.Method,
			"url", req.URL,
			"request_id", reqID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}

	c.logger.Debug("request completed",
		"method", req.Method,
		"url", req.URL,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration", time.Since(start),
	)

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}
