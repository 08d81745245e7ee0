package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"userapi_tester/internal/metrics"
	"userapi_tester/internal/model"
)

var (
	ErrConnection        = errors.New("connection error")
	ErrUnsupportedMethod = errors.New("unsupported method")

	errTrailingData = errors.New("trailing data after json value")
)

// ConnectionError means the probe never completed an HTTP round-trip.
type ConnectionError struct {
	Method string
	URL    string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	log       *zap.Logger
	metrics   *metrics.Run
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithMetrics(m *metrics.Run) Option {
	return func(c *Client) { c.metrics = m }
}

// New builds a client without a timeout: slow responses are part of what the
// harness observes.
func New(baseURL string, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends one request. Any HTTP status, 4xx and 5xx included, is returned as
// a result with a nil error. Transport failures and success responses whose
// body cannot be parsed produce a *ConnectionError.
func (c *Client) Do(ctx context.Context, pr model.ProbeRequest) (model.ProbeResult, error) {
	method := strings.ToUpper(pr.Method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return model.ProbeResult{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, pr.Method)
	}

	target := c.buildURL(pr.Path, pr.Query)

	var payload []byte
	if pr.Body != nil && (method == http.MethodPost || method == http.MethodPut) {
		b, err := json.Marshal(pr.Body)
		if err != nil {
			return model.ProbeResult{}, fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return model.ProbeResult{}, &ConnectionError{Method: method, URL: target, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.log.Debug("probe", zap.String("curl", toCurl(req, payload)))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		elapsed := time.Since(start)
		c.metrics.ObserveConnectionFailure(method, elapsed)
		c.log.Warn("probe failed", zap.String("method", method), zap.String("url", target), zap.Error(err))
		return model.ProbeResult{Elapsed: elapsed}, &ConnectionError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveConnectionFailure(method, elapsed)
		c.log.Warn("read response", zap.String("method", method), zap.String("url", target), zap.Error(err))
		return model.ProbeResult{Elapsed: elapsed}, &ConnectionError{Method: method, URL: target, Err: err}
	}

	body, err := decodeBody(raw)
	if err != nil {
		if resp.StatusCode < http.StatusBadRequest {
			c.metrics.ObserveConnectionFailure(method, elapsed)
			c.log.Warn("unparseable response",
				zap.String("method", method),
				zap.String("url", target),
				zap.Int("status", resp.StatusCode),
				zap.Error(err),
			)
			return model.ProbeResult{Elapsed: elapsed}, &ConnectionError{
				Method: method,
				URL:    target,
				Err:    fmt.Errorf("decode response: %w", err),
			}
		}
		// an error status with an unparseable body is still an answer
		c.log.Debug("response is not json",
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes", len(raw)),
		)
	}
	c.metrics.ObserveProbe(method, resp.StatusCode, elapsed)

	c.log.Debug("probe done",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed),
	)

	return model.ProbeResult{StatusCode: resp.StatusCode, Body: body, Elapsed: elapsed}, nil
}

func (c *Client) buildURL(path string, query map[string]string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.baseURL + path
	if len(query) > 0 {
		values := url.Values{}
		for k, v := range query {
			values.Set(k, v)
		}
		target += "?" + values.Encode()
	}
	return target
}

// decodeBody keeps numbers as json.Number so integer and float ages stay
// distinguishable.
func decodeBody(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return v, nil
}

// toCurl renders the request as a curl command for debug logs.
func toCurl(req *http.Request, body []byte) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "curl -X %s", req.Method)

	keys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " -H '%s: %s'", k, req.Header.Get(k))
	}

	if len(body) > 0 {
		fmt.Fprintf(&sb, " -d '%s'", body)
	}

	fmt.Fprintf(&sb, " '%s'", req.URL.String())
	return sb.String()
}
