// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ctgov is the HTTP client for the ClinicalTrials.gov v2 API. It
// owns transport concerns only: base URL, headers, rate limiting, retries,
// status classification, response caching and JSON decoding.
package ctgov

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pdiddy/ctgov/internal/httputil"
	"github.com/pdiddy/ctgov/internal/metrics"
	"github.com/pdiddy/ctgov/pkg/types"
)

// maxBodyBytes bounds a single response body. A full 1000-study page with
// every field stays well below this.
const maxBodyBytes = 256 << 20

// jsonAPI decodes numbers in untyped study documents as json.Number so
// large integers and exact decimals survive.
var jsonAPI = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
	UseNumber:        true,
}.Froze()

// Client talks to one ClinicalTrials.gov deployment. It is safe for
// concurrent use.
type Client struct {
	http    *http.Client
	cfg     types.APIConfig
	baseURL string
	limiter *rate.Limiter
	cache   *expirable.LRU[string, []byte]
	metrics *metrics.Metrics
	log     zerolog.Logger

	attempts atomic.Int64
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A zero Timeout on hc
// is replaced by the configured timeout; hc itself is not modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		if cp.Timeout == 0 {
			cp.Timeout = c.cfg.Timeout
		}
		c.http = &cp
	}
}

// WithLogger sets the logger used for attempt and retry events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for cfg. Zero fields fall back to
// types.DefaultAPIConfig, except RequestsPerSecond and CacheSize where zero
// means disabled.
func NewClient(cfg types.APIConfig, opts ...Option) *Client {
	def := types.DefaultAPIConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		log:     zerolog.Nop(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.CacheSize > 0 {
		c.cache = expirable.NewLRU[string, []byte](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Attempts returns the number of HTTP attempts issued so far, retries
// included. Cache hits do not count.
func (c *Client) Attempts() int64 { return c.attempts.Load() }

// GetJSON performs one logical GET of path (relative to the base URL) and
// decodes the JSON body into out. Responses are never cached.
func (c *Client) GetJSON(ctx context.Context, path string, params types.Params, out any) error {
	return c.get(ctx, path, path, params, false, out)
}

// get performs a GET. endpoint is the metrics and error label (a path
// template such as "/studies/{nctId}"); path is the concrete path.
func (c *Client) get(ctx context.Context, endpoint, path string, params types.Params, cacheable bool, out any) error {
	reqURL := c.baseURL + path
	rawQuery := params.Encode()
	if rawQuery != "" {
		reqURL += "?" + rawQuery
	}

	if cacheable && c.cache != nil {
		if body, ok := c.cache.Get(reqURL); ok {
			c.metrics.CacheHit()
			return decode(path, body, out)
		}
	}

	body, err := c.do(ctx, endpoint, path, rawQuery, reqURL)
	if err != nil {
		return err
	}
	if err := decode(path, body, out); err != nil {
		return err
	}
	if cacheable && c.cache != nil {
		c.cache.Add(reqURL, body)
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint, path, rawQuery, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	attempts := 0
	policy := httputil.Policy{
		MaxAttempts:  c.cfg.MaxAttempts,
		Wait:         c.wait,
		ReadBody:     true,
		MaxBodyBytes: maxBodyBytes,
		OnAttempt: func(a httputil.Attempt) {
			attempts = a.Number
			c.attempts.Add(1)
			c.metrics.ObserveAttempt(endpoint, outcome(a), a.Duration, a.Retrying)

			ev := c.log.Debug()
			if !a.Retrying && (a.Err != nil || httputil.RetryableStatus(a.Status)) {
				ev = c.log.Warn()
			}
			ev.Str("endpoint", endpoint).
				Int("attempt", a.Number).
				Int("status", a.Status).
				Dur("duration", a.Duration).
				Dur("backoff", a.Backoff).
				AnErr("error", a.Err).
				Msg("api attempt")
		},
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, policy)
	if err != nil {
		return nil, c.transportError(ctx, path, attempts, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, path, attempts, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Endpoint: path, Message: string(body)}
	case httputil.RetryableStatus(resp.StatusCode):
		return nil, &TransientNetworkError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Attempts:   attempts,
			Message:    string(body),
		}
	default:
		return nil, &InvalidRequestError{
			Endpoint:   path,
			Query:      rawQuery,
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}
}

func (c *Client) transportError(ctx context.Context, path string, attempts int, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if httputil.IsTimeout(err) {
		return &TimeoutError{Endpoint: path, Timeout: c.http.Timeout, Attempts: attempts, Err: err}
	}
	return &TransientNetworkError{Endpoint: path, Attempts: attempts, Err: err}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func outcome(a httputil.Attempt) string {
	switch {
	case a.Err != nil && httputil.IsTimeout(a.Err):
		return "timeout"
	case a.Err != nil:
		return "network_error"
	case a.Status == http.StatusOK:
		return "ok"
	default:
		return fmt.Sprintf("http_%d", a.Status)
	}
}

func decode(endpoint string, body []byte, out any) error {
	if err := jsonAPI.Unmarshal(body, out); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}
