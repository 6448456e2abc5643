package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout   = 5 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultReferer   = "https://www.bilibili.com"

	maxEnvelopeBytes = 8 << 20
)

// Observer receives the outcome of every upstream call. *metrics.Metrics implements it.
type Observer interface {
	ObserveUpstream(step string, d time.Duration, err error)
}

// Envelope is the {code, message, ttl, data} wrapper every API response uses.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	TTL     int             `json:"ttl"`
	Data    json.RawMessage `json:"data"`
}

// Decode unmarshals the data field into v. A missing or null data field leaves v untouched.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Client performs upstream API calls. Each call gets its own timeout.
// A Client holds no mutable state and is safe for concurrent use.
type Client struct {
	baseURL    string
	userAgent  string
	referer    string
	timeout    time.Duration
	httpClient *http.Client
	observer   Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-call timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithObserver registers an observer for call outcomes.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithUserAgent overrides the User-Agent sent upstream.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithReferer overrides the Referer sent upstream.
func WithReferer(ref string) Option {
	return func(c *Client) {
		if ref = strings.TrimSpace(ref); ref != "" {
			c.referer = ref
		}
	}
}

// New returns a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		userAgent:  DefaultUserAgent,
		referer:    DefaultReferer,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetEnvelope issues GET baseURL+path?query and decodes the response envelope.
// The envelope code is not checked; see CheckCode.
func (c *Client) GetEnvelope(ctx context.Context, step, path string, query url.Values, credential string) (env *Envelope, err error) {
	start := time.Now()
	defer func() { c.observe(step, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &Error{Step: step, Err: err}
	}
	c.setHeaders(req.Header, credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Step: step, Err: classify(ctx, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &Error{Step: step, StatusCode: resp.StatusCode}
	}

	env = &Envelope{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxEnvelopeBytes)).Decode(env); err != nil {
		return nil, &Error{Step: step, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode envelope: %w", classify(ctx, err))}
	}
	return env, nil
}

// CheckCode returns an *Error when the envelope carries a non-zero code.
func CheckCode(step string, env *Envelope) error {
	if env.Code != 0 {
		return &Error{Step: step, StatusCode: http.StatusOK, Code: env.Code, Message: env.Message}
	}
	return nil
}

// OpenStream issues GET target with the given extra headers. The timeout
// bounds the wait for response headers only; the body stays readable until
// ctx ends or the caller closes it.
func (c *Client) OpenStream(ctx context.Context, target string, header http.Header) (resp *http.Response, err error) {
	start := time.Now()
	defer func() { c.observe("stream", start, err) }()

	ctx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(c.timeout, func() { cancel(ErrUpstreamTimeout) })

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		timer.Stop()
		cancel(nil)
		return nil, &Error{Step: "stream", Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	c.setHeaders(req.Header, "")

	resp, err = c.httpClient.Do(req)
	timer.Stop()
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrUpstreamTimeout) {
			err = fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		cancel(nil)
		return nil, &Error{Step: "stream", Err: err}
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: func() { cancel(nil) }}
	return resp, nil
}

func (c *Client) setHeaders(h http.Header, credential string) {
	if h.Get("User-Agent") == "" {
		h.Set("User-Agent", c.userAgent)
	}
	if h.Get("Referer") == "" {
		h.Set("Referer", c.referer)
	}
	if credential != "" {
		h.Set("Cookie", "SESSDATA="+credential)
	}
}

func (c *Client) observe(step string, start time.Time, err error) {
	if c.observer != nil {
		c.observer.ObserveUpstream(step, time.Since(start), err)
	}
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return err
}

type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
