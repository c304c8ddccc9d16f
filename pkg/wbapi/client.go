// Package wbapi provides a client for the card-generation backend that sits in
// front of the Wildberries marketplace.
package wbapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/wbcard-cli/internal/model"
	"github.com/sells-group/wbcard-cli/internal/resilience"
)

// DefaultBaseURL is where the backend listens in a local deployment.
const DefaultBaseURL = "http://localhost:8000"

// Client defines the backend operations used by the CLI.
type Client interface {
	// Login exchanges credentials for a bearer token.
	Login(ctx context.Context, username, password string) (*TokenResponse, error)
	// Register creates an account and returns its token.
	Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error)

	// CurrentCard fetches the marketplace's current record for an article.
	CurrentCard(ctx context.Context, article string) (*model.Card, error)
	// ProcessStream opens the SSE stream of a single-article generation run.
	ProcessStream(ctx context.Context, article string) (io.ReadCloser, error)
	// BatchStream opens the SSE stream of a server-side batch run.
	BatchStream(ctx context.Context, articles []string) (io.ReadCloser, error)
	// UpdateCards pushes edited cards to the marketplace.
	UpdateCards(ctx context.Context, cards []CardUpdate) (json.RawMessage, error)

	History(ctx context.Context, q HistoryQuery) (*HistoryPage, error)
	HistoryStats(ctx context.Context, days int) (*HistoryStats, error)
	Keywords(ctx context.Context, name string) (*Keywords, error)

	PromptAPI
	TemplateAPI
	GenerationAPI
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *httpClient) {
		c.token = token
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *httpClient) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithRetryPolicy overrides the retry policy for non-streaming calls.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

// WithTimeout sets the timeout for non-streaming requests. Streams are bounded
// only by their context.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.timeout = d
	}
}

type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.Policy
	timeout time.Duration
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:   resilience.DefaultPolicy(),
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// endpoint joins path onto the base URL and appends the non-empty query
// parameters.
func (c *httpClient) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		clean := url.Values{}
		for k, vs := range query {
			for _, v := range vs {
				if v != "" {
					clean.Add(k, v)
				}
			}
		}
		if enc := clean.Encode(); enc != "" {
			u += "?" + enc
		}
	}
	return u
}

func (c *httpClient) newRequest(ctx context.Context, method, target string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, eris.Wrap(err, "wbapi: marshal request")
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, eris.Wrap(err, "wbapi: create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return eris.Wrap(c.limiter.Wait(ctx), "wbapi: rate limit")
}

// do sends a JSON request with retries and returns the response body of a
// successful call. Non-2xx responses become *APIError, marked transient when
// the status allows a retry.
func (c *httpClient) do(ctx context.Context, method, target string, body any) ([]byte, error) {
	op := method + " " + target
	p := c.retry
	if p.OnRetry == nil {
		p.OnRetry = resilience.RetryLogger(op)
	}

	return resilience.Retry(ctx, p, func(ctx context.Context) ([]byte, error) {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		req, err := c.newRequest(ctx, method, target, body)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "wbapi: %s", op)
		}
		defer resp.Body.Close() //nolint:errcheck

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "wbapi: read response body")
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, resilience.FromResponse(newAPIError(resp, data), resp)
		}
		return data, nil
	})
}

// doJSON runs do and decodes a non-empty response into out.
func (c *httpClient) doJSON(ctx context.Context, method, target string, body, out any) error {
	data, err := c.do(ctx, method, target, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "wbapi: unmarshal response")
	}
	return nil
}

// stream opens a long-lived response. The body is returned unread for the
// caller to consume; it is closed here when the status is not 2xx.
func (c *httpClient) stream(ctx context.Context, target string, body any) (io.ReadCloser, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wbapi: open stream")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close() //nolint:errcheck
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, newAPIError(resp, data)
	}
	return resp.Body, nil
}
