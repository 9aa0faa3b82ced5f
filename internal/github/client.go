package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Client is the GitHub API client shared by the fetcher. It is built once at
// start-up and carries the credential; nothing about it is global.
type Client struct {
	Client *github.Client
	HTTP   *http.Client
	// Login is the authenticated user, set by Connect.
	Login string
}

type options struct {
	logger  *zap.Logger
	verbose bool
	baseURL string
	timeout time.Duration
}

type Option func(*options)

// WithLogger sets the logger used for verbose request logging.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithVerbose logs one debug line per request and per response.
func WithVerbose(enabled bool) Option {
	return func(o *options) {
		o.verbose = enabled
	}
}

// WithBaseURL points the client at another API root, e.g. a GitHub
// Enterprise server (https://ghe.example.com/api/v3/) or a test server.
func WithBaseURL(raw string) Option {
	return func(o *options) {
		o.baseURL = raw
	}
}

// WithTimeout bounds every HTTP request. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// loggingRoundTripper emits one debug line per request and response,
// including latency.
type loggingRoundTripper struct {
	base   http.RoundTripper
	logger *zap.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.logger.Debug("github api request", zap.String("method", req.Method), zap.String("url", req.URL.String()))
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		t.logger.Debug("github api error", zap.Duration("after", dur), zap.Error(err))
	} else {
		t.logger.Debug("github api response",
			zap.Int("status", resp.StatusCode),
			zap.Duration("took", dur),
			zap.String("ratelimit_remaining", resp.Header.Get("X-RateLimit-Remaining")))
	}
	return resp, err
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	transport := http.DefaultTransport
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, logger: o.logger}
	}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	tc := &http.Client{Transport: transport, Timeout: o.timeout}

	gc := github.NewClient(tc)
	if o.baseURL != "" {
		u, err := parseBaseURL(o.baseURL)
		if err != nil {
			return nil, fmt.Errorf("github client: %w", err)
		}
		gc.BaseURL = u
		gc.UploadURL = u
	}

	return &Client{Client: gc, HTTP: tc}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", raw)
	}
	return u, nil
}

// AuthError means the credential could not authenticate. It is fatal: no
// work item is processed without a working credential.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("github authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

var errNoToken = errors.New("no token (set GITHUB_TOKEN, OPENRANK_TOKEN, or run 'gh auth login')")

// Authenticate checks the credential by fetching the authenticated user.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	user, _, err := c.Client.Users.Get(ctx, "")
	if err != nil {
		return "", &AuthError{Err: err}
	}
	c.Login = user.GetLogin()
	return c.Login, nil
}

// Connect builds a client and verifies the credential before returning it.
func Connect(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &AuthError{Err: errNoToken}
	}
	c, err := NewClient(ctx, token, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := c.Authenticate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	if c == nil || c.HTTP == nil {
		return
	}
	c.HTTP.CloseIdleConnections()
}
