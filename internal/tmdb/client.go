// Package tmdb is the client for the upstream movie metadata provider.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-recommendation/internal/domain"
	"github.com/Clark-Hu/movie-recommendation/internal/ratelimit"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.themoviedb.org/3"
	// DefaultTimeout bounds every outbound call.
	DefaultTimeout = 10 * time.Second
	// DefaultRatePerSecond keeps bursts of cache misses under the provider's limit.
	DefaultRatePerSecond = 4

	maxErrorBody = 512
)

// Operation names used in errors and logs.
const (
	OpTrending        = "trending"
	OpRecommendations = "recommendations"
	OpSearch          = "search"
	OpDetails         = "details"
)

// Client defines the upstream operations the service relies on. List
// operations return the provider's "results" array; Details returns the
// single record.
type Client interface {
	Trending(ctx context.Context, mediaType, window string) ([]map[string]any, error)
	Recommendations(ctx context.Context, movieID int64, page int) ([]map[string]any, error)
	SearchByTitle(ctx context.Context, title string) ([]map[string]any, error)
	Details(ctx context.Context, movieID int64) (map[string]any, error)
}

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// HTTPClient implements Client over HTTP. List and search calls carry the
// API key as a query parameter; details calls send a bearer token.
type HTTPClient struct {
	baseURL     *url.URL
	apiKey      string
	bearerToken string
	client      HTTPDoer
	limiter     *ratelimit.Limiter
	logger      *zap.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithBearerToken sets the token used for details calls. Defaults to the API key.
func WithBearerToken(token string) Option {
	return func(c *HTTPClient) {
		if token != "" {
			c.bearerToken = token
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *HTTPClient) {
		if doer != nil {
			c.client = doer
		}
	}
}

// WithRateLimiter replaces the outbound limiter. Passing nil disables limiting.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(c *HTTPClient) {
		c.limiter = l
	}
}

// NewHTTPClient constructs a new HTTP-backed upstream client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger, opts ...Option) (*HTTPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse tmdb url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse tmdb url: %q is not absolute", baseURL)
	}

	c := &HTTPClient{
		baseURL:     parsed,
		apiKey:      apiKey,
		bearerToken: apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		limiter: ratelimit.New("tmdb", DefaultRatePerSecond),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type listResponse struct {
	Results []map[string]any `json:"results"`
}

// Trending returns the trending list for mediaType over window.
func (c *HTTPClient) Trending(ctx context.Context, mediaType, window string) ([]map[string]any, error) {
	endpoint := c.endpoint(nil, "trending", mediaType, window)
	return c.list(ctx, OpTrending, endpoint)
}

// Recommendations returns one page of recommendations for movieID.
func (c *HTTPClient) Recommendations(ctx context.Context, movieID int64, page int) ([]map[string]any, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	endpoint := c.endpoint(query, "movie", strconv.FormatInt(movieID, 10), "recommendations")
	return c.list(ctx, OpRecommendations, endpoint)
}

// SearchByTitle runs a movie title search.
func (c *HTTPClient) SearchByTitle(ctx context.Context, title string) ([]map[string]any, error) {
	query := url.Values{}
	query.Set("query", title)
	endpoint := c.endpoint(query, "search", "movie")
	return c.list(ctx, OpSearch, endpoint)
}

// Details returns the detail record for movieID.
func (c *HTTPClient) Details(ctx context.Context, movieID int64) (map[string]any, error) {
	endpoint := c.baseURL.JoinPath("movie", strconv.FormatInt(movieID, 10))
	var payload map[string]any
	err := c.getJSON(ctx, OpDetails, endpoint.String(), func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}, &payload)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *HTTPClient) endpoint(query url.Values, segments ...string) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)
	u := c.baseURL.JoinPath(segments...)
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *HTTPClient) list(ctx context.Context, op, endpoint string) ([]map[string]any, error) {
	var payload listResponse
	if err := c.getJSON(ctx, op, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	if payload.Results == nil {
		return []map[string]any{}, nil
	}
	return payload.Results, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, op, endpoint string, decorate func(*http.Request), target any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.UpstreamError{Op: op, Kind: domain.UpstreamTransport, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &domain.UpstreamError{Op: op, Kind: domain.UpstreamTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if decorate != nil {
		decorate(req)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("tmdb request failed", zap.String("op", op), zap.Error(redact(err)))
		return &domain.UpstreamError{Op: op, Kind: domain.UpstreamTransport, Err: redact(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("tmdb unexpected status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("body", strings.TrimSpace(string(body))))
		return &domain.UpstreamError{Op: op, Kind: domain.UpstreamHTTPStatus, StatusCode: resp.StatusCode}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return &domain.UpstreamError{Op: op, Kind: domain.UpstreamDecode, StatusCode: resp.StatusCode, Err: err}
	}
	c.logger.Debug("tmdb request", zap.String("op", op), zap.Duration("elapsed", time.Since(started)))
	return nil
}

// redact strips the request URL (which carries the API key) from transport errors.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
