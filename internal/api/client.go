package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://flex-integ-api.sharetribe.com"

	apiPrefix = "/v1/integration_api"
	tokenPath = "/v1/auth/token"
)

// Options configures an HTTPClient.
type Options struct {
	BaseURL              string
	ClientID             string
	ClientSecret         string
	Timeout              time.Duration
	QueryRatePerSecond   float64
	CommandRatePerSecond float64
}

// HTTPClient talks to the marketplace Integration API. Queries and commands
// are paced by separate limiters; a 429 that slips through is returned as
// ErrQuotaExceeded and never retried here.
type HTTPClient struct {
	httpClient     *http.Client
	baseURL        string
	queryLimiter   *rate.Limiter
	commandLimiter *rate.Limiter
	logger         *zap.Logger
}

func NewClient(opts Options, logger *zap.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}
	base := &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	creds := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     baseURL + tokenPath,
		Scopes:       []string{"integ"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := creds.Client(tokenCtx)
	httpClient.Timeout = opts.Timeout

	return &HTTPClient{
		httpClient:     httpClient,
		baseURL:        baseURL,
		queryLimiter:   newLimiter(opts.QueryRatePerSecond),
		commandLimiter: newLimiter(opts.CommandRatePerSecond),
		logger:         logger,
	}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(perSecond * 2)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

type envelope[T any] struct {
	Data T    `json:"data"`
	Meta Meta `json:"meta"`
}

func (c *HTTPClient) query(ctx context.Context, op, path string, params url.Values, out any) error {
	if err := c.queryLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + apiPrefix + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(op, req, out)
}

func (c *HTTPClient) command(ctx context.Context, op, path string, params url.Values, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s body: %w", op, err)
	}
	return c.post(ctx, op, path, params, "application/json", bytes.NewReader(payload), out)
}

func (c *HTTPClient) post(ctx context.Context, op, path string, params url.Values, contentType string, body io.Reader, out any) error {
	if err := c.commandLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + apiPrefix + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(op, req, out)
}

func (c *HTTPClient) do(op string, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	c.logger.Debug("requesting", zap.String("op", op), zap.String("method", req.Method), zap.String("path", req.URL.Path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(op, err)
	}

	// Read body before closing for error messages
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return &Error{Kind: KindTransient, Op: op, Status: resp.StatusCode, Err: readErr}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Kind: kindForStatus(resp.StatusCode), Op: op, Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && len(eb.Errors) > 0 {
			apiErr.Code = eb.Errors[0].Code
			apiErr.Title = eb.Errors[0].Title
		}
		c.logger.Debug("request failed", zap.String("op", op), zap.Int("status", resp.StatusCode), zap.Stringer("kind", apiErr.Kind))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	return nil
}

// classifyTransportError maps errors raised before a response was read,
// including token endpoint failures, onto the error kinds.
func classifyTransportError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		kind := KindAuth
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusTooManyRequests {
			kind = KindQuotaExceeded
		}
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &Error{Kind: kind, Op: op, Status: status, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
