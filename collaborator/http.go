// Package collaborator provides smartflow.Collaborator implementations that
// reach remote extraction, summarization and custom execution services.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sicko7947/smartflow"
	"github.com/sony/gobreaker"
)

const (
	// DefaultTimeout bounds a single collaborator call
	DefaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of a failed response is kept in error details
	maxErrorBody = 4 << 10
)

// HTTPClient posts the step payload as JSON to a fixed endpoint and decodes
// the JSON object it returns. Consecutive failures open a circuit breaker.
type HTTPClient struct {
	name     string
	endpoint string
	client   *http.Client
	headers  map[string]string
	breaker  *gobreaker.CircuitBreaker
}

var _ smartflow.Collaborator = (*HTTPClient)(nil)

// Option configures an HTTPClient
type Option func(*clientOptions)

type clientOptions struct {
	timeout      time.Duration
	httpClient   *http.Client
	headers      map[string]string
	maxFailures  uint32
	openDuration time.Duration
}

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client; its Timeout wins over WithTimeout
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithHeader adds a header to every request
func WithHeader(key, value string) Option {
	return func(o *clientOptions) {
		o.headers[key] = value
	}
}

// WithCircuitBreaker trips the breaker after maxFailures consecutive failures
// and keeps it open for openDuration
func WithCircuitBreaker(maxFailures uint32, openDuration time.Duration) Option {
	return func(o *clientOptions) {
		o.maxFailures = maxFailures
		o.openDuration = openDuration
	}
}

// NewHTTPClient creates a collaborator named name that calls endpoint
func NewHTTPClient(name, endpoint string, opts ...Option) *HTTPClient {
	o := &clientOptions{
		timeout:      DefaultTimeout,
		headers:      map[string]string{},
		maxFailures:  5,
		openDuration: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}

	client := o.httpClient
	if client == nil {
		client = &http.Client{Timeout: o.timeout}
	}

	maxFailures := o.maxFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: o.openDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return maxFailures > 0 && counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &HTTPClient{
		name:     name,
		endpoint: endpoint,
		client:   client,
		headers:  o.headers,
		breaker:  breaker,
	}
}

// Name returns the collaborator name
func (c *HTTPClient) Name() string {
	return c.name
}

// Invoke sends payload and returns the decoded response object
func (c *HTTPClient) Invoke(ctx context.Context, payload map[string]any) (map[string]any, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.post(ctx, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, smartflow.NewWorkflowError(smartflow.ErrCodeCollaborator,
			fmt.Sprintf("%s collaborator unavailable", c.name)).WithCause(err)
	}
	if err != nil {
		return nil, err
	}
	return result.(map[string]any), nil
}

func (c *HTTPClient) post(ctx context.Context, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, smartflow.NewWorkflowError(smartflow.ErrCodeValidation,
			"failed to encode collaborator payload").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, smartflow.NewWorkflowError(smartflow.ErrCodeCollaborator,
			fmt.Sprintf("%s returned status %d", c.name, resp.StatusCode)).
			WithDetails(map[string]any{
				"status": resp.StatusCode,
				"body":   string(snippet),
			})
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, smartflow.NewWorkflowError(smartflow.ErrCodeCollaborator,
			fmt.Sprintf("%s returned an invalid response", c.name)).WithCause(err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
