// Package statestore is CORE's typed REST client to the persistence layer
// (users, assistants, tools, messages, summaries, user_facts,
// user_secretary, memories, reminders, global_settings, job_executions,
// queue_logs). Every call goes through a per-resource circuit breaker
// (internal/statestore/circuit.go) and bounded exponential-backoff retry
// (internal/backoff).
package statestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haasonsaas/assistant-core/internal/backoff"
	"github.com/haasonsaas/assistant-core/internal/corrid"
)

// Client is the shared REST transport every resource-specific method
// (resources.go) is built on.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breakers   *breakerRegistry
	maxRetries int
	policy     backoff.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (e.g. for test doubles
// pointed at httptest.Server).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries overrides the default bounded-retry count.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// New constructs a Client against baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breakers:   newBreakerRegistry(defaultCircuitConfig()),
		maxRetries: 3,
		policy:     backoff.StateStorePolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenResources reports which resource breakers are currently tripped.
func (c *Client) OpenResources() []string {
	return c.breakers.openResources()
}

// request performs method against path (e.g. "/users/42"), encoding body
// as JSON if non-nil, decoding the response into out if non-nil, and
// applying per-resource circuit breaking plus bounded retry with
// exponential backoff on network errors and 5xx. getOn404Nil, when true,
// normalizes a 404 response to a nil error with out left untouched (the
// caller is expected to treat the zero value as "not found").
func (c *Client) request(ctx context.Context, resource, method, path string, body, out any, getOn404Nil bool) error {
	br := c.breakers.get(resource)

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return &Error{Kind: ErrKindHTTP4xx, Resource: resource, Method: method, Cause: fmt.Errorf("encode request: %w", err)}
		}
	}

	var lastResp *http.Response
	var lastCerr error
	_, err := backoff.Retry(ctx, c.policy, c.maxRetries, func(attempt int) (*http.Response, error) {
		var resp *http.Response
		cerr := br.run(ctx, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
			if err != nil {
				return err
			}
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			if id := corrid.FromContext(ctx); id != "" {
				req.Header.Set("X-Correlation-ID", id)
			}
			resp, err = c.httpClient.Do(req)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 500 {
				return fmt.Errorf("server error: status %d", resp.StatusCode)
			}
			return nil
		})
		lastResp = resp
		lastCerr = cerr
		return resp, cerr
	})

	if errors.Is(lastCerr, ErrCircuitOpen) {
		return &Error{Kind: ErrKindCircuitOpen, Resource: resource, Method: method, Cause: ErrCircuitOpen}
	}
	if err != nil {
		if lastResp == nil {
			return &Error{Kind: ErrKindNetwork, Resource: resource, Method: method, Cause: err}
		}
		defer lastResp.Body.Close()
		return c.statusError(resource, method, lastResp)
	}

	resp := lastResp
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		if getOn404Nil && method == http.MethodGet {
			return nil
		}
		return c.statusError(resource, method, resp)
	}
	if resp.StatusCode >= 400 {
		return c.statusError(resource, method, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: ErrKindNetwork, Resource: resource, Method: method, Cause: err}
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: ErrKindHTTP5xx, Resource: resource, Method: method, Cause: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) statusError(resource, method string, resp *http.Response) error {
	kind := ErrKindHTTP4xx
	if resp.StatusCode >= 500 {
		kind = ErrKindHTTP5xx
	}
	return &Error{Kind: kind, Resource: resource, Method: method, Status: resp.StatusCode, Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
}
