package canister

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// HTTPClient sends JSON requests to the governance gateway and retries
// transient failures
type HTTPClient struct {
	client     *http.Client
	baseURL    string
	name       string // canister name for logging
	newBackOff func() backoff.BackOff
}

// NewHTTPClient creates a client with default settings
func NewHTTPClient(name, baseURL string, timeoutSec int) *HTTPClient {
	if timeoutSec == 0 {
		timeoutSec = 30 // default timeout
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
		baseURL:    baseURL,
		name:       name,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithMaxRetries(b, 4)
}

// SetBackOff replaces the retry policy; tests use backoff.ZeroBackOff.
func (c *HTTPClient) SetBackOff(fn func() backoff.BackOff) {
	c.newBackOff = fn
}

// Do sends payload (nil for no body) and returns the response once it is not
// a transient failure. Network errors and 5xx responses are retried.
func (c *HTTPClient) Do(ctx context.Context, method, endpoint string, payload interface{}, headers map[string]string) (*HTTPResponse, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
	}

	url := c.baseURL + endpoint
	var resp *HTTPResponse
	attempt := 0
	op := func() error {
		attempt++
		r, err := c.send(ctx, method, url, body, headers)
		if err != nil {
			resp = nil
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if r.StatusCode >= 500 {
			resp = r
			return fmt.Errorf("%s %s: status %d", method, endpoint, r.StatusCode)
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().
			Str("canister", c.name).
			Str("url", url).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Err(err).
			Msg("retrying canister request")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		// A 5xx that exhausted retries is still a response the caller can decode.
		if resp != nil && resp.StatusCode >= 500 {
			return resp, nil
		}
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	return resp, nil
}

func (c *HTTPClient) send(ctx context.Context, method, url string, body []byte, headers map[string]string) (*HTTPResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	// Set default headers
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("GovConsole/%s", c.name))

	// Add custom headers
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	log.Debug().
		Str("canister", c.name).
		Str("method", method).
		Str("url", url).
		Msg("making HTTP request")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error().
			Str("canister", c.name).
			Str("url", url).
			Err(err).
			Msg("HTTP request failed")
		return nil, err
	}

	return c.handleResponse(resp)
}

// handleResponse processes the HTTP response
func (c *HTTPClient) handleResponse(resp *http.Response) (*HTTPResponse, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	log.Debug().
		Str("canister", c.name).
		Int("status_code", resp.StatusCode).
		Int("body_length", len(body)).
		Msg("received HTTP response")

	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// HTTPResponse represents an HTTP response
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// IsSuccess checks if the response indicates success (2xx status code)
func (r *HTTPResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the response body into the provided struct
func (r *HTTPResponse) Decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// String returns the response body as a string
func (r *HTTPResponse) String() string {
	return string(r.Body)
}
