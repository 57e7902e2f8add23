// Package fetch retrieves raw report payloads from upstream APIs.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dvloznov/ledgersync/internal/logger"
)

// DefaultTimeout bounds a single fetch when the caller passes none.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 4 << 10

// Fetcher performs a single GET against an upstream endpoint.
type Fetcher interface {
	// Get returns the response body, or nil when the upstream answered with
	// no content. Failures are returned as *Error.
	Get(ctx context.Context, endpoint string, headers, query map[string]string, timeout time.Duration) ([]byte, error)
}

// Error describes a failed fetch: a timeout, a transport failure or a non-2xx
// response. StatusCode is zero when no response was received.
type Error struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Failed to fetch data from API: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("Failed to fetch data from API: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the fetch was cut off by its deadline.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Client is the net/http implementation of Fetcher.
type Client struct {
	HTTPClient *http.Client
}

// NewClient creates a Client. A nil httpClient uses a default client.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{HTTPClient: httpClient}
}

// BearerHeaders returns the Authorization header for credential, or nil when
// credential is empty.
func BearerHeaders(credential string) map[string]string {
	if credential == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + credential}
}

// Get implements Fetcher.
func (c *Client) Get(ctx context.Context, endpoint string, headers, query map[string]string, timeout time.Duration) ([]byte, error) {
	log := logger.FromContext(ctx)

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Message: fmt.Sprintf("invalid endpoint %q", endpoint), Err: err}
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timeout of %s exceeded", timeout)
		}
		log.Error().Err(err).Str("endpoint", endpoint).Msg("API request failed")
		return nil, &Error{Endpoint: endpoint, Message: msg, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := upstreamMessage(body, resp.Status)
		log.Error().Str("endpoint", endpoint).Int("status_code", resp.StatusCode).Msgf("API Error: %s", msg)
		return nil, &Error{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: msg}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: "read body", Err: err}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	return body, nil
}

// upstreamMessage prefers a JSON {"message": ...} body over the status line.
func upstreamMessage(body []byte, status string) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return status
}
