package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// TokenSource supplies the bearer token attached to outgoing requests and
// refreshes it after a 401. Refresh must be safe to call concurrently;
// callers share one in-flight refresh.
type TokenSource interface {
	Token() string
	Refresh(ctx context.Context) (string, error)
}

// APIError is a failed REST call. Detail carries the server's structured
// error detail when one was present in the response body.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api error: status %d", e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == code
}

type BaseClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string

	tokens TokenSource

	// Invoked when a request still fails with 401 after a refresh+retry.
	onAuthFailure func()
}

func NewBaseClient(baseURL string) *BaseClient {
	return &BaseClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *BaseClient) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *BaseClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// SetTokenSource installs the bearer token provider used for every request.
func (c *BaseClient) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// SetAuthFailureHook installs the callback fired when a refreshed request
// is rejected again with 401.
func (c *BaseClient) SetAuthFailureHook(fn func()) {
	c.onAuthFailure = fn
}

// MakeRequest performs one request. A 401 response triggers exactly one
// token refresh and one retry of the original request with the new token;
// a second 401 propagates and fires the auth-failure hook.
func (c *BaseClient) MakeRequest(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	return c.makeRequest(ctx, method, endpoint, body, true)
}

// MakeRequestNoRetry performs one request without the 401 refresh+retry.
// The auth endpoints themselves go through here so a failing refresh can
// never trigger another refresh.
func (c *BaseClient) MakeRequestNoRetry(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	return c.makeRequest(ctx, method, endpoint, body, false)
}

func (c *BaseClient) makeRequest(ctx context.Context, method, endpoint string, body []byte, allowRetry bool) ([]byte, error) {
	token := ""
	if c.tokens != nil {
		token = c.tokens.Token()
	}

	responseBody, status, err := c.doOnce(ctx, method, endpoint, body, token)
	if err != nil {
		return nil, err
	}

	// Guest requests carry no token and have nothing to refresh.
	if status == http.StatusUnauthorized && allowRetry && c.tokens != nil && token != "" {
		newToken, refreshErr := c.tokens.Refresh(ctx)
		if refreshErr != nil {
			return nil, fmt.Errorf("token refresh failed: %w", refreshErr)
		}

		responseBody, status, err = c.doOnce(ctx, method, endpoint, body, newToken)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized && c.onAuthFailure != nil {
			c.onAuthFailure()
		}
	}

	if status < 200 || status >= 300 {
		return nil, &APIError{StatusCode: status, Detail: errorDetail(responseBody)}
	}

	return responseBody, nil
}

func (c *BaseClient) doOnce(ctx context.Context, method, endpoint string, body []byte, token string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	log.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Msg("api request")

	return responseBody, resp.StatusCode, nil
}

// errorDetail pulls the server's {"detail": "..."} field out of an error
// body, if there is one.
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Detail
}

func (c *BaseClient) Get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.MakeRequest(ctx, http.MethodGet, endpoint, nil)
}

func (c *BaseClient) Post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	return c.MakeRequest(ctx, http.MethodPost, endpoint, body)
}

func (c *BaseClient) Put(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	return c.MakeRequest(ctx, http.MethodPut, endpoint, body)
}

func (c *BaseClient) Delete(ctx context.Context, endpoint string) ([]byte, error) {
	return c.MakeRequest(ctx, http.MethodDelete, endpoint, nil)
}
