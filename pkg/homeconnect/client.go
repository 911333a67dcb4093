package homeconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	acceptMediaType = "application/vnd.bsh.sdk.v1+json"

	// Cooldown applied locally after a 429 response. Short because the
	// Retry-After of a plain 429 is uncertain; the stream-embedded signal
	// carries its own, much longer duration.
	http429Cooldown = 60 * time.Second
)

// Client performs authenticated calls against the Home Connect API with
// uniform error handling. Safe for concurrent use; commands for several
// appliances may be in flight at once.
type Client struct {
	http    *http.Client
	baseURL string
	locale  string
	tokens  TokenSource
	rate    *RateTracker
	logger  *zap.Logger
}

func NewClient(baseURL, locale string, tokens TokenSource, rate *RateTracker, logger *zap.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		locale:  locale,
		tokens:  tokens,
		rate:    rate,
		logger:  logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get performs an authenticated GET and returns the response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.call(ctx, http.MethodGet, path, nil)
}

// Put performs an authenticated PUT with a `{"data": ...}` wrapped body.
// Refused outright while the rate tracker reports an active cooldown.
func (c *Client) Put(ctx context.Context, path string, data any) error {
	if c.rate.IsCoolingDown() {
		return fmt.Errorf("%w: cooling down until %s", ErrRateLimited,
			c.rate.CooldownUntil().Format(time.RFC3339))
	}
	body, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return err
	}
	_, err = c.call(ctx, http.MethodPut, path, body)
	return err
}

// Delete performs an authenticated DELETE. Same cooldown pre-flight as Put.
func (c *Client) Delete(ctx context.Context, path string) error {
	if c.rate.IsCoolingDown() {
		return fmt.Errorf("%w: cooling down until %s", ErrRateLimited,
			c.rate.CooldownUntil().Format(time.RFC3339))
	}
	_, err := c.call(ctx, http.MethodDelete, path, nil)
	return err
}

func (c *Client) call(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil || token == "" {
		return nil, fmt.Errorf("%w: %v", ErrNoToken, err)
	}

	data, status, err := c.do(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		// One refresh, one retry. A second 401 surfaces as failure.
		c.logger.Debug("got 401, refreshing token", zap.String("path", path))
		token, err = c.tokens.Refresh(ctx)
		if err != nil || token == "" {
			return nil, fmt.Errorf("%w: token refresh failed: %v", ErrUnauthorized, err)
		}
		data, status, err = c.do(ctx, method, path, body, token)
		if err != nil {
			return nil, err
		}
	}
	return c.classify(method, path, status, data)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, token string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", acceptMediaType)
	req.Header.Set("Accept-Language", c.locale)
	if body != nil {
		req.Header.Set("Content-Type", acceptMediaType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	c.rate.RecordHeaders(resp.Header)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}

func (c *Client) classify(method, path string, status int, data []byte) ([]byte, error) {
	if status >= 200 && status < 300 {
		return data, nil
	}

	apiErr := &APIError{StatusCode: status, Body: string(data)}
	var wrapper struct {
		Error struct {
			Key         string `json:"key"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &wrapper) == nil {
		apiErr.Key = wrapper.Error.Key
		apiErr.Descr = wrapper.Error.Description
	}

	switch status {
	case http.StatusUnauthorized:
		c.logger.Error("request unauthorized after token refresh", zap.String("path", path))
		return nil, apiErr
	case http.StatusNotFound:
		if method == http.MethodGet && strings.HasSuffix(path, "/programs/active") {
			// Expected "nothing running" condition, not a failure.
			return nil, ErrNoActiveProgram
		}
		c.logger.Warn("resource not found", zap.String("path", path), zap.String("body", apiErr.Body))
		return nil, apiErr
	case http.StatusConflict:
		c.logger.Warn("command rejected by appliance state",
			zap.String("path", path), zap.String("description", apiErr.Descr))
		return nil, apiErr
	case http.StatusTooManyRequests:
		c.rate.RecordExhausted(http429Cooldown)
		c.logger.Warn("rate limit hit, cooling down",
			zap.String("path", path), zap.Duration("cooldown", http429Cooldown))
		return nil, apiErr
	case http.StatusServiceUnavailable:
		c.logger.Warn("appliance offline", zap.String("path", path))
		return nil, apiErr
	default:
		c.logger.Error("api request failed", zap.String("method", method),
			zap.String("path", path), zap.Int("status", status), zap.String("body", apiErr.Body))
		return nil, apiErr
	}
}

// GetAppliances lists all appliances paired with the account.
func (c *Client) GetAppliances(ctx context.Context) ([]ApplianceInfo, error) {
	body, err := c.Get(ctx, "/api/homeappliances")
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Data struct {
			Homeappliances []ApplianceInfo `json:"homeappliances"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Data.Homeappliances, nil
}
