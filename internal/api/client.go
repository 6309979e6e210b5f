package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"contabile/internal/log"
	"contabile/internal/token"
)

const defaultTimeout = 30 * time.Second

// Config holds client configuration.
type Config struct {
	// BaseURL is the root of the accounting service API.
	BaseURL string

	// Timeout applies to each request. Zero means defaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the transport. When nil a client with a cookie
	// jar is created; the jar carries the httpOnly refresh-token cookie the
	// server sets on sign-in.
	HTTPClient *http.Client
}

// Client issues authenticated requests against the accounting service.
// Every outbound call carries the current access token when one is stored,
// and a request rejected with 401 is replayed once after a token refresh.
type Client struct {
	base    *url.URL
	http    *http.Client
	tokens  token.Store
	logger  *log.Logger
	refresh singleflight.Group
}

func New(cfg Config, tokens token.Store, logger *log.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Jar:     jar,
			Timeout: timeout,
		}
	}

	return &Client{
		base:   base,
		http:   httpClient,
		tokens: tokens,
		logger: logger.WithComponent(log.ComponentGateway),
	}, nil
}

// Do sends one request and decodes the JSON response body into out (when out
// is non-nil). On a 401 it refreshes the access token once and replays the
// original request with whatever token is current at replay time. A failed
// refresh surfaces the original 401; a second 401 after the replay is
// returned as-is. The retry budget is a per-call local, so concurrent
// requests obey the one-retry rule independently.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	retried := false
	for {
		err := c.send(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if !IsAuthorization(err) || retried {
			return err
		}

		if refreshErr := c.refreshToken(ctx); refreshErr != nil {
			c.logger.WarnContext(ctx, "token refresh failed",
				log.FieldMethod, method,
				log.FieldPath, path,
				log.FieldError, refreshErr)
			// The caller sees the original authorization failure, not
			// the refresh error.
			return err
		}

		retried = true
		c.logger.DebugContext(ctx, "replaying request after refresh",
			log.FieldMethod, method,
			log.FieldPath, path)
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok, ok := c.tokens.Get(); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Err: err}
	}

	if resp.StatusCode >= 400 {
		return &APIError{
			Status:  resp.StatusCode,
			Message: errorMessage(data),
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

// authPayload is the shape returned by the endpoints that issue tokens.
type authPayload struct {
	AccessToken string `json:"accessToken"`
}

// refreshToken exchanges the refresh-token cookie for a new access token and
// stores it. Concurrent refreshes triggered by independent requests are
// coalesced; either way each request re-reads the store before its replay.
func (c *Client) refreshToken(ctx context.Context) error {
	tok, err, _ := c.refresh.Do("refresh", func() (any, error) {
		var auth authPayload
		if err := c.send(ctx, http.MethodGet, "/refresh", nil, &auth); err != nil {
			return "", err
		}
		if auth.AccessToken == "" {
			return "", fmt.Errorf("refresh returned empty token")
		}
		return auth.AccessToken, nil
	})
	if err != nil {
		return err
	}
	if err := c.tokens.Set(tok.(string)); err != nil {
		return fmt.Errorf("store refreshed token: %w", err)
	}
	c.logger.DebugContext(ctx, "access token refreshed")
	return nil
}

func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}
