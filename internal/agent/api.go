package agent

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
	"sync"
	"time"

	"github.com/EternisAI/netboot/internal/api/http/dto"
)

// ErrUnauthorized means the server no longer accepts the stored token.
var ErrUnauthorized = errors.New("token rejected by server")

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// apiClient speaks the /api/v1/client protocol.
type apiClient struct {
	http  *http.Client
	retry *retrier

	mu      sync.RWMutex
	baseURL string
	token   string
}

func newAPIClient(baseURL string, timeout time.Duration, retry *retrier) *apiClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &apiClient{
		http:    &http.Client{Timeout: timeout},
		retry:   retry,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *apiClient) setBaseURL(u string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(u, "/")
	c.mu.Unlock()
}

func (c *apiClient) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *apiClient) register(ctx context.Context, req dto.RegisterRequest) (*dto.RegisterResponse, error) {
	var resp dto.RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/client/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) heartbeat(ctx context.Context, req dto.HeartbeatRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/client/heartbeat", req, nil)
}

func (c *apiClient) stats(ctx context.Context, req dto.StatsRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/client/stats", req, nil)
}

func (c *apiClient) commands(ctx context.Context, clientID string) ([]dto.CommandResponse, error) {
	var resp dto.CommandsResponse
	path := "/api/v1/client/commands?client_id=" + url.QueryEscape(clientID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Commands, nil
}

func (c *apiClient) ack(ctx context.Context, commandID, clientID string) error {
	path := "/api/v1/client/commands/" + url.PathEscape(commandID) + "/ack"
	return c.do(ctx, http.MethodPost, path, dto.AckRequest{ClientID: clientID}, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	return c.retry.do(ctx, method+" "+path, func() error {
		c.mu.RLock()
		target, token := c.baseURL+path, c.token
		c.mu.RUnlock()

		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			var e dto.ErrorResponse
			_ = json.Unmarshal(data, &e)
			return &StatusError{Code: resp.StatusCode, Message: e.Error}
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	})
}
