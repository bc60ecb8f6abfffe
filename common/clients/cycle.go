package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CycleClient drives the raffle trigger endpoint
// It uses context to pass the bearer token
type CycleClient struct {
	baseURL string
	http    *HTTPClient
	logger  Logger
}

// NewCycleClient creates a new cycle client
func NewCycleClient(baseURL string, timeout time.Duration, logger Logger) *CycleClient {
	return &CycleClient{
		baseURL: baseURL,
		http:    NewHTTPClient(&http.Client{Timeout: timeout}, logger),
		logger:  logger,
	}
}

// TriggerResponse is the raw outcome of one trigger call
type TriggerResponse struct {
	StatusCode int
	Body       json.RawMessage
}

// Trigger posts an action to /api/v1/cycle
// Requires: ctx with a token set via WithBearerToken()
func (c *CycleClient) Trigger(ctx context.Context, action string) (*TriggerResponse, error) {
	payload, err := json.Marshal(map[string]string{"action": action})
	if err != nil {
		return nil, fmt.Errorf("failed to encode trigger request: %w", err)
	}

	url := c.baseURL + "/api/v1/cycle"
	c.logger.Info("triggering cycle action", "action", action, "url", url)

	resp, err := c.http.DoRequest(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to call trigger endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger response: %w", err)
	}

	c.logger.Info("cycle action finished", "action", action, "status", resp.StatusCode)
	return &TriggerResponse{StatusCode: resp.StatusCode, Body: body}, nil
}
