// internal/client/client.go
package client

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

	"github.com/MereWhiplash/phrase-embedder/internal/apitypes"
	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

// Client is an HTTP client for the embedding API
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a new API client
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.http.Do(req)
}

func apiError(resp *http.Response) error {
	var errResp apitypes.ErrorResponse
	json.NewDecoder(resp.Body).Decode(&errResp)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", types.ErrNotFound, errResp.Error)
	case http.StatusConflict:
		return types.ErrRunInProgress
	}
	if errResp.Error == "" {
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", errResp.Error)
}

// Health reports whether the API and its storage are reachable
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "GET", "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Status returns coverage for model, or the server's model when empty
func (c *Client) Status(ctx context.Context, model string) (*apitypes.StatusResponse, error) {
	path := "/v1/status"
	if model != "" {
		path += "?model=" + url.QueryEscape(model)
	}

	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var result apitypes.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Status == nil {
		return nil, errors.New("API returned no status")
	}
	return &result, nil
}

// StartRun asks the server to start a background run
func (c *Client) StartRun(ctx context.Context, maxBatches int) (*types.Run, error) {
	resp, err := c.doRequest(ctx, "POST", "/v1/runs", apitypes.StartRunRequest{MaxBatches: maxBatches})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, apiError(resp)
	}

	var result apitypes.RunResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Run, nil
}

// GetRun fetches a run record
func (c *Client) GetRun(ctx context.Context, id string) (*types.Run, error) {
	resp, err := c.doRequest(ctx, "GET", "/v1/runs/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var result apitypes.RunResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Run, nil
}
