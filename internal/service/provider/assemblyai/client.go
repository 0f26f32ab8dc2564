package assemblyai

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

	"github.com/HienH/sale-smell/internal/service/provider"
	"github.com/HienH/sale-smell/internal/validation"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.assemblyai.com"

// Config contains AssemblyAI client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements provider.API over the AssemblyAI REST API.
type Client struct {
	config     Config
	httpClient *http.Client
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type createResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// New creates an AssemblyAI client. A missing API key is a construction
// error.
func New(config Config) (*Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("assemblyai: API key cannot be empty")
	}

	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("assemblyai: invalid base URL %q: %w", config.BaseURL, err)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Name implements provider.API.
func (c *Client) Name() string {
	return "assemblyai"
}

// Upload sends the raw audio bytes to the upload endpoint.
func (c *Client) Upload(ctx context.Context, audio *validation.Audio) (string, error) {
	var resp uploadResponse
	if err := c.do(ctx, http.MethodPost, "/v2/upload", "application/octet-stream", bytes.NewReader(audio.Data), &resp); err != nil {
		return "", err
	}
	if resp.UploadURL == "" {
		return "", errors.New("upload response missing upload_url")
	}
	return resp.UploadURL, nil
}

// CreateJob submits a transcription job.
func (c *Client) CreateJob(ctx context.Context, req provider.JobRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job request: %w", err)
	}

	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetJob fetches the full job record.
func (c *Client) GetJob(ctx context.Context, jobID string) (*provider.JobRecord, error) {
	var record provider.JobRecord
	if err := c.do(ctx, http.MethodGet, "/v2/transcript/"+url.PathEscape(jobID), "", nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// do performs a single HTTP request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Authorization", c.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "sale-smell/1.0")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &provider.StatusError{Code: resp.StatusCode, Body: errorMessage(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}

// errorMessage prefers the API's {"error": "..."} field over the raw body.
func errorMessage(body []byte) string {
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	return string(body)
}
