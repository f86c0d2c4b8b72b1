package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lifeyhq/lifey-core/internal/config"
	"github.com/lifeyhq/lifey-core/internal/models"
	"github.com/lifeyhq/lifey-core/pkg/logger"
)

// Client talks to the remote assistant-run service (OpenAI Assistants
// v2 wire format). Run state lives entirely on the remote side; the
// client only observes it, except for the submit-tool-outputs call.
type Client struct {
	baseURL     string
	apiKey      string
	assistantID string
	client      *http.Client
}

// NewClient creates an assistant client from config. Credentials are
// validated at startup, not here.
func NewClient(cfg *config.AssistantConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		assistantID: cfg.AssistantID,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

// AssistantID returns the configured assistant id.
func (c *Client) AssistantID() string {
	return c.assistantID
}

// CreateThread creates a new conversation thread.
func (c *Client) CreateThread(ctx context.Context) (*models.Thread, error) {
	var thread models.Thread
	if err := c.do(ctx, http.MethodPost, "/threads", struct{}{}, &thread); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	logger.Debug("thread created", zap.String("thread_id", thread.ID))
	return &thread, nil
}

// CreateMessage adds a user message to a thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, content string) error {
	body := models.MessageRequest{Role: "user", Content: content}
	path := fmt.Sprintf("/threads/%s/messages", threadID)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// RetrieveRun fetches the current state of a run.
func (c *Client) RetrieveRun(ctx context.Context, threadID, runID string) (*models.Run, error) {
	var run models.Run
	path := fmt.Sprintf("/threads/%s/runs/%s", threadID, runID)
	if err := c.do(ctx, http.MethodGet, path, nil, &run); err != nil {
		return nil, fmt.Errorf("failed to retrieve run: %w", err)
	}
	return &run, nil
}

// SubmitToolOutputs submits the full set of tool outputs for a run.
// The remote API does not support partial submission.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []models.ToolOutput) (*models.Run, error) {
	var run models.Run
	body := models.ToolOutputsRequest{ToolOutputs: outputs}
	path := fmt.Sprintf("/threads/%s/runs/%s/submit_tool_outputs", threadID, runID)
	if err := c.do(ctx, http.MethodPost, path, body, &run); err != nil {
		return nil, fmt.Errorf("failed to submit tool outputs: %w", err)
	}

	logger.Debug("tool outputs submitted",
		zap.String("run_id", runID),
		zap.Int("output_count", len(outputs)),
		zap.String("status", string(run.Status)),
	)
	return &run, nil
}

// StreamRun starts a streamed run on the thread and returns the event
// stream. The caller owns the stream and must close it.
func (c *Client) StreamRun(ctx context.Context, threadID string) (*RunStream, error) {
	body := models.RunRequest{AssistantID: c.assistantID, Stream: true}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run request: %w", err)
	}

	url := fmt.Sprintf("%s/threads/%s/runs", c.baseURL, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	// Streaming requests must not be bound by the per-request timeout.
	resp, err := c.streamClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to start run stream: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, respBody)
	}

	return NewRunStream(resp.Body), nil
}

// do performs one JSON request/response round trip.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
}

// streamClient is the transport used for SSE runs: same transport, no
// overall timeout.
func (c *Client) streamClient() *http.Client {
	return &http.Client{Transport: c.client.Transport}
}

// apiError extracts the service's error envelope when present.
func apiError(status int, body []byte) error {
	var envelope models.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("assistant service error: status %d: %s", status, envelope.Error.Message)
	}
	return fmt.Errorf("assistant service error: status %d, body: %s", status, string(body))
}
