package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/lifeyhq/lifey-core/internal/config"
	"github.com/lifeyhq/lifey-core/pkg/logger"
)

// Client performs search requests against the SerpAPI endpoint.
type Client struct {
	baseURL string
	timeout int
	client  *http.Client
}

// NewClient creates a SerpAPI client from config.
func NewClient(cfg *config.SearchConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://serpapi.com"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30
	}

	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

// Search executes the selection against the provider and returns the
// raw engine-specific JSON payload.
func (c *Client) Search(ctx context.Context, sel Selection) (json.RawMessage, error) {
	values := url.Values{}
	values.Set("engine", sel.Engine)
	values.Set("q", sel.Query)
	for k, v := range sel.Params {
		values.Set(k, v)
	}

	reqURL := fmt.Sprintf("%s/search.json?%s", c.baseURL, values.Encode())

	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	logger.Debug("serpapi response",
		zap.String("engine", sel.Engine),
		zap.Int("status", resp.StatusCode),
		zap.Int("body_bytes", len(body)),
	)

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("search provider error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Service ties engine selection, provider execution and normalization
// together for callers that want the full chain.
type Service struct {
	selector *EngineSelector
	client   *Client
	enabled  bool
}

// NewService creates the search service from config.
func NewService(cfg *config.SearchConfig) *Service {
	s := &Service{
		selector: NewEngineSelector(cfg.APIKey, cfg.Location),
		client:   NewClient(cfg),
		enabled:  cfg.Enabled,
	}

	logger.Info("search service initialized",
		zap.Bool("enabled", cfg.Enabled),
		zap.String("location", cfg.Location),
	)

	return s
}

// Enabled reports whether search is configured on.
func (s *Service) Enabled() bool {
	return s.enabled
}

// SelectEngine exposes pure engine selection.
func (s *Service) SelectEngine(query string) (Selection, error) {
	return s.selector.Select(query)
}

// SelectionFor exposes explicit-engine selection.
func (s *Service) SelectionFor(engine, query string) Selection {
	return s.selector.SelectionFor(engine, query)
}

// Execute runs a prepared selection against the provider.
func (s *Service) Execute(ctx context.Context, sel Selection) (json.RawMessage, error) {
	if !s.enabled {
		return nil, fmt.Errorf("search is disabled")
	}
	return s.client.Search(ctx, sel)
}
