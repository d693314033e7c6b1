// Package ollama provides an LLM client for Ollama inference servers.
package ollama

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

	"go.uber.org/zap"
)

const (
	defaultOllamaModel = "llama3"
	defaultTimeout     = 60 * time.Second
	providerName       = "ollama"
	generateAPIPath    = "/api/generate"
	tagsAPIPath        = "/api/tags"
)

// Client talks to a single Ollama server and model.
type Client struct {
	httpClient *http.Client
	baseURL    string // e.g., "http://localhost:11434"
	modelName  string
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTransport makes the client issue requests through rt, typically a
// transport shared by every client of one dispatch.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// generateRequest is the body of a non-streaming /api/generate call.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the /api/generate reply when stream is false.
type generateResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Response  string    `json:"response"`
	Done      bool      `json:"done"`
	Error     string    `json:"error,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewClient creates a new Ollama client.
// baseURL is the address of the Ollama server (e.g., "http://localhost:11434").
// modelOverride replaces the default model when non-empty. timeout bounds each
// request; values <= 0 use 60 seconds, which leaves room for cold model loads.
func NewClient(baseURL string, modelOverride string, timeout time.Duration, opts ...Option) (*Client, error) {
	cleanedBaseURL, err := cleanBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	modelToUse := defaultOllamaModel
	if modelOverride != "" {
		modelToUse = modelOverride
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cleanedBaseURL,
		modelName:  modelToUse,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "ollama"), zap.String("model", modelToUse))
	c.logger.Debug("ollama client ready", zap.String("base_url", cleanedBaseURL), zap.Duration("timeout", timeout))
	return c, nil
}

func cleanBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", fmt.Errorf("Ollama base URL is required")
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid Ollama base URL '%s': %w", baseURL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("Ollama base URL scheme must be http or https, got '%s'", parsedURL.Scheme)
	}
	cleaned := strings.TrimSuffix(parsedURL.String(), "/")
	// Accept the full generate URL as well as the base URL.
	return strings.TrimSuffix(cleaned, generateAPIPath), nil
}

// Generate sends the prompt to the Ollama model and returns the text response.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.httpClient == nil {
		return "", fmt.Errorf("Ollama client not initialized")
	}

	payloadBytes, err := json.Marshal(generateRequest{
		Model:  c.modelName,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal Ollama request payload: %w", err)
	}

	requestURL := c.baseURL + generateAPIPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create Ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", fmt.Errorf("Ollama request canceled: %w", ctx.Err())
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("Ollama request timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("failed to send request to Ollama server at %s: %w", requestURL, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read Ollama response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp generateResponse
		if json.Unmarshal(responseBody, &errResp) == nil && errResp.Error != "" {
			return "", fmt.Errorf("Ollama API error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return "", fmt.Errorf("Ollama API request failed with status %s. Raw: %s", resp.Status, string(responseBody))
	}

	var ollamaResp generateResponse
	if err := json.Unmarshal(responseBody, &ollamaResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal Ollama response JSON: %w. Raw response: %s", err, string(responseBody))
	}

	if ollamaResp.Error != "" {
		return "", fmt.Errorf("Ollama returned an error in response: %s", ollamaResp.Error)
	}

	if !ollamaResp.Done && ollamaResp.Response == "" {
		return "", fmt.Errorf("Ollama response indicates not done but no text was returned")
	}

	c.logger.Debug("ollama generate complete", zap.Int("chars", len(ollamaResp.Response)))
	return strings.TrimSpace(ollamaResp.Response), nil
}

// ListModels returns the names of the models the server has pulled.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tagsAPIPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama tags request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list Ollama models at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama tags request failed with status %s", resp.Status)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode Ollama tags: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// ProviderName returns the name of this provider.
func (c *Client) ProviderName() string {
	return providerName
}

// Model returns the model this client generates with.
func (c *Client) Model() string {
	return c.modelName
}

// BaseURL returns the normalised server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close is a no-op; the transport belongs to whoever supplied it.
func (c *Client) Close() error {
	return nil
}
