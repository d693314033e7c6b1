// Package anthropic provides an LLM client for Anthropic's messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultEndpoint is the messages API URL.
	DefaultEndpoint  = "https://api.anthropic.com/v1/messages"
	defaultModel     = "claude-3-opus-20240229"
	defaultMaxTokens = 1024
	defaultTimeout   = 30 * time.Second
	apiVersion       = "2023-06-01"
	providerName     = "anthropic"
)

// Client implements the messages API for one model.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	modelName  string
	maxTokens  int
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTransport makes the client issue requests through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithEndpoint points the client at a different messages URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
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

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClient creates an Anthropic client. apiKey is required.
func NewClient(apiKey string, modelOverride string, timeout time.Duration, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	modelToUse := defaultModel
	if modelOverride != "" {
		modelToUse = modelOverride
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   DefaultEndpoint,
		apiKey:     apiKey,
		modelName:  modelToUse,
		maxTokens:  defaultMaxTokens,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", providerName), zap.String("model", modelToUse))
	return c, nil
}

// Generate sends prompt as a single user message.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.send(ctx, "", prompt)
}

// GenerateWithSystem sends system in the top-level system field.
func (c *Client) GenerateWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return c.send(ctx, system, prompt)
}

func (c *Client) send(ctx context.Context, system, prompt string) (string, error) {
	if c.httpClient == nil {
		return "", fmt.Errorf("anthropic client not initialized")
	}

	payloadBytes, err := json.Marshal(messagesRequest{
		Model:     c.modelName,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal anthropic request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create anthropic request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("anthropic request timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("failed to send request to anthropic API: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read anthropic response body: %w", err)
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(responseBody, &msgResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal anthropic response JSON: %w. Status: %s, Body: %s", err, resp.Status, string(responseBody))
	}
	if msgResp.Error != nil {
		return "", fmt.Errorf("anthropic API error: %s (Type: %s). HTTP Status: %s", msgResp.Error.Message, msgResp.Error.Type, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic API request failed with status %s. Body: %s", resp.Status, string(responseBody))
	}

	if len(msgResp.Content) == 0 || msgResp.Content[0].Text == "" {
		c.logger.Debug("empty message", zap.String("id", msgResp.ID), zap.String("stop_reason", msgResp.StopReason))
		return "", fmt.Errorf("anthropic response contained no text content. HTTP Status: %s", resp.Status)
	}

	return strings.TrimSpace(msgResp.Content[0].Text), nil
}

// ProviderName returns the name of this provider.
func (c *Client) ProviderName() string {
	return providerName
}

// Close is a no-op.
func (c *Client) Close() error {
	return nil
}
