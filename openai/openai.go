// Package openai provides an LLM client for OpenAI-compatible chat completion
// APIs. The same client serves OpenAI itself, Perplexity, Groq, self-hosted
// gateways and any other endpoint that speaks the chat completions format.
package openai

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
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL  = "https://api.openai.com/v1"
	defaultModel    = "gpt-4o"
	defaultTimeout  = 30 * time.Second
	providerName    = "openai"
	completionsPath = "/chat/completions"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client implements chat completions against one endpoint and model.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	modelName  string
	name       string
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

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProviderName overrides the value returned by ProviderName, so one
// implementation can stand in for several vendors.
func WithProviderName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
	}
}

type chatCompletionRequest struct {
	Messages []Message `json:"messages"`
	Model    string    `json:"model"`
	Stream   bool      `json:"stream"`
}

type chatCompletionChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   usage                  `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code,omitempty"`
	} `json:"error,omitempty"`
}

// NewClient creates a chat completions client.
//
// baseURL is the API root (e.g. "https://api.openai.com/v1"); empty means
// DefaultBaseURL. A base URL already ending in /chat/completions is used as is.
// apiKey may be empty for endpoints that do not authenticate.
func NewClient(baseURL, apiKey, modelOverride string, timeout time.Duration, opts ...Option) (*Client, error) {
	endpoint, err := completionsEndpoint(baseURL)
	if err != nil {
		return nil, err
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
		endpoint:   endpoint,
		apiKey:     apiKey,
		modelName:  modelToUse,
		name:       providerName,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", c.name), zap.String("model", modelToUse))
	return c, nil
}

func completionsEndpoint(baseURL string) (string, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL '%s': %w", baseURL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("base URL scheme must be http or https, got '%s'", parsedURL.Scheme)
	}
	cleaned := strings.TrimSuffix(parsedURL.String(), "/")
	if strings.HasSuffix(cleaned, completionsPath) {
		return cleaned, nil
	}
	return cleaned + completionsPath, nil
}

// Generate sends prompt as a single user message.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.Chat(ctx, []Message{{Role: "user", Content: prompt}})
}

// GenerateWithSystem sends system as a system message followed by prompt as
// the user message.
func (c *Client) GenerateWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return c.Chat(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	})
}

// Chat sends messages and returns the first choice's content.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	if c.httpClient == nil {
		return "", fmt.Errorf("%s client not initialized", c.name)
	}

	payloadBytes, err := json.Marshal(chatCompletionRequest{
		Messages: messages,
		Model:    c.modelName,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s request payload: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create %s request: %w", c.name, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s request timed out: %w", c.name, ctx.Err())
		}
		return "", fmt.Errorf("failed to send request to %s API: %w", c.name, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s response body: %w", c.name, err)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(responseBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal %s response JSON: %w. Status: %s, Body: %s", c.name, err, resp.Status, string(responseBody))
	}

	// A JSON error object is more specific than the status line.
	if chatResp.Error != nil {
		return "", fmt.Errorf("%s API error: %s (Type: %s). HTTP Status: %s", c.name, chatResp.Error.Message, chatResp.Error.Type, resp.Status)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s API request failed with status %s. Body: %s", c.name, resp.Status, string(responseBody))
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		finish := "N/A"
		if len(chatResp.Choices) > 0 {
			finish = chatResp.Choices[0].FinishReason
		}
		c.logger.Debug("empty completion",
			zap.String("id", chatResp.ID),
			zap.String("finish_reason", finish),
			zap.Int("total_tokens", chatResp.Usage.TotalTokens))
		return "", fmt.Errorf("%s response contained no choices or empty message content. HTTP Status: %s", c.name, resp.Status)
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// ProviderName returns the name of this provider.
func (c *Client) ProviderName() string {
	return c.name
}

// Model returns the model this client requests.
func (c *Client) Model() string {
	return c.modelName
}

// Close is a no-op.
func (c *Client) Close() error {
	return nil
}
