// Package gemini provides an LLM client for Google's Gemini models.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultGeminiModel = "gemini-pro"
	defaultTimeout     = 30 * time.Second
	providerName       = "gemini"
)

// Client generates text with one Gemini model.
//
// The SDK owns its HTTP transport, so a Client does not take part in the
// per-dispatch connection pool; Close releases the SDK's connections.
type Client struct {
	genaiClient *genai.Client
	modelName   string
	timeout     time.Duration
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*settings)

type settings struct {
	logger     *zap.Logger
	clientOpts []option.ClientOption
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClientOptions passes extra options to the SDK, such as an endpoint
// override.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// NewClient creates a new Gemini client. apiKey is required; timeout bounds
// every Generate call and defaults to 30 seconds.
func NewClient(ctx context.Context, apiKey string, modelOverride string, timeout time.Duration, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	s := settings{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, s.clientOpts...)
	genaiClient, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		s.logger.Error("initializing Google GenAI client failed", zap.Error(err))
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	modelToUse := defaultGeminiModel
	if modelOverride != "" {
		modelToUse = modelOverride
	}

	return &Client{
		genaiClient: genaiClient,
		modelName:   modelToUse,
		timeout:     timeout,
		logger:      s.logger.With(zap.String("component", providerName), zap.String("model", modelToUse)),
	}, nil
}

// Generate sends the prompt to the Gemini model and returns the text response.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.genaiClient == nil {
		return "", fmt.Errorf("Gemini client not initialized")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.genaiClient.GenerativeModel(c.modelName)
	if model == nil {
		return "", fmt.Errorf("failed to get generative model: %s", c.modelName)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from Gemini: %w", err)
	}

	return extractText(resp, c.logger)
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse, logger *zap.Logger) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("Gemini response was empty or malformed")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
			return "", fmt.Errorf("Gemini content generation blocked due to safety settings")
		}
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", fmt.Errorf("Gemini prompt blocked: %s", resp.PromptFeedback.BlockReason.String())
		}
		return "", fmt.Errorf("Gemini response was empty or malformed")
	}

	var resultText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			resultText.WriteString(string(txt))
		} else {
			logger.Debug("ignoring non-text part", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}

	if resultText.Len() == 0 {
		return "", fmt.Errorf("Gemini response contained no usable text content")
	}
	return resultText.String(), nil
}

// ProviderName returns the name of this provider.
func (c *Client) ProviderName() string {
	return providerName
}

// Close cleans up the genaiClient.
func (c *Client) Close() error {
	if c.genaiClient != nil {
		return c.genaiClient.Close()
	}
	return nil
}
