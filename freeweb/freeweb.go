// Package freeweb provides a zero-credential LLM client for a free-web
// gateway. The gateway speaks the OpenAI chat completions format and serves a
// fixed catalogue of model names.
package freeweb

import (
	"time"

	"github.com/xostack/xoswarm/openai"
)

const (
	// DefaultBaseURL is where a locally running gateway listens.
	DefaultBaseURL = "http://localhost:1337/v1"
	// DefaultModel is used when a requested model is not in the catalogue.
	DefaultModel   = "gpt-4"
	defaultTimeout = 60 * time.Second
	providerName   = "freeweb"
)

// Models lists the model identifiers the gateway is asked for.
var Models = []string{
	"gpt-4",
	"gpt-4o",
	"gpt-3.5-turbo",
	"llama-3-70b-chat",
	"mixtral-8x7b",
	"claude-3-opus",
	"gemini-pro",
}

// Lookup returns name when it is in the catalogue and DefaultModel otherwise.
func Lookup(name string) string {
	for _, m := range Models {
		if m == name {
			return m
		}
	}
	return DefaultModel
}

// Client is a chat completions client with no credential.
type Client struct {
	*openai.Client
}

// NewClient creates a free-web client. An empty baseURL means DefaultBaseURL
// and model is resolved through Lookup.
func NewClient(baseURL, model string, timeout time.Duration, opts ...openai.Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts = append([]openai.Option{openai.WithProviderName(providerName)}, opts...)
	c, err := openai.NewClient(baseURL, "", Lookup(model), timeout, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{Client: c}, nil
}
