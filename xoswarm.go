// Package xoswarm fans one query out to several LLM providers and merges the
// surviving answers into a single response.
//
// A Pipeline resolves the caller's provider selection into adapters, queries
// all of them concurrently, and hands the answers that did not fail to a
// synthesizer model. The synthesizer falls back from the primary local target
// to a cloud model and finally to a free-web gateway, so some answer is
// returned whenever any tier is reachable.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	p := xoswarm.NewPipeline(cfg, xoswarm.WithLogger(logger))
//	defer p.Close()
//
//	res := p.DispatchAndSynthesize(ctx, xoswarm.Request{
//		Query:   "What is AI?",
//		Online:  []string{"ChatGPT (OpenAI)", "Claude (Anthropic)"},
//		Offline: []xoswarm.LocalModel{{Model: "llama3"}},
//	})
//	fmt.Println(res.FinalAnswer)
//
// Provider failures never surface as Go errors. They are recorded in the
// response map as text beginning with "Error", which the synthesizer skips.
package xoswarm

import (
	"context"
	"strings"
)

// Client is the interface that all LLM provider clients implement.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Generate takes a context and a prompt string and returns the LLM's
	// response string. Network errors, authentication failures and empty
	// responses are returned as errors.
	Generate(ctx context.Context, prompt string) (string, error)

	// ProviderName returns a lowercase, stable identifier for the provider
	// (e.g. "openai", "ollama").
	ProviderName() string

	// Close releases any resources held by the client.
	Close() error
}

// Instructed is implemented by chat-style clients that can send a system
// instruction separately from the user prompt.
type Instructed interface {
	GenerateWithSystem(ctx context.Context, system, prompt string) (string, error)
}

// errorPrefix marks a response map value as a failure. The check is
// case-sensitive.
const errorPrefix = "Error"

// IsError reports whether a response map value records a failure.
func IsError(text string) bool {
	return strings.HasPrefix(text, errorPrefix)
}

// ResponseMap maps a provider display name to its answer or error text.
type ResponseMap map[string]string
