package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xostack/xoswarm"
)

// chatRequest is the JSON body accepted by every chat surface.
type chatRequest struct {
	Query               string           `json:"query"`
	OnlineModels        []string         `json:"online_models"`
	OfflineModels       []string         `json:"offline_models"`
	OllamaEndpoint      string           `json:"ollama_endpoint"`
	CustomProviders     []customProvider `json:"custom_providers"`
	UseMemory           *bool            `json:"use_memory"`
	SynthesizerModel    string           `json:"synthesizer_model"`
	SynthesizerEndpoint string           `json:"synthesizer_endpoint"`
}

// customProvider is a caller-configured OpenAI-compatible endpoint.
type customProvider struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
}

var errEmptyQuery = errors.New("query is required")

func decodeChatRequest(r io.Reader) (xoswarm.Request, error) {
	var body chatRequest
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return xoswarm.Request{}, fmt.Errorf("invalid request body: %w", err)
	}
	return body.toRequest()
}

func (c chatRequest) toRequest() (xoswarm.Request, error) {
	query := strings.TrimSpace(c.Query)
	if query == "" {
		return xoswarm.Request{}, errEmptyQuery
	}

	req := xoswarm.Request{
		Query:     query,
		Online:    trimmed(c.OnlineModels),
		UseMemory: c.UseMemory == nil || *c.UseMemory,
	}
	for _, m := range trimmed(c.OfflineModels) {
		req.Offline = append(req.Offline, xoswarm.LocalModel{Model: m, Endpoint: c.OllamaEndpoint})
	}
	for i, p := range c.CustomProviders {
		if p.BaseURL == "" {
			return xoswarm.Request{}, fmt.Errorf("custom_providers[%d]: base_url is required", i)
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("Custom (%s)", p.Model)
		}
		req.Custom = append(req.Custom, xoswarm.CustomSpec(name, p.BaseURL, p.APIKey, p.Model))
	}
	if c.SynthesizerModel != "" || c.SynthesizerEndpoint != "" {
		req.Synthesizer = &xoswarm.Target{Endpoint: c.SynthesizerEndpoint, Model: c.SynthesizerModel}
	}
	return req, nil
}
