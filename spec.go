package xoswarm

import (
	"fmt"
	"strings"

	"github.com/xostack/xoswarm/config"
	"github.com/xostack/xoswarm/openai"
)

// Kind selects which adapter a ProviderSpec resolves to.
type Kind int

const (
	// KindHosted is one of the built-in cloud APIs named by Hosted.
	KindHosted Kind = iota
	// KindOpenAICompatible is a caller-configured chat completions endpoint.
	KindOpenAICompatible
	// KindLocal is an Ollama-style local inference server.
	KindLocal
	// KindFreeWeb is the zero-credential free-web gateway.
	KindFreeWeb
)

func (k Kind) String() string {
	switch k {
	case KindHosted:
		return "hosted"
	case KindOpenAICompatible:
		return "openai_compatible"
	case KindLocal:
		return "local"
	case KindFreeWeb:
		return "free_web"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Hosted identifies a built-in cloud API.
type Hosted int

const (
	HostedNone Hosted = iota
	HostedOpenAI
	HostedAnthropic
	HostedGemini
	HostedPerplexity
	HostedGroq
)

type hostedInfo struct {
	display   string // response map key
	selector  string // name offered to callers
	configKey string // [llms] table key
	baseURL   string // chat completions root, OpenAI-compatible APIs only
	model     string
}

var hostedCatalogue = map[Hosted]hostedInfo{
	HostedOpenAI: {
		display:   "ChatGPT",
		selector:  "ChatGPT (OpenAI)",
		configKey: config.ProviderOpenAI,
		baseURL:   openai.DefaultBaseURL,
		model:     "gpt-4o",
	},
	HostedAnthropic: {
		display:   "Claude",
		selector:  "Claude (Anthropic)",
		configKey: config.ProviderAnthropic,
	},
	HostedGemini: {
		display:   "Gemini",
		selector:  "Gemini (Google)",
		configKey: config.ProviderGemini,
	},
	HostedPerplexity: {
		display:   "Perplexity",
		selector:  "Perplexity",
		configKey: config.ProviderPerplexity,
		baseURL:   "https://api.perplexity.ai",
		model:     "llama-3-sonar-large-32k-online",
	},
	HostedGroq: {
		display:   "Groq",
		selector:  "Groq",
		configKey: config.ProviderGroq,
		baseURL:   "https://api.groq.com/openai/v1",
		model:     "gemma2-9b-it",
	},
}

// hostedOrder fixes the listing order of OnlineProviders.
var hostedOrder = []Hosted{HostedOpenAI, HostedAnthropic, HostedGemini, HostedPerplexity, HostedGroq}

// ProviderSpec describes one provider to query in a dispatch. Which fields
// matter depends on Kind:
//
//   - KindHosted: Hosted; APIKey and Model override the configuration.
//   - KindOpenAICompatible: BaseURL, optional APIKey, Model.
//   - KindLocal: BaseURL (empty means the configured Ollama URL), Model.
//   - KindFreeWeb: Model, looked up in the free-web catalogue.
//
// Name is the display name the result is recorded under.
type ProviderSpec struct {
	Name    string
	Kind    Kind
	Hosted  Hosted
	BaseURL string
	APIKey  string
	Model   string
}

// LocalModel is a model served by a local inference endpoint. An empty
// Endpoint means the configured Ollama URL.
type LocalModel struct {
	Model    string `json:"model"`
	Endpoint string `json:"endpoint,omitempty"`
}

// HostedSpec returns the spec of a built-in cloud API.
func HostedSpec(h Hosted) ProviderSpec {
	return ProviderSpec{Name: hostedCatalogue[h].display, Kind: KindHosted, Hosted: h}
}

// LocalSpec returns the spec of a local inference model, displayed as
// "Ollama (<model>)".
func LocalSpec(m LocalModel) ProviderSpec {
	return ProviderSpec{
		Name:    fmt.Sprintf("Ollama (%s)", m.Model),
		Kind:    KindLocal,
		BaseURL: m.Endpoint,
		Model:   m.Model,
	}
}

// CustomSpec returns the spec of a caller-configured OpenAI-compatible API.
func CustomSpec(name, baseURL, apiKey, model string) ProviderSpec {
	return ProviderSpec{Name: name, Kind: KindOpenAICompatible, BaseURL: baseURL, APIKey: apiKey, Model: model}
}

// FreeWebSpec returns the spec of a direct free-web gateway query.
func FreeWebSpec(name, model string) ProviderSpec {
	return ProviderSpec{Name: name, Kind: KindFreeWeb, Model: model}
}

// LookupOnline maps a selection name such as "Claude (Anthropic)" or "Claude"
// to the hosted provider's spec. Matching ignores case and surrounding space.
func LookupOnline(name string) (ProviderSpec, bool) {
	name = strings.TrimSpace(name)
	for _, h := range hostedOrder {
		info := hostedCatalogue[h]
		if strings.EqualFold(name, info.selector) || strings.EqualFold(name, info.display) {
			return HostedSpec(h), true
		}
	}
	return ProviderSpec{}, false
}

// OnlineProviders lists the selection names of the built-in cloud APIs.
func OnlineProviders() []string {
	names := make([]string, 0, len(hostedOrder))
	for _, h := range hostedOrder {
		names = append(names, hostedCatalogue[h].selector)
	}
	return names
}
