package xoswarm

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/xostack/xoswarm/anthropic"
	"github.com/xostack/xoswarm/config"
	"github.com/xostack/xoswarm/freeweb"
	"github.com/xostack/xoswarm/gemini"
	"github.com/xostack/xoswarm/ollama"
	"github.com/xostack/xoswarm/openai"
)

// Resolver turns a ProviderSpec into a ready adapter. Resolution builds
// clients only; it makes no network calls.
type Resolver interface {
	Resolve(ctx context.Context, spec ProviderSpec) Adapter
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, spec ProviderSpec) Adapter

// Resolve calls f(ctx, spec).
func (f ResolverFunc) Resolve(ctx context.Context, spec ProviderSpec) Adapter {
	return f(ctx, spec)
}

// Factory resolves specs against a configuration. Every HTTP client it builds
// shares one transport.
type Factory struct {
	cfg       config.Config
	transport http.RoundTripper
	logger    *zap.Logger
}

// NewFactory returns a Factory whose clients send requests through rt.
func NewFactory(cfg config.Config, rt http.RoundTripper, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, transport: rt, logger: logger.With(zap.String("component", "factory"))}
}

// Resolve builds the adapter for spec. A hosted provider without a credential
// is replaced by a free-web client answering under the same name, or fails
// with "no API key configured" when the free-web gateway is disabled.
func (f *Factory) Resolve(ctx context.Context, spec ProviderSpec) Adapter {
	name := spec.Name
	if name == "" {
		name = spec.Kind.String()
	}

	switch spec.Kind {
	case KindHosted:
		return f.resolveHosted(ctx, name, spec)
	case KindOpenAICompatible:
		client, err := openai.NewClient(spec.BaseURL, spec.APIKey, spec.Model, f.cfg.CloudTimeout(),
			openai.WithTransport(f.transport), openai.WithLogger(f.logger), openai.WithProviderName(name))
		return f.adapter(name, client, err)
	case KindLocal:
		baseURL := spec.BaseURL
		if baseURL == "" {
			baseURL = f.cfg.OllamaURL()
		}
		client, err := ollama.NewClient(baseURL, spec.Model, f.cfg.LocalTimeout(),
			ollama.WithTransport(f.transport), ollama.WithLogger(f.logger))
		return f.adapter(name, client, err)
	case KindFreeWeb:
		client, err := f.freeWebClient(spec.Model)
		return f.adapter(name, client, err)
	default:
		return FailedAdapter(name, fmt.Sprintf("unsupported provider kind %s", spec.Kind))
	}
}

func (f *Factory) resolveHosted(ctx context.Context, name string, spec ProviderSpec) Adapter {
	info, ok := hostedCatalogue[spec.Hosted]
	if !ok {
		return FailedAdapter(name, fmt.Sprintf("unknown hosted provider %d", int(spec.Hosted)))
	}

	llmCfg, _ := f.cfg.GetLLMConfig(info.configKey)
	apiKey := spec.APIKey
	if apiKey == "" {
		apiKey = llmCfg.APIKey
	}
	model := spec.Model
	if model == "" {
		model = llmCfg.Model
	}

	if apiKey == "" {
		if !f.cfg.FreeWeb.Enabled {
			return FailedAdapter(name, "no API key configured")
		}
		client, err := f.freeWebClient(f.cfg.FreeWeb.Model)
		if err != nil {
			return Adapter{name: name, preset: formatFreeWebError(name, err.Error())}
		}
		f.logger.Info("no credential configured, substituting free web",
			zap.String("provider", name), zap.String("model", client.Model()))
		return substituteAdapter(name, client, client.Model())
	}

	timeout := f.cfg.CloudTimeout()
	switch spec.Hosted {
	case HostedOpenAI, HostedPerplexity, HostedGroq:
		baseURL := llmCfg.BaseURL
		if baseURL == "" {
			baseURL = info.baseURL
		}
		if model == "" {
			model = info.model
		}
		client, err := openai.NewClient(baseURL, apiKey, model, timeout,
			openai.WithTransport(f.transport), openai.WithLogger(f.logger), openai.WithProviderName(info.configKey))
		return f.adapter(name, client, err)
	case HostedAnthropic:
		client, err := anthropic.NewClient(apiKey, model, timeout,
			anthropic.WithTransport(f.transport), anthropic.WithEndpoint(llmCfg.BaseURL), anthropic.WithLogger(f.logger))
		return f.adapter(name, client, err)
	case HostedGemini:
		// The SDK manages its own transport.
		client, err := gemini.NewClient(ctx, apiKey, model, timeout, gemini.WithLogger(f.logger))
		return f.adapter(name, client, err)
	default:
		return FailedAdapter(name, fmt.Sprintf("unknown hosted provider %d", int(spec.Hosted)))
	}
}

func (f *Factory) freeWebClient(model string) (*freeweb.Client, error) {
	return freeweb.NewClient(f.cfg.FreeWeb.BaseURL, model, f.cfg.FreeWebTimeout(),
		openai.WithTransport(f.transport), openai.WithLogger(f.logger))
}

// adapter wraps a constructor result; client is ignored when err is set.
func (f *Factory) adapter(name string, client Client, err error) Adapter {
	if err != nil {
		f.logger.Warn("building provider client failed", zap.String("provider", name), zap.Error(err))
		return FailedAdapter(name, err.Error())
	}
	return NewAdapter(name, client)
}
