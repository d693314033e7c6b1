package xoswarm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xostack/xoswarm/config"
	"github.com/xostack/xoswarm/freeweb"
	"github.com/xostack/xoswarm/ollama"
	"github.com/xostack/xoswarm/openai"
)

// Tier names the synthesis step that produced an answer.
type Tier string

const (
	TierPrimary Tier = "primary"
	TierCloud   Tier = "cloud_fallback"
	TierFreeWeb Tier = "free_web_fallback"
	TierNone    Tier = "none"
)

const (
	// NoValidResponses is returned when every provider failed.
	NoValidResponses = "Error: No valid responses received from online providers to synthesize."
	// AllTiersFailed starts the answer when every synthesis tier failed.
	AllTiersFailed = "Error: All synthesis methods failed."

	cloudMarker   = "**(Synthesized via Cloud Fallback)**\n\n"
	freeWebMarker = "**(Synthesized via Free Web Fallback)**\n\n"

	synthesisSystemPrompt = "You are an expert synthesizer. Summarize the provided AI responses into one comprehensive answer."

	memoryHeader = "\n\n--- RELEVANT KNOWLEDGE FROM MEMORY ---\n"
	memoryFooter = "\n--------------------------------------\n"
)

const synthesisTemplate = `You are an expert synthesizer.
User Question: "%s"
%s
Below are responses from multiple advanced AI models:%s

Task:
1. Analyze these responses.
2. Identify the most accurate and comprehensive information.
3. Synthesize a single, high-quality, detailed answer for the user.
4. Resolve any conflicts between the models if possible.
5. Do not explicitly mention "Model A said this", just give the final answer.
6. If 'RELEVANT KNOWLEDGE FROM MEMORY' is provided, use it to improve accuracy and confidence.

Final Answer:
`

// Target is the primary synthesizer: an Ollama base URL and model. Empty
// fields fall back to the [synthesis] configuration.
type Target struct {
	Endpoint string `json:"endpoint,omitempty"`
	Model    string `json:"model,omitempty"`
}

// SynthesisTier is one step of the cascade. Label names the tier in the
// exhaustion message. Err, when set, reports that the tier's client could
// not be built; the tier then counts as attempted and failed.
type SynthesisTier struct {
	Tier   Tier
	Label  string
	Client Client
	Err    error
}

// SynthesisResult is the merged answer and the tier that produced it.
type SynthesisResult struct {
	Answer string
	Tier   Tier
}

// Synthesizer merges provider answers through a primary target with cloud and
// free-web fallbacks.
type Synthesizer struct {
	cfg          config.Config
	logger       *zap.Logger
	recorder     Recorder
	newTiers     func(target Target, rt http.RoundTripper) []SynthesisTier
	newTransport func() *http.Transport
	totalTimeout time.Duration
}

// NewSynthesizer returns a Synthesizer configured from cfg.
func NewSynthesizer(cfg config.Config, opts ...Option) *Synthesizer {
	return newSynthesizer(cfg, newSettings(opts))
}

func newSynthesizer(cfg config.Config, s settings) *Synthesizer {
	sy := &Synthesizer{
		cfg:          cfg,
		logger:       s.logger.With(zap.String("component", "synthesizer")),
		recorder:     s.recorder,
		newTiers:     s.newTiers,
		newTransport: s.newTransport,
	}
	if cfg.Synthesis.TotalTimeoutSeconds > 0 {
		sy.totalTimeout = time.Duration(cfg.Synthesis.TotalTimeoutSeconds) * time.Second
	}
	if sy.newTiers == nil {
		sy.newTiers = sy.configuredTiers
	}
	return sy
}

// Synthesize merges the answers in responses that are not errors. When none
// remain it returns NoValidResponses without contacting any tier. Otherwise
// it tries each tier in order and returns the first success, tagged with its
// fallback marker; if all fail the answer lists each attempted tier's error.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, responses ResponseMap, memoryContext string, target Target) SynthesisResult {
	sections := renderResponses(responses)
	if sections == "" {
		s.logger.Warn("no valid responses to synthesize", zap.Int("responses", len(responses)))
		s.recorder.ObserveSynthesis(string(TierNone), 0)
		return SynthesisResult{Answer: NoValidResponses, Tier: TierNone}
	}
	prompt := BuildPrompt(query, sections, memoryContext)

	if s.totalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.totalTimeout)
		defer cancel()
	}

	transport := s.newTransport()
	defer transport.CloseIdleConnections()

	tiers := s.newTiers(target, transport)
	defer func() {
		for _, t := range tiers {
			if t.Client != nil {
				t.Client.Close()
			}
		}
	}()

	start := time.Now()
	var failures []string
	for _, t := range tiers {
		if t.Client == nil && t.Err == nil {
			continue
		}
		text, err := s.attempt(ctx, t, prompt)
		if err == nil {
			s.recorder.ObserveSynthesis(string(t.Tier), time.Since(start))
			s.logger.Info("synthesis complete", zap.String("tier", string(t.Tier)), zap.Duration("elapsed", time.Since(start)))
			return SynthesisResult{Answer: marker(t.Tier) + text, Tier: t.Tier}
		}
		s.logger.Warn("synthesis tier failed", zap.String("tier", string(t.Tier)), zap.Error(err))
		failures = append(failures, fmt.Sprintf("\n%s: %v", t.Label, err))
	}

	s.recorder.ObserveSynthesis(string(TierNone), time.Since(start))
	return SynthesisResult{Answer: AllTiersFailed + strings.Join(failures, ""), Tier: TierNone}
}

// attempt runs one tier. The primary tier receives the prompt as is; the
// fallbacks send it with the synthesizer system instruction.
func (s *Synthesizer) attempt(ctx context.Context, t SynthesisTier, prompt string) (text string, err error) {
	if t.Err != nil {
		return "", t.Err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if t.Tier == TierPrimary {
		return t.Client.Generate(ctx, prompt)
	}
	if ic, ok := t.Client.(Instructed); ok {
		return ic.GenerateWithSystem(ctx, synthesisSystemPrompt, prompt)
	}
	return t.Client.Generate(ctx, synthesisSystemPrompt+"\n\n"+prompt)
}

// configuredTiers builds the cascade from configuration: the Ollama target,
// the OpenAI cloud model when a key is configured, and the free-web gateway
// when enabled.
func (s *Synthesizer) configuredTiers(target Target, rt http.RoundTripper) []SynthesisTier {
	endpoint := target.Endpoint
	if endpoint == "" {
		endpoint = s.cfg.SynthesisEndpoint()
	}
	model := target.Model
	if model == "" {
		model = s.cfg.Synthesis.Model
	}

	tiers := make([]SynthesisTier, 0, 3)

	primary := SynthesisTier{Tier: TierPrimary, Label: "Ollama"}
	if c, err := ollama.NewClient(endpoint, model, s.cfg.SynthesisTimeout(),
		ollama.WithTransport(rt), ollama.WithLogger(s.logger)); err != nil {
		primary.Err = err
	} else {
		primary.Client = c
	}
	tiers = append(tiers, primary)

	if key := s.cfg.APIKey(config.ProviderOpenAI); key != "" {
		cloud := SynthesisTier{Tier: TierCloud, Label: "OpenAI"}
		llmCfg, _ := s.cfg.GetLLMConfig(config.ProviderOpenAI)
		if c, err := openai.NewClient(llmCfg.BaseURL, key, s.cfg.Synthesis.CloudModel, s.cfg.CloudSynthesisTimeout(),
			openai.WithTransport(rt), openai.WithLogger(s.logger)); err != nil {
			cloud.Err = err
		} else {
			cloud.Client = c
		}
		tiers = append(tiers, cloud)
	}

	if s.cfg.FreeWeb.Enabled {
		fw := SynthesisTier{Tier: TierFreeWeb, Label: "Free Web"}
		if c, err := freeweb.NewClient(s.cfg.FreeWeb.BaseURL, s.cfg.FreeWeb.Model, s.cfg.FreeWebTimeout(),
			openai.WithTransport(rt), openai.WithLogger(s.logger)); err != nil {
			fw.Err = err
		} else {
			fw.Client = c
		}
		tiers = append(tiers, fw)
	}

	return tiers
}

// renderResponses formats the non-error entries as labeled sections, sorted
// by provider name.
func renderResponses(responses ResponseMap) string {
	names := make([]string, 0, len(responses))
	for name, text := range responses {
		if !IsError(text) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "\n\n--- %s Response ---\n%s", name, responses[name])
	}
	return b.String()
}

// BuildPrompt assembles the synthesis prompt from the rendered provider
// sections and an optional memory context.
func BuildPrompt(query, sections, memoryContext string) string {
	memory := ""
	if memoryContext != "" {
		memory = memoryHeader + memoryContext + memoryFooter
	}
	return fmt.Sprintf(synthesisTemplate, query, memory, sections)
}

func marker(t Tier) string {
	switch t {
	case TierCloud:
		return cloudMarker
	case TierFreeWeb:
		return freeWebMarker
	default:
		return ""
	}
}
