package xoswarm

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/xostack/xoswarm/config"
)

// Request is one query and the providers to ask.
type Request struct {
	Query string
	// Online holds hosted provider selection names, see OnlineProviders.
	Online []string
	// Offline holds local inference models.
	Offline []LocalModel
	// Custom holds additional caller-built specs.
	Custom    []ProviderSpec
	UseMemory bool
	// Synthesizer overrides the configured primary synthesis target.
	Synthesizer *Target
}

// Result is the merged answer and every provider's individual answer.
type Result struct {
	FinalAnswer         string      `json:"final_answer"`
	IndividualResponses ResponseMap `json:"individual_responses"`
	Tier                Tier        `json:"tier"`
}

// Pipeline dispatches a request and synthesizes the answers.
type Pipeline struct {
	engine *Engine
	synth  *Synthesizer
	guard  *memoryGuard
	logger *zap.Logger
}

// NewPipeline returns a Pipeline configured from cfg.
func NewPipeline(cfg config.Config, opts ...Option) *Pipeline {
	s := newSettings(opts)
	p := &Pipeline{
		engine: newEngine(cfg, s),
		synth:  newSynthesizer(cfg, s),
		logger: s.logger.With(zap.String("component", "pipeline")),
	}
	if s.memory != nil {
		limit := cfg.Memory.Limit
		if limit <= 0 {
			limit = 2
		}
		source := cfg.Memory.SourceLabel
		if source == "" {
			source = "Mobile-Synthesized"
		}
		p.guard = newMemoryGuard(s.memory, limit, source, cfg.MemorySaveTimeout(), s.logger)
	}
	return p
}

// Specs turns a request's selection into provider specs. Unknown online
// names are skipped.
func (p *Pipeline) Specs(req Request) []ProviderSpec {
	specs := make([]ProviderSpec, 0, len(req.Online)+len(req.Offline)+len(req.Custom))
	for _, name := range req.Online {
		spec, ok := LookupOnline(name)
		if !ok {
			p.logger.Warn("unknown online provider, skipping", zap.String("name", name))
			continue
		}
		specs = append(specs, spec)
	}
	for _, m := range req.Offline {
		specs = append(specs, LocalSpec(m))
	}
	return append(specs, req.Custom...)
}

// DispatchAndSynthesize runs the request to completion.
func (p *Pipeline) DispatchAndSynthesize(ctx context.Context, req Request) Result {
	return p.run(ctx, req, nil)
}

// Stream runs the request and reports progress to emit: processing, then a
// querying event per provider, a response or error event per provider in
// completion order, synthesizing, and complete with the full result. emit is
// called from the calling goroutine only.
func (p *Pipeline) Stream(ctx context.Context, req Request, emit func(Event)) Result {
	return p.run(ctx, req, emit)
}

func (p *Pipeline) run(ctx context.Context, req Request, emit func(Event)) Result {
	if emit == nil {
		emit = func(Event) {}
	}
	emit(Event{Status: StatusProcessing, Message: "Processing query"})

	useMemory := req.UseMemory && p.guard != nil
	memoryContext := make(chan string, 1)
	if useMemory {
		go func() {
			memoryContext <- p.guard.retrieve(ctx, req.Query)
		}()
	} else {
		memoryContext <- ""
	}

	specs := p.Specs(req)
	responses := p.engine.Dispatch(ctx, req.Query, specs, emit)
	memCtx := <-memoryContext

	var target Target
	if req.Synthesizer != nil {
		target = *req.Synthesizer
	}

	emit(Event{Status: StatusSynthesizing, Message: "Synthesizing responses"})
	synthesized := p.synth.Synthesize(ctx, req.Query, responses, memCtx, target)

	if useMemory && !IsError(synthesized.Answer) {
		p.guard.save(ctx, req.Query, synthesized.Answer)
	}

	result := Result{
		FinalAnswer:         synthesized.Answer,
		IndividualResponses: responses,
		Tier:                synthesized.Tier,
	}
	emit(Event{
		Status:              StatusComplete,
		FinalAnswer:         result.FinalAnswer,
		IndividualResponses: result.IndividualResponses,
		Tier:                result.Tier,
	})
	return result
}

// Export writes the memory dataset to path.
func (p *Pipeline) Export(ctx context.Context, path string) (string, error) {
	if p.guard == nil {
		return "", ErrNoMemory
	}
	return p.guard.mem.Export(ctx, path)
}

// Close waits for pending memory saves and closes the memory if it
// implements io.Closer.
func (p *Pipeline) Close() error {
	if p.guard == nil {
		return nil
	}
	p.guard.wait()
	if c, ok := p.guard.mem.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
