package xoswarm

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xostack/xoswarm/config"
)

// Engine queries a set of providers concurrently.
type Engine struct {
	logger       *zap.Logger
	recorder     Recorder
	newResolver  func(rt http.RoundTripper) Resolver
	newTransport func() *http.Transport
}

// NewEngine returns an Engine that resolves specs against cfg.
func NewEngine(cfg config.Config, opts ...Option) *Engine {
	s := newSettings(opts)
	return newEngine(cfg, s)
}

func newEngine(cfg config.Config, s settings) *Engine {
	e := &Engine{
		logger:       s.logger.With(zap.String("component", "dispatch")),
		recorder:     s.recorder,
		newResolver:  s.newResolver,
		newTransport: s.newTransport,
	}
	if e.newResolver == nil {
		e.newResolver = func(rt http.RoundTripper) Resolver {
			return NewFactory(cfg, rt, s.logger)
		}
	}
	return e
}

type callResult struct {
	name    string
	text    string
	elapsed time.Duration
}

// Dispatch sends query to every spec and returns one entry per display name.
//
// All adapters are resolved before the first call starts. Calls share one
// transport that is closed once the last call returns; a slow or failing
// provider never cancels the others. When two specs share a display name the
// one that completes last wins.
//
// progress, if non-nil, receives a querying event per provider followed by
// a response or error event per provider in completion order. It is only
// called from the goroutine that called Dispatch.
func (e *Engine) Dispatch(ctx context.Context, query string, specs []ProviderSpec, progress func(Event)) ResponseMap {
	responses := make(ResponseMap, len(specs))
	if len(specs) == 0 {
		return responses
	}
	if progress == nil {
		progress = func(Event) {}
	}

	start := time.Now()
	transport := e.newTransport()
	defer transport.CloseIdleConnections()

	resolver := e.newResolver(transport)
	adapters := make([]Adapter, 0, len(specs))
	for _, spec := range specs {
		adapters = append(adapters, resolver.Resolve(ctx, spec))
	}

	results := make(chan callResult, len(adapters))
	var g errgroup.Group
	for _, adapter := range adapters {
		progress(Event{Status: StatusQuerying, Model: adapter.Name(), Message: "Querying " + adapter.Name()})
		g.Go(func() error {
			defer adapter.Close()
			began := time.Now()
			text := adapter.Call(ctx, query)
			results <- callResult{name: adapter.Name(), text: text, elapsed: time.Since(began)}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	for r := range results {
		if _, dup := responses[r.name]; dup {
			e.logger.Warn("duplicate provider name, keeping latest result", zap.String("provider", r.name))
		}
		responses[r.name] = r.text

		failed := IsError(r.text)
		e.recorder.ObserveProvider(r.name, failed, r.elapsed)
		if failed {
			e.logger.Debug("provider failed", zap.String("provider", r.name), zap.Duration("elapsed", r.elapsed), zap.String("detail", r.text))
		} else {
			e.logger.Debug("provider answered", zap.String("provider", r.name), zap.Duration("elapsed", r.elapsed))
		}
		progress(providerEvent(r.name, r.text))
	}

	e.recorder.ObserveDispatch(len(specs), time.Since(start))
	e.logger.Info("dispatch complete",
		zap.Int("providers", len(specs)),
		zap.Int("entries", len(responses)),
		zap.Duration("elapsed", time.Since(start)))
	return responses
}
