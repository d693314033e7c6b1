package xoswarm

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Recorder receives measurements from a Pipeline. The metrics package
// provides a Prometheus implementation.
type Recorder interface {
	ObserveProvider(provider string, failed bool, elapsed time.Duration)
	ObserveDispatch(providers int, elapsed time.Duration)
	ObserveSynthesis(tier string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveProvider(string, bool, time.Duration) {}
func (nopRecorder) ObserveDispatch(int, time.Duration) {}
func (nopRecorder) ObserveSynthesis(string, time.Duration) {}

// Option configures an Engine, Synthesizer or Pipeline.
type Option func(*settings)

type settings struct {
	logger       *zap.Logger
	recorder     Recorder
	memory       Memory
	newResolver  func(rt http.RoundTripper) Resolver
	newTiers     func(target Target, rt http.RoundTripper) []SynthesisTier
	newTransport func() *http.Transport
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:       zap.NewNop(),
		recorder:     nopRecorder{},
		newTransport: newTransport,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the measurement sink.
func WithRecorder(r Recorder) Option {
	return func(s *settings) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithMemory enables the question/answer memory.
func WithMemory(m Memory) Option {
	return func(s *settings) {
		s.memory = m
	}
}

// WithResolver replaces the configuration-driven Factory. fn is called once
// per dispatch with that dispatch's transport.
func WithResolver(fn func(rt http.RoundTripper) Resolver) Option {
	return func(s *settings) {
		s.newResolver = fn
	}
}

// WithSynthesisTiers replaces the configuration-driven synthesis cascade. fn
// is called once per synthesis and its tiers are tried in order.
func WithSynthesisTiers(fn func(target Target, rt http.RoundTripper) []SynthesisTier) Option {
	return func(s *settings) {
		s.newTiers = fn
	}
}

// newTransport returns a connection pool scoped to one batch of calls.
func newTransport() *http.Transport {
	return http.DefaultTransport.(*http.Transport).Clone()
}
