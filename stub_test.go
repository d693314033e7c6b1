package xoswarm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// stubClient is a scripted Client.
type stubClient struct {
	reply    string
	err      error
	panicMsg string
	delay    time.Duration

	calls       atomic.Int32
	closed      atomic.Bool
	mu          sync.Mutex
	prompts     []string
	systemCalls []string
}

func (s *stubClient) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.reply, s.err
}

func (s *stubClient) ProviderName() string { return "stub" }

func (s *stubClient) Close() error {
	s.closed.Store(true)
	return nil
}

// instructedStub also implements Instructed.
type instructedStub struct {
	stubClient
}

func (s *instructedStub) GenerateWithSystem(ctx context.Context, system, prompt string) (string, error) {
	s.mu.Lock()
	s.systemCalls = append(s.systemCalls, system)
	s.mu.Unlock()
	return s.Generate(ctx, prompt)
}

var errStub = errors.New("stub failure")

// stubResolver resolves specs by display name to prepared clients.
func stubResolver(clients map[string]Client) func(http.RoundTripper) Resolver {
	return func(http.RoundTripper) Resolver {
		return ResolverFunc(func(_ context.Context, spec ProviderSpec) Adapter {
			c, ok := clients[spec.Name]
			if !ok {
				return FailedAdapter(spec.Name, "not stubbed")
			}
			return NewAdapter(spec.Name, c)
		})
	}
}

// staticTiers returns a fixed cascade.
func staticTiers(tiers ...SynthesisTier) func(Target, http.RoundTripper) []SynthesisTier {
	return func(Target, http.RoundTripper) []SynthesisTier {
		return tiers
	}
}

// fakeMemory is an in-memory Memory.
type fakeMemory struct {
	mu          sync.Mutex
	context     string
	retrieveErr error
	panicOnRead bool
	saveErr     error
	saveDelay   time.Duration
	saved       []string
	queries     []string
}

func (m *fakeMemory) Retrieve(_ context.Context, query string, _ int) (string, error) {
	if m.panicOnRead {
		panic("retrieve exploded")
	}
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	return m.context, m.retrieveErr
}

func (m *fakeMemory) Save(ctx context.Context, query, answer, source string) error {
	if m.saveDelay > 0 {
		select {
		case <-time.After(m.saveDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	m.saved = append(m.saved, query+"|"+answer+"|"+source)
	m.mu.Unlock()
	return nil
}

func (m *fakeMemory) Export(context.Context, string) (string, error) {
	return "Exported 0 items", nil
}

func (m *fakeMemory) savedRecords() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.saved...)
}
