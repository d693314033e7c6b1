package xoswarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoMemory is returned by Pipeline.Export when no memory is configured.
var ErrNoMemory = errors.New("memory not available")

// Memory stores past question/answer pairs and returns relevant ones as
// synthesis context.
type Memory interface {
	// Retrieve returns up to limit stored pairs related to query, formatted
	// for inclusion in a prompt, or "" when nothing matches.
	Retrieve(ctx context.Context, query string, limit int) (string, error)
	// Save stores one answered question.
	Save(ctx context.Context, query, answer, source string) error
	// Export writes all stored pairs to path and describes the result.
	Export(ctx context.Context, path string) (string, error)
}

// memoryGuard makes Memory a best-effort dependency: retrieval failures turn
// into empty context and saves run in the background. Neither ever reports
// an error to the caller.
type memoryGuard struct {
	mem         Memory
	limit       int
	source      string
	saveTimeout time.Duration
	logger      *zap.Logger
	pending     sync.WaitGroup
}

func newMemoryGuard(mem Memory, limit int, source string, saveTimeout time.Duration, logger *zap.Logger) *memoryGuard {
	return &memoryGuard{
		mem:         mem,
		limit:       limit,
		source:      source,
		saveTimeout: saveTimeout,
		logger:      logger.With(zap.String("component", "memory")),
	}
}

// retrieve returns the stored context for query, or "" on any failure.
func (g *memoryGuard) retrieve(ctx context.Context, query string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("memory retrieval panicked", zap.String("panic", fmt.Sprint(r)))
			text = ""
		}
	}()

	text, err := g.mem.Retrieve(ctx, query, g.limit)
	if err != nil {
		g.logger.Warn("memory retrieval failed", zap.Error(err))
		return ""
	}
	return text
}

// save stores the pair without blocking. The write outlives ctx's
// cancellation but is bounded by the save timeout.
func (g *memoryGuard) save(ctx context.Context, query, answer string) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.saveTimeout)

	g.pending.Add(1)
	go func() {
		defer g.pending.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				g.logger.Warn("memory save panicked", zap.String("panic", fmt.Sprint(r)))
			}
		}()

		if err := g.mem.Save(saveCtx, query, answer, g.source); err != nil {
			g.logger.Warn("memory save failed", zap.Error(err))
			return
		}
		g.logger.Debug("memory saved", zap.String("source", g.source))
	}()
}

// wait blocks until every pending save has finished.
func (g *memoryGuard) wait() {
	g.pending.Wait()
}
