// Package app wires all GraphRAG subsystems into a running process.
//
// The Container struct owns the full lifecycle: New creates and connects all
// subsystems, and Shutdown tears them down in order. This is the "typed
// container constructed at startup" redesign (SPEC_FULL.md §9): one instance
// of every collaborator (Graph Store, Cache, Generator, Retrieval Service,
// Orchestrator, Builder), threaded through request handlers instead of
// module-level singletons.
//
// For testing, inject test doubles via functional options (WithGraphStore,
// WithVectorIndex, WithGenerator). When an option is not provided, New
// creates the real implementation from config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smlht2005/care-rag-api/internal/builder"
	"github.com/smlht2005/care-rag-api/internal/cache"
	"github.com/smlht2005/care-rag-api/internal/config"
	"github.com/smlht2005/care-rag-api/internal/extractor"
	"github.com/smlht2005/care-rag-api/internal/generator"
	"github.com/smlht2005/care-rag-api/internal/graphstore"
	"github.com/smlht2005/care-rag-api/internal/graphstore/memstore"
	"github.com/smlht2005/care-rag-api/internal/graphstore/sqlitestore"
	"github.com/smlht2005/care-rag-api/internal/orchestrator"
	"github.com/smlht2005/care-rag-api/internal/retrieval"
	"github.com/smlht2005/care-rag-api/pkg/types"
)

// Container owns every subsystem's lifetime for one running process.
type Container struct {
	cfg *config.Config

	store        graphstore.Store
	cache        *cache.Cache
	gen          generator.Generator
	index        retrieval.VectorIndex
	extractor    *extractor.Extractor
	retrieval    *retrieval.Service
	orchestrator *orchestrator.Orchestrator
	builder      *builder.Builder

	// closers run in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*Container)

// WithGraphStore injects a Graph Store instead of creating one from config.
func WithGraphStore(s graphstore.Store) Option {
	return func(c *Container) { c.store = s }
}

// WithVectorIndex injects a vector index. The vector store is an external
// collaborator (spec.md §1); when not injected, New falls back to an index
// that returns no results, so queries are answered without retrieved context
// and graph enhancement is skipped, rather than failing outright.
func WithVectorIndex(idx retrieval.VectorIndex) Option {
	return func(c *Container) { c.index = idx }
}

// WithGenerator injects a Generator instead of creating one from config.
func WithGenerator(g generator.Generator) Option {
	return func(c *Container) { c.gen = g }
}

// New creates a Container by wiring every subsystem together. New performs
// all initialisation synchronously: graph store connection, cache
// construction, generator resolution, and assembly of the extractor,
// builder, retrieval service, and orchestrator on top of them.
func New(cfg *config.Config, opts ...Option) (*Container, error) {
	c := &Container{cfg: cfg}
	for _, o := range opts {
		o(c)
	}

	if err := c.initGraphStore(); err != nil {
		return nil, fmt.Errorf("app: init graph store: %w", err)
	}

	if c.cache == nil {
		c.cache = cache.New(cfg.Cache.SweepBatch)
	}

	if err := c.initGenerator(); err != nil {
		return nil, fmt.Errorf("app: init generator: %w", err)
	}

	if c.index == nil {
		c.index = noopVectorIndex{}
	}

	c.extractor = extractor.New(c.gen)
	c.builder = builder.New(c.store, c.extractor)
	c.retrieval = retrieval.New(c.index, c.gen, c.cache, cfg.Retrieval.CacheTTL)
	c.orchestrator = orchestrator.New(c.store, c.retrieval, c.cache, cfg.Graph.CacheTTL)

	return c, nil
}

// initGraphStore opens the durable SQLite-backed store when cfg.Graph.DBPath
// is set, or the in-memory reference implementation otherwise (spec.md §4.1,
// §9 "GraphStore interface with two implementations").
func (c *Container) initGraphStore() error {
	if c.store != nil {
		return nil // injected
	}

	if c.cfg.Graph.DBPath == "" {
		c.store = memstore.New()
		return nil
	}

	store, err := sqlitestore.Open(c.cfg.Graph.DBPath)
	if err != nil {
		return fmt.Errorf("open graph store at %q: %w", c.cfg.Graph.DBPath, err)
	}
	c.store = store
	c.closers = append(c.closers, store.Close)
	return nil
}

// initGenerator resolves the configured Generator. An empty or unrecognized
// provider name, or missing credentials, falls back to the degraded stub
// generator rather than failing startup (spec.md §6 "degraded stub mode").
func (c *Container) initGenerator() error {
	if c.gen != nil {
		return nil // injected
	}

	name := c.cfg.LLM.Name
	if name != "" && name != "stub" && c.cfg.LLM.APIKey == "" {
		name = "stub"
	}

	gen, err := generator.New(name, c.cfg.LLM.Model, c.cfg.LLM.APIKey, c.cfg.LLM.BaseURL)
	if err != nil {
		slog.Warn("generator provider unavailable, falling back to stub", "provider", name, "err", err)
		gen = generator.NewStub()
	}
	c.gen = gen
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// GraphStore returns the Graph Store.
func (c *Container) GraphStore() graphstore.Store { return c.store }

// Cache returns the fingerprint cache.
func (c *Container) Cache() *cache.Cache { return c.cache }

// Generator returns the configured Generator.
func (c *Container) Generator() generator.Generator { return c.gen }

// Builder returns the Graph Builder.
func (c *Container) Builder() *builder.Builder { return c.builder }

// Retrieval returns the Retrieval Service.
func (c *Container) Retrieval() *retrieval.Service { return c.retrieval }

// Orchestrator returns the Orchestrator.
func (c *Container) Orchestrator() *orchestrator.Orchestrator { return c.orchestrator }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems by running the closers in the order
// they were registered, skipping any remaining closers once the grace period
// elapses.
func (c *Container) Shutdown(grace time.Duration) error {
	var shutdownErr error
	c.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(c.closers))
		deadline := time.Now().Add(grace)
		for i, closer := range c.closers {
			if grace > 0 && time.Now().After(deadline) {
				slog.Warn("shutdown grace period exceeded", "remaining", len(c.closers)-i)
				shutdownErr = fmt.Errorf("app: shutdown: grace period exceeded with %d closers remaining", len(c.closers)-i)
				return
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// noopVectorIndex is the fallback VectorIndex used when no vector store is
// configured. It always returns zero results, which the orchestrator and
// retrieval service treat as "no retrieval context" rather than an error.
type noopVectorIndex struct{}

func (noopVectorIndex) Search(context.Context, string, int) ([]types.Source, error) {
	return nil, nil
}
