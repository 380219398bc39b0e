// Package retrieval is the Retrieval Service (spec.md §4.5, component C5):
// vector similarity search over indexed chunks followed by answer synthesis
// through a Generator, with its own response cache keyed independently of
// the outer orchestrator cache.
//
// VectorIndex is left as an external-collaborator interface (spec.md §9 Open
// Question Q1): no dependency in the reference pack provides an in-process
// vector index without a server collaborator of its own (pgvector needs
// Postgres; no pure-Go ANN library appears anywhere in the pack), so this
// package depends on the interface and leaves the concrete backend to the
// operator's deployment.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smlht2005/care-rag-api/internal/cache"
	"github.com/smlht2005/care-rag-api/internal/generator"
	"github.com/smlht2005/care-rag-api/internal/observe"
	"github.com/smlht2005/care-rag-api/pkg/types"
)

// VectorIndex is the external similarity-search collaborator.
type VectorIndex interface {
	// Search returns the topK chunks most similar to query.
	Search(ctx context.Context, query string, topK int) ([]types.Source, error)
}

// Result is the outcome of a retrieval query.
type Result struct {
	Answer  string
	Sources []types.Source
}

// Service performs vector search plus answer synthesis.
type Service struct {
	index VectorIndex
	gen   generator.Generator
	cache *cache.Cache
	ttl   time.Duration
}

// New returns a Service. ttl governs how long an answer is cached for an
// identical (query, topK) pair.
func New(index VectorIndex, gen generator.Generator, c *cache.Cache, ttl time.Duration) *Service {
	return &Service{index: index, gen: gen, cache: c, ttl: ttl}
}

// Query performs vector search over query, synthesizes an answer from the
// retrieved sources through the Generator, and caches the result.
func (s *Service) Query(ctx context.Context, query string, topK int) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "retrieval.query", trace.WithAttributes(attribute.Int("top_k", topK)))
	defer span.End()

	key := cache.Fingerprint("retrieval_query", map[string]any{"query": query, "top_k": topK})

	v, err := s.cache.GetOrFill(ctx, key, s.ttl, func(ctx context.Context) (any, error) {
		sources, err := s.index.Search(ctx, query, topK)
		if err != nil {
			return nil, fmt.Errorf("retrieval: vector search: %w", err)
		}

		answer, err := s.gen.Generate(ctx, generator.Request{Prompt: buildAnswerPrompt(query, sources)})
		if err != nil {
			return nil, fmt.Errorf("retrieval: generate answer: %w", err)
		}

		return Result{Answer: answer, Sources: sources}, nil
	})
	if err != nil {
		observe.Logger(ctx).Warn("retrieval query failed", "err", err)
		return Result{}, err
	}
	return v.(Result), nil
}

// Stream performs vector search then streams the synthesized answer,
// bypassing the cache — a streamed response is inherently unsuited to
// whole-value caching.
func (s *Service) Stream(ctx context.Context, query string, topK int) (<-chan generator.Chunk, []types.Source, error) {
	ctx, span := observe.StartSpan(ctx, "retrieval.stream", trace.WithAttributes(attribute.Int("top_k", topK)))
	defer span.End()

	sources, err := s.index.Search(ctx, query, topK)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieval: vector search: %w", err)
	}

	stream, err := s.gen.GenerateStream(ctx, generator.Request{Prompt: buildAnswerPrompt(query, sources)})
	if err != nil {
		return nil, nil, fmt.Errorf("retrieval: generate stream: %w", err)
	}
	return stream, sources, nil
}

func buildAnswerPrompt(query string, sources []types.Source) string {
	prompt := "Answer the question using only the context below.\n\nContext:\n"
	for _, src := range sources {
		prompt += "- " + src.Content + "\n"
	}
	prompt += "\nQuestion: " + query + "\nAnswer:"
	return prompt
}
