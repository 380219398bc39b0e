package generator

import (
	"context"
	"fmt"
)

// Stub is a deterministic, no-network Generator. It is selected when no LLM
// provider is configured (spec.md §9 "degraded stub mode"): the service
// still answers requests, graph extraction falls back to the rule-based
// path (the stub's placeholder text does not parse as a JSON array, so
// extractor.Extractor switches to its rule-based extraction), and retrieval responses
// are clearly marked as unavailable rather than silently wrong.
type Stub struct{}

// NewStub returns a ready-to-use Stub.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) Name() string { return "stub" }

// Generate implements Generator by returning a fixed, clearly-labelled
// response instead of calling out to any upstream.
func (s *Stub) Generate(_ context.Context, _ Request) (string, error) {
	return "[generation unavailable: no LLM provider configured]", nil
}

// GenerateStream implements Generator with a single chunk carrying the same
// fixed response as Generate.
func (s *Stub) GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error) {
	text, err := s.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generator: stub: %w", err)
	}
	ch := make(chan Chunk, 1)
	ch <- Chunk{Text: text, FinishReason: "stop"}
	close(ch)
	return ch, nil
}
