// Package generator is the abstraction over whatever LLM backend answers
// queries and performs entity/relation extraction (spec.md §4.4 "Generator"
// collaborator, §6 "generate"/"generate_chunk" operations).
//
// Grounded on the reference codebase's pkg/provider/llm.Provider: a narrow
// interface the orchestrator and extractor depend on, with the concrete
// implementation selected by configuration name rather than compiled in.
package generator

import "context"

// Chunk is a single fragment of a streaming generation (spec.md §6
// "generate_chunk"). FinishReason is non-empty only on the last chunk.
type Chunk struct {
	Text         string
	FinishReason string
}

// Request carries everything a Generate call needs.
type Request struct {
	// SystemPrompt is an optional high-priority instruction prepended to the
	// conversation.
	SystemPrompt string

	// Prompt is the user-facing prompt text (the composed RAG/extraction
	// prompt). Generator implementations treat this as a single user-role
	// message; callers compose multi-turn history outside this package.
	Prompt string

	Temperature float64
	MaxTokens   int
}

// Generator is the abstraction every component that needs LLM output depends
// on: the retrieval service (answer synthesis) and the extractor (entity and
// relation extraction prompts).
//
// Implementations must be safe for concurrent use.
type Generator interface {
	// Generate sends req and waits for the full response text.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStream sends req and returns a channel of incremental Chunks.
	// The channel is closed when generation finishes or ctx is cancelled.
	// An error chunk is signalled with FinishReason "error" and the error
	// text in Text; the initial error return is non-nil only when the
	// stream could not be started at all.
	GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error)

	// Name reports the configured provider name, used in logging and in
	// Source/degraded-mode annotations (spec.md §6).
	Name() string
}

// New constructs the Generator named by providerName. Supported names are
// "gemini" (default upstream, mozilla-ai/any-llm-go's Gemini backend),
// "openai" and "deepseek" (also via any-llm-go, which exposes both behind
// the same Provider interface), and "stub" — a deterministic, no-network
// generator used when no credentials are configured (degraded stub mode,
// spec.md §9).
func New(providerName, model, apiKey, baseURL string) (Generator, error) {
	switch providerName {
	case "", "stub":
		return NewStub(), nil
	case "gemini", "openai", "deepseek":
		return newAnyLLM(providerName, model, apiKey, baseURL)
	default:
		return nil, &UnsupportedProviderError{Name: providerName}
	}
}

// UnsupportedProviderError is returned by New for an unrecognised provider
// name.
type UnsupportedProviderError struct {
	Name string
}

func (e *UnsupportedProviderError) Error() string {
	return "generator: unsupported provider " + e.Name + "; supported: gemini, openai, deepseek, stub"
}
