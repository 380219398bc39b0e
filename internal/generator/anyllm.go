package generator

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// anyLLMGenerator implements Generator by wrapping
// github.com/mozilla-ai/any-llm-go, generalizing the reference codebase's
// pkg/provider/llm/anyllm.Provider (which dispatches across nine providers)
// down to the three this service needs: Gemini (default upstream), and
// OpenAI/DeepSeek for operators who route through an OpenAI-compatible
// endpoint.
type anyLLMGenerator struct {
	backend anyllmlib.Provider
	model   string
	name    string
}

func newAnyLLM(providerName, model, apiKey, baseURL string) (*anyLLMGenerator, error) {
	if model == "" {
		return nil, fmt.Errorf("generator: model must not be empty for provider %q", providerName)
	}

	var opts []anyllmlib.Option
	if apiKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("generator: create %q backend: %w", providerName, err)
	}

	return &anyLLMGenerator{backend: backend, model: model, name: providerName}, nil
}

func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "gemini":
		return gemini.New(opts...)
	case "openai":
		return anyllmoai.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: gemini, openai, deepseek", providerName)
	}
}

func (g *anyLLMGenerator) Name() string { return g.name }

func (g *anyLLMGenerator) buildParams(req Request) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleUser, Content: req.Prompt})

	params := anyllmlib.CompletionParams{Model: g.model, Messages: messages}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}

// Generate implements Generator.
func (g *anyLLMGenerator) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.backend.Completion(ctx, g.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("generator: %s: completion: %w", g.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generator: %s: empty choices in response", g.name)
	}
	return resp.Choices[0].Message.ContentString(), nil
}

// GenerateStream implements Generator.
func (g *anyLLMGenerator) GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error) {
	backendChunks, backendErrs := g.backend.CompletionStream(ctx, g.buildParams(req))

	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)
		for c := range backendChunks {
			if len(c.Choices) == 0 {
				continue
			}
			choice := c.Choices[0]
			select {
			case ch <- Chunk{Text: choice.Delta.Content, FinishReason: choice.FinishReason}:
			case <-ctx.Done():
				return
			}
		}
		if err := <-backendErrs; err != nil {
			select {
			case ch <- Chunk{Text: err.Error(), FinishReason: "error"}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}
